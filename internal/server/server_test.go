package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"questpilot/internal/calsync"
	"questpilot/internal/config"
	"questpilot/internal/db"
	"questpilot/internal/domain"
	"questpilot/internal/engine"
	"questpilot/internal/migrate"
)

// Monday.
var serverNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type testServer struct {
	URL       string
	workspace string
	client    *http.Client
	close     func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Calendar.Enabled = true
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return serverNow }
	e.RandInt = func(n int) int { return 0 }

	srvCfg := Config{Engine: e, BasePath: "/v0"}
	if mutate != nil {
		mutate(&srvCfg)
	}
	handler, err := New(srvCfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:       "http://" + ln.Addr().String(),
		workspace: workspace,
		client:    &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestQuestLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/quests", map[string]any{
		"title":      "Morning run",
		"schedule":   map[string]any{"kind": "weekly", "weekdays": []int{1}},
		"reward_min": 5,
		"reward_max": 10,
	}, nil)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create quest status %d: %s", createRes.StatusCode, string(data))
	}
	var created QuestResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal quest: %v", err)
	}
	if created.EndMinute != 1440 {
		t.Fatalf("expected all-day default, got %d..%d", created.StartMinute, created.EndMinute)
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/quests", nil, nil)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", listRes.StatusCode, string(listBody))
	}
	var items []DayStatusResponse
	if err := json.Unmarshal(listBody, &items); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(items) != 1 || !items[0].ActiveToday {
		t.Fatalf("list: %+v", items)
	}

	doneRes, doneBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/quests/"+created.ID+"/complete", nil, nil)
	if doneRes.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", doneRes.StatusCode, string(doneBody))
	}
	var out domain.RewardOutcome
	if err := json.Unmarshal(doneBody, &out); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
	if out.CoinsEarned < 5 || out.CoinsEarned > 10 {
		t.Fatalf("coins out of range: %+v", out)
	}

	againRes, againBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/quests/"+created.ID+"/complete", nil, nil)
	if againRes.StatusCode != http.StatusConflict {
		t.Fatalf("second completion status %d: %s", againRes.StatusCode, string(againBody))
	}

	statsRes, statsBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/quests/"+created.ID+"/stats", nil, nil)
	if statsRes.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d: %s", statsRes.StatusCode, string(statsBody))
	}
	var stats domain.QuestStats
	if err := json.Unmarshal(statsBody, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Successes != 1 || stats.CurrentStreak != 1 {
		t.Fatalf("stats: %+v", stats)
	}

	playerRes, playerBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/player", nil, nil)
	if playerRes.StatusCode != http.StatusOK {
		t.Fatalf("player status %d: %s", playerRes.StatusCode, string(playerBody))
	}
	var p domain.Player
	_ = json.Unmarshal(playerBody, &p)
	if p.Coins != out.CoinsEarned {
		t.Fatalf("player coins %d, outcome %d", p.Coins, out.CoinsEarned)
	}
}

func TestQuestNotFoundEnvelope(t *testing.T) {
	srv := newTestServer(t, nil)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/quests/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code: %+v", envelope.Error)
	}
}

func TestSyncEndpoint(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	events := []domain.CalendarEvent{{
		ID:             "ev-1",
		Title:          "Dentist",
		StartMs:        start.UnixMilli(),
		EndMs:          start.Add(time.Hour).UnixMilli(),
		CalendarID:     "personal",
		LastModifiedMs: start.UnixMilli(),
	}}
	data, _ := json.Marshal(events)
	path := filepath.Join(dir, "events.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write events: %v", err)
	}

	srv := newTestServer(t, func(cfg *Config) {
		cfg.Provider = calsync.FileProvider{Path: path}
	})

	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync/initial", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sync status %d: %s", res.StatusCode, string(body))
	}
	var result calsync.Result
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.Status != calsync.StatusOK || result.Created != 1 {
		t.Fatalf("sync result: %+v", result)
	}
}

func TestSyncWithoutProvider(t *testing.T) {
	srv := newTestServer(t, nil)
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sync/initial", nil, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", res.StatusCode, string(body))
	}
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-secret"
	srv := newTestServer(t, func(cfg *Config) {
		cfg.Auth = AuthConfig{JWTSecret: secret}
	})
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/player", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status %d", res.StatusCode)
	}

	// Health stays open.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "local",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/player", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("authorized status %d: %s", res.StatusCode, string(body))
	}
}
