package questpilotsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal QuestPilot HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Quest represents the API quest model (partial).
type Quest struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	StartMinute     int    `json:"start_minute"`
	EndMinute       int    `json:"end_minute"`
	RewardMin       int    `json:"reward_min"`
	RewardMax       int    `json:"reward_max"`
	CreatedOn       string `json:"created_on"`
	IsDestroyed     bool   `json:"is_destroyed"`
	LastCompletedOn string `json:"last_completed_on,omitempty"`
}

// DayStatus is a quest with its evaluation for today.
type DayStatus struct {
	Quest        Quest `json:"quest"`
	ActiveToday  bool  `json:"active_today"`
	WithinWindow bool  `json:"within_window"`
	OverdueToday bool  `json:"overdue_today"`
}

// RewardOutcome is the payout of one completion.
type RewardOutcome struct {
	QuestID     string `json:"quest_id"`
	CoinsEarned int    `json:"coins_earned"`
	XPEarned    int    `json:"xp_earned"`
	LeveledUp   bool   `json:"leveled_up"`
	NewLevel    int    `json:"new_level"`
}

// Player holds currency and progression totals.
type Player struct {
	Coins int `json:"coins"`
	XP    int `json:"xp"`
	Level int `json:"level"`
}

// QuestStats are the reporting aggregates for one quest.
type QuestStats struct {
	QuestID          string  `json:"quest_id"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
	WeeklyAverage    float64 `json:"weekly_average"`
	Successes        int     `json:"successes"`
	Failures         int     `json:"failures"`
	TotalPerformable int     `json:"total_performable"`
}

// SyncResult reports one calendar sync run.
type SyncResult struct {
	Status  string `json:"status"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Deleted int    `json:"deleted"`
	Skipped int    `json:"skipped,omitempty"`
	Message string `json:"message,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	QuestID string `json:"quest_id,omitempty"`
	Payload string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateQuest creates a quest from a raw request body, typically built from
// the same fields the POST /quests endpoint accepts.
func (c *Client) CreateQuest(ctx context.Context, body map[string]any) (Quest, error) {
	var resp Quest
	err := c.do(ctx, http.MethodPost, "v0/quests", body, &resp)
	return resp, err
}

// ListQuests returns every live quest with today's evaluation.
func (c *Client) ListQuests(ctx context.Context) ([]DayStatus, error) {
	var resp []DayStatus
	err := c.do(ctx, http.MethodGet, "v0/quests", nil, &resp)
	return resp, err
}

// GetQuest fetches one quest with today's evaluation.
func (c *Client) GetQuest(ctx context.Context, id string) (DayStatus, error) {
	var resp DayStatus
	err := c.do(ctx, http.MethodGet, "v0/quests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// StartQuest marks a quest started.
func (c *Client) StartQuest(ctx context.Context, id string) (Quest, error) {
	var resp Quest
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/quests/%s/start", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// CompleteQuest records today's success and returns the payout.
func (c *Client) CompleteQuest(ctx context.Context, id string) (RewardOutcome, error) {
	var resp RewardOutcome
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/quests/%s/complete", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// DestroyQuest permanently expires a quest.
func (c *Client) DestroyQuest(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/quests/"+url.PathEscape(id), nil, nil)
}

// QuestStats returns streaks and totals for a quest.
func (c *Client) QuestStats(ctx context.Context, id string) (QuestStats, error) {
	var resp QuestStats
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/quests/%s/stats", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Player returns coin, XP and level totals.
func (c *Client) Player(ctx context.Context) (Player, error) {
	var resp Player
	err := c.do(ctx, http.MethodGet, "v0/player", nil, &resp)
	return resp, err
}

// SyncInitial runs a first calendar import.
func (c *Client) SyncInitial(ctx context.Context) (SyncResult, error) {
	var resp SyncResult
	err := c.do(ctx, http.MethodPost, "v0/sync/initial", nil, &resp)
	return resp, err
}

// SyncIncremental applies calendar changes since the last sync.
func (c *Client) SyncIncremental(ctx context.Context) (SyncResult, error) {
	var resp SyncResult
	err := c.do(ctx, http.MethodPost, "v0/sync/incremental", nil, &resp)
	return resp, err
}

// Events returns recent activity log entries.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
