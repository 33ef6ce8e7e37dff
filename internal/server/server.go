package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"questpilot/internal/calsync"
	"questpilot/internal/domain"
	"questpilot/internal/engine"
	"questpilot/internal/repo"
	"questpilot/internal/schedule"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// Provider backs the sync endpoints; when nil they report that no
	// calendar source is configured.
	Provider calsync.Provider
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"quest not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the QuestPilot API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("QuestPilot API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerQuests(group, cfg.Engine)
	registerStats(group, cfg.Engine)
	registerPlayer(group, cfg.Engine)
	registerSync(group, cfg.Engine, cfg.Provider)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var pe *schedule.ParseError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"value": pe.Value})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "destroyed"):
		return newAPIError(http.StatusConflict, "quest_destroyed", msg, nil)
	case strings.Contains(lowered, "not scheduled"),
		strings.Contains(lowered, "window ended"),
		strings.Contains(lowered, "opens at"):
		return newAPIError(http.StatusUnprocessableEntity, "not_completable", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "not_completable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>QuestPilot API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerQuests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-quest",
		Method:        http.MethodPost,
		Path:          "/quests",
		Summary:       "Create quest",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateQuestRequest `json:"body"`
	}) (*struct {
		Body QuestResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		q, err := e.CreateQuest(ctx, engine.QuestCreateOptions{
			Title:           input.Body.Title,
			Schedule:        input.Body.Schedule,
			StartMinute:     input.Body.StartMinute,
			EndMinute:       input.Body.EndMinute,
			RewardMin:       input.Body.RewardMin,
			RewardMax:       input.Body.RewardMax,
			DurationMinutes: input.Body.DurationMinutes,
			BreakMinutes:    input.Body.BreakMinutes,
			ProofRequired:   input.Body.ProofRequired,
			ProofPrompt:     input.Body.ProofPrompt,
			AutoDestructOn:  input.Body.AutoDestructOn,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body QuestResponse `json:"body"`
		}{Body: questResponse(q)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-quests",
		Method:      http.MethodGet,
		Path:        "/quests",
		Summary:     "List quests with today's status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []DayStatusResponse `json:"body"`
	}, error) {
		items, err := e.ListStatuses(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DayStatusResponse `json:"body"`
		}{Body: mapStatuses(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-quest",
		Method:      http.MethodGet,
		Path:        "/quests/{quest_id}",
		Summary:     "Get quest",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		QuestID string `path:"quest_id"`
	}) (*struct {
		Body DayStatusResponse `json:"body"`
	}, error) {
		q, err := e.Quests.ByID(ctx, input.QuestID)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := e.Status(ctx, q)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DayStatusResponse `json:"body"`
		}{Body: statusResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-quest",
		Method:      http.MethodPost,
		Path:        "/quests/{quest_id}/start",
		Summary:     "Mark quest started",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		QuestID string `path:"quest_id"`
	}) (*struct {
		Body QuestResponse `json:"body"`
	}, error) {
		q, err := e.StartQuest(ctx, input.QuestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body QuestResponse `json:"body"`
		}{Body: questResponse(q)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-quest",
		Method:      http.MethodPost,
		Path:        "/quests/{quest_id}/complete",
		Summary:     "Complete quest for today",
		Errors: []int{
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		QuestID string `path:"quest_id"`
	}) (*struct {
		Body domain.RewardOutcome `json:"body"`
	}, error) {
		out, err := e.CompleteQuest(ctx, input.QuestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RewardOutcome `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "destroy-quest",
		Method:      http.MethodDelete,
		Path:        "/quests/{quest_id}",
		Summary:     "Destroy quest",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		QuestID string `path:"quest_id"`
	}) (*struct{}, error) {
		if err := e.DestroyQuest(ctx, input.QuestID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "quest-stats",
		Method:      http.MethodGet,
		Path:        "/quests/{quest_id}/stats",
		Summary:     "Quest statistics",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		QuestID string `path:"quest_id"`
	}) (*struct {
		Body domain.QuestStats `json:"body"`
	}, error) {
		stats, err := e.QuestStats(ctx, input.QuestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.QuestStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerPlayer(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-player",
		Method:      http.MethodGet,
		Path:        "/player",
		Summary:     "Player totals",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Player `json:"body"`
	}, error) {
		p, err := e.Player(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Player `json:"body"`
		}{Body: p}, nil
	})
}

func registerSync(api huma.API, e engine.Engine, provider calsync.Provider) {
	// One syncer per process; its mutex keeps a single sync in flight.
	var syncer *calsync.Syncer
	if provider != nil {
		syncer = e.NewSyncer(provider)
	}
	run := func(ctx context.Context, incremental bool) (*struct {
		Body calsync.Result `json:"body"`
	}, error) {
		if syncer == nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, "no_calendar_source", "no calendar source configured", nil)
		}
		res := e.RunSync(ctx, syncer, incremental)
		return &struct {
			Body calsync.Result `json:"body"`
		}{Body: res}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "sync-initial",
		Method:      http.MethodPost,
		Path:        "/sync/initial",
		Summary:     "Initial calendar sync",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body calsync.Result `json:"body"`
	}, error) {
		return run(ctx, false)
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-incremental",
		Method:      http.MethodPost,
		Path:        "/sync/incremental",
		Summary:     "Incremental calendar sync",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body calsync.Result `json:"body"`
	}, error) {
		return run(ctx, true)
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Activity log",
	}, func(ctx context.Context, input *struct {
		Limit   int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		Type    string `query:"type"`
		QuestID string `query:"quest_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.EventLog.Latest(ctx, input.Limit, input.Type, input.QuestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
