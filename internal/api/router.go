package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/treasury-engine/internal/engine"
	"github.com/example/treasury-engine/internal/rule"
)

// Engine is the rule pipeline surface the handlers call.
type Engine interface {
	ValidateRule(doc *rule.Document) []string
	Preview(ctx context.Context, chatID string, doc *rule.Document) (*engine.RunResult, error)
	Run(ctx context.Context, chatID string, doc *rule.Document) (*engine.RunResult, error)
	Sources(ctx context.Context) ([]string, error)
}

type Dependencies struct {
	Logger *slog.Logger
	Engine Engine

	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 1 << 20

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/rules", func(r chi.Router) {
			r.Post("/validate", handleValidate(deps))
			r.Post("/preview", handlePreview(deps))
			r.Post("/execute", handleExecute(deps))
		})
		r.Get("/sources", handleSources(deps))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r
}
