package server

import (
	"net/http"

	"github.com/frontlinehq/frontline/internal/api"
	"github.com/frontlinehq/frontline/internal/api/handlers"
	"github.com/frontlinehq/frontline/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	APIToken          string
	EscalationHandler *handlers.EscalationHandler
	KnowledgeHandler  *handlers.KnowledgeHandler
	DecisionHandler   *handlers.DecisionHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(cfg.APIToken))

		r.Route("/help-requests", func(r chi.Router) {
			r.Post("/", cfg.EscalationHandler.Create)
			r.Get("/", cfg.EscalationHandler.List)
			r.Post("/check-updates", cfg.EscalationHandler.CheckUpdates)
			r.Get("/{id}", cfg.EscalationHandler.Get)
			r.Post("/{id}/resolve", cfg.EscalationHandler.Resolve)
			r.Post("/{id}/timeout", cfg.EscalationHandler.Timeout)
		})

		r.Route("/knowledge", func(r chi.Router) {
			r.Post("/", cfg.KnowledgeHandler.Create)
			r.Get("/", cfg.KnowledgeHandler.List)
			r.Get("/{id}", cfg.KnowledgeHandler.Get)
			r.Put("/{id}", cfg.KnowledgeHandler.Update)
			r.Delete("/{id}", cfg.KnowledgeHandler.Delete)
		})

		r.Post("/agent/decide", cfg.DecisionHandler.Decide)
	})

	return r
}
