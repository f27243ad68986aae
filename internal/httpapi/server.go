package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tgcast/internal/services/dispatch"
	"tgcast/pkg/logx"
)

// Config tunes the HTTP surface. Zero values use sane defaults.
type Config struct {
	// BodyLimit caps request bodies in bytes. Default 1 MiB.
	BodyLimit int64

	// ListLimit caps GET /tasks responses. Default 200.
	ListLimit int
}

type API struct {
	engine    *dispatch.Service
	log       logx.Logger
	bodyLimit int64
	listLimit int
}

func New(cfg Config, engine *dispatch.Service, log logx.Logger) *API {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = defaultBodyLimit
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 200
	}
	return &API{
		engine:    engine,
		log:       log,
		bodyLimit: cfg.BodyLimit,
		listLimit: cfg.ListLimit,
	}
}

// Router builds the chi mux for the API.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1/tasks", func(r chi.Router) {
		r.Post("/", a.handleCreate)
		r.Get("/", a.handleList)
		r.Delete("/history", a.handleClearHistory)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.handleGet)
			r.Post("/retry", a.handleRetry)
			r.Post("/undo", a.handleUndo)
			r.Post("/metrics/refresh", a.handleRefreshMetrics)
		})
	})

	return r
}
