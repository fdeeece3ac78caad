package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/autoposter/internal/controller"
	"github.com/unclebandit/autoposter/internal/logging"
)

// NewRouter mounts the admin, ingestion and stats routes.
func NewRouter(posts *controller.PostController, admin *AdminHandler, metrics http.Handler, logger logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", admin.Health)
	r.Get("/config", admin.GetConfig)
	r.Put("/config", admin.PutConfig)
	r.Get("/circuit", admin.Circuit)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Post("/videos/upsert", posts.UpsertVideo)
	r.Post("/events", posts.RecordEvent)

	r.Get("/posts", posts.ListPosts)
	r.Route("/stats/posts", func(r chi.Router) {
		r.Get("/", posts.LatestPosts)
		r.Get("/metrics", posts.PostMetrics)
		r.Get("/recent", posts.RecentPosts)
	})
	return r
}

func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithField("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(logging.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("Handled request")
		})
	}
}
