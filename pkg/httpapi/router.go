// Package httpapi exposes the orchestrator over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	metricsx "github.com/yixiaowang2001/game-sage-agent/agent/metrics"
)

type Config struct {
	Addr           string        `split_words:"true" default:":8080"`
	AllowedOrigins []string      `split_words:"true" default:"*"`
	RequestTimeout time.Duration `split_words:"true" default:"5m"`
}

func NewRouter(cfg Config, h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", metricsx.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/platforms", h.ListPlatforms)
		v1.With(chimw.Timeout(requestTimeout(cfg))).Post("/ask", h.Ask)
		v1.Get("/sessions", h.ListSessions)
		v1.Get("/sessions/{id}", h.GetSession)
	})

	return r
}

func requestTimeout(cfg Config) time.Duration {
	if cfg.RequestTimeout <= 0 {
		return 5 * time.Minute
	}
	return cfg.RequestTimeout
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("request_id", chimw.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(started)).
				Msg("http request")
		})
	}
}
