// internal/server/server.go
package server

import (
	"context"
	"libraryhub/internal/config"
	"libraryhub/internal/httpx"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Routes is implemented by each service's HTTP handler.
type Routes interface {
	Register(r chi.Router)
}

// Pinger reports whether the database is reachable; *sqlx.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// New builds the API handler: shared middleware, the health check and every
// service's routes on one router.
func New(cfg config.ServerConfig, logger *slog.Logger, db Pinger, routes ...Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth(db, logger))
	for _, rt := range routes {
		rt.Register(r)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

func handleHealth(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logger.ErrorContext(ctx, "health check failed", "error", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, httpx.StatusResponse{Status: "unavailable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, httpx.StatusResponse{Status: "ok"})
	}
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.InfoContext(r.Context(), "request",
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
