package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// LoggerContextKey holds the request-scoped logger.
	LoggerContextKey ContextKey = "logger"
)

// RequestLogger attaches a logger carrying the request id to the context
// and logs each request once it completes.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := base.With("request_id", middleware.GetReqID(r.Context()))
			ctx := context.WithValue(r.Context(), LoggerContextKey, log)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}

// loggerFrom returns the request-scoped logger, or fallback.
func loggerFrom(r *http.Request, fallback *slog.Logger) *slog.Logger {
	if log, ok := r.Context().Value(LoggerContextKey).(*slog.Logger); ok {
		return log
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
