package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	goAdmin "github.com/MrEthical07/goAdmin"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// requestID takes X-Request-ID or mints one, echoes it, and forwards it with
// the client IP to the panel's audit context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = goAdmin.WithRequestID(ctx, id)
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ctx = goAdmin.WithClientIP(ctx, host)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				id := getRequestID(r.Context())
				slog.Error("panic recovered", "error", err, "requestId", id)
				fail(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", id)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one structured line per request once it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"requestId", getRequestID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
