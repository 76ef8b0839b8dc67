package slogx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/idx"
)

// sessionRefLen is how much of the hashed session id is logged. Enough to
// find the row, not enough to be the row's key.
const sessionRefLen = 12

type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	sessionCookie string
}

// WithSessionCookie logs a session_ref for requests carrying the named cookie.
// The raw token never reaches the log.
func WithSessionCookie(name string) MiddlewareOption {
	return func(c *middlewareConfig) { c.sessionCookie = name }
}

// SessionRef returns the prefix of the stored session id for token.
func SessionRef(token string) string {
	return cryptox.HashToken(token)[:sessionRefLen]
}

// HTTPMiddleware logs each request once it completes and attaches a
// request-scoped logger carrying req_id to the request context.
func HTTPMiddleware(base *slog.Logger, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	var cfg middlewareConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = idx.New().String()
			}
			rw.Header().Set("X-Request-ID", reqID)

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			if cfg.sessionCookie != "" {
				if c, err := r.Cookie(cfg.sessionCookie); err == nil && c.Value != "" {
					logger = logger.With("session_ref", SessionRef(c.Value))
				}
			}

			fields := &requestFields{}
			ctx := context.WithValue(WithContext(r.Context(), logger), fieldsKey{}, fields)
			r = r.WithContext(ctx)

			next.ServeHTTP(rw, r)

			level := slog.LevelInfo
			switch {
			case rw.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case rw.status == http.StatusTooManyRequests:
				level = slog.LevelWarn
			}
			logger.With(fields.snapshot()...).Log(r.Context(), level, "http_request",
				"status", rw.status,
				"bytes", rw.written,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status  int
	written int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}
