package slogx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestHTTPMiddlewareAttachesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "test", Format: "json", Output: &buf})

	h := slogx.HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slogx.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inside, done map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inside))
	require.NoError(t, json.Unmarshal(lines[1], &done))

	require.Equal(t, "req-123", inside["req_id"])
	require.Equal(t, "http_request", done["msg"])
	require.EqualValues(t, http.StatusTeapot, done["status"])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	require.NotNil(t, slogx.FromContext(context.Background()))

	ctx := slogx.With(context.Background(), "user_id", "u1")
	require.NotNil(t, slogx.FromContext(ctx))
}

func TestHTTPMiddlewareCarriesDownstreamFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "test", Format: "json", Output: &buf})

	mw := slogx.HTTPMiddleware(logger, slogx.WithSessionCookie("session"))
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = slogx.With(r.Context(), "user_id", "u-42")
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "raw-session-token"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotContains(t, buf.String(), "raw-session-token")

	var done map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &done))
	require.Equal(t, "u-42", done["user_id"])
	require.Equal(t, slogx.SessionRef("raw-session-token"), done["session_ref"])
	require.Len(t, done["session_ref"], 12)
}

func TestRedact(t *testing.T) {
	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Format: "json", Output: &buf, Redact: slogx.SecretKeys})

	logger.Info("signup", "email", "a@example.com", "Password", "hunter2", "recovery_code", "ABCD")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "a@example.com", line["email"])
	require.Equal(t, "[redacted]", line["Password"])
	require.Equal(t, "[redacted]", line["recovery_code"])
	require.NotContains(t, buf.String(), "hunter2")
}
