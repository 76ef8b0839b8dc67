package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/notify"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
)

// LivezHandler always reports ok while the process serves requests.
//
//	@Summary		Liveness probe
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"Process is up"
//	@Router			/livez [get]
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// ReadyzHandler checks the database and, when it can be pinged, the notifier.
//
//	@Summary		Readiness probe
//	@Description	Pings the database and the notification backend.
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"Ready"
//	@Failure		503	{object}	authsdk.HealthResponse	"A dependency is down"
//	@Router			/readyz [get]
func ReadyzHandler(startTime time.Time, version string, st store.Store, notifier notify.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{Database: "ok"}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if p, ok := notifier.(pinger); ok {
			checks.Notifier = "ok"
			if err := p.Ping(r.Context()); err != nil {
				checks.Notifier = "error: " + err.Error()
				overallStatus = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		response := authsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
