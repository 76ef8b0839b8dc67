// Package telemetry holds the OpenTelemetry instruments recorded by the auth
// services. A nil *Metrics is valid and records nothing.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/aussiebroadwan/gatekeep/auth"

type Metrics struct {
	RateLimited        metric.Int64Counter
	SessionsCreated    metric.Int64Counter
	SessionsRenewed    metric.Int64Counter
	VerificationFailed metric.Int64Counter
	RecoveryCodeUsed   metric.Int64Counter
	HousekeepingPurged metric.Int64Counter
}

// New registers the instruments on provider. A nil provider falls back to a
// no-op one.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &Metrics{}
	var err error

	m.RateLimited, err = meter.Int64Counter(
		"auth.rate_limit.rejected",
		metric.WithDescription("Requests rejected by a rate limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.rejected counter: %w", err)
	}

	m.SessionsCreated, err = meter.Int64Counter(
		"auth.session.created",
		metric.WithDescription("Sessions issued"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.created counter: %w", err)
	}

	m.SessionsRenewed, err = meter.Int64Counter(
		"auth.session.renewed",
		metric.WithDescription("Sessions slid forward during validation"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.renewed counter: %w", err)
	}

	m.VerificationFailed, err = meter.Int64Counter(
		"auth.verification.failed",
		metric.WithDescription("Rejected codes, passwords and authenticator entries"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification.failed counter: %w", err)
	}

	m.RecoveryCodeUsed, err = meter.Int64Counter(
		"auth.recovery_code.used",
		metric.WithDescription("Second factor resets performed with a recovery code"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create recovery_code.used counter: %w", err)
	}

	m.HousekeepingPurged, err = meter.Int64Counter(
		"auth.housekeeping.purged",
		metric.WithDescription("Expired rows and idle limiter entries removed"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create housekeeping.purged counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordRateLimited(ctx context.Context, limiter string) {
	if m == nil {
		return
	}
	m.RateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("limiter", limiter)))
}

func (m *Metrics) RecordSessionCreated(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.SessionsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordSessionRenewed(ctx context.Context) {
	if m == nil {
		return
	}
	m.SessionsRenewed.Add(ctx, 1)
}

// RecordVerificationFailed counts a rejected secret. kind is one of
// "password", "email_code", "reset_code", "totp" or "recovery_code".
func (m *Metrics) RecordVerificationFailed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.VerificationFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordRecoveryCodeUsed(ctx context.Context) {
	if m == nil {
		return
	}
	m.RecoveryCodeUsed.Add(ctx, 1)
}

func (m *Metrics) RecordHousekeepingPurged(ctx context.Context, target string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.HousekeepingPurged.Add(ctx, n, metric.WithAttributes(attribute.String("target", target)))
}
