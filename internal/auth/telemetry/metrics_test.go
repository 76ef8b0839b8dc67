package telemetry_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/gatekeep/internal/auth/telemetry"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Sum[int64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum
			}
		}
	}
	return out
}

func TestMetrics_Record(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.New(provider)
	require.NoError(t, err)

	m.RecordRateLimited(ctx, "login")
	m.RecordRateLimited(ctx, "login")
	m.RecordRateLimited(ctx, "totp")
	m.RecordSessionCreated(ctx, "login")
	m.RecordSessionRenewed(ctx)
	m.RecordRecoveryCodeUsed(ctx)
	m.RecordHousekeepingPurged(ctx, "sessions", 3)
	m.RecordHousekeepingPurged(ctx, "sessions", 0)

	sums := collect(t, reader)

	limited := sums["auth.rate_limit.rejected"]
	require.True(t, limited.IsMonotonic)
	byLimiter := map[string]int64{}
	for _, dp := range limited.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("limiter"))
		byLimiter[v.AsString()] = dp.Value
	}
	require.Equal(t, map[string]int64{"login": 2, "totp": 1}, byLimiter)

	require.Len(t, sums["auth.session.created"].DataPoints, 1)
	require.EqualValues(t, 1, sums["auth.session.renewed"].DataPoints[0].Value)
	require.EqualValues(t, 1, sums["auth.recovery_code.used"].DataPoints[0].Value)
	require.EqualValues(t, 3, sums["auth.housekeeping.purged"].DataPoints[0].Value)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *telemetry.Metrics
	require.NotPanics(t, func() {
		m.RecordRateLimited(context.Background(), "login")
		m.RecordVerificationFailed(context.Background(), "totp")
	})

	noop, err := telemetry.New(nil)
	require.NoError(t, err)
	noop.RecordSessionRenewed(context.Background())
}
