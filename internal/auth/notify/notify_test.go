package notify_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/gatekeep/internal/auth/notify"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisNotifier_AppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	n := notify.NewRedisNotifier(rdb, "")
	n.Now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, notify.Message{
		Kind: notify.KindPasswordReset, Email: "alice@example.com", Code: "12345678",
	}))
	require.NoError(t, n.Notify(ctx, notify.Message{
		Kind: notify.KindEmailVerification, Email: "bob@example.com", Code: "87654321",
	}))

	entries, err := rdb.XRange(ctx, notify.DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "password_reset", entries[0].Values["kind"])
	require.Equal(t, "alice@example.com", entries[0].Values["email"])
	require.Equal(t, "12345678", entries[0].Values["code"])
	require.Equal(t, "1700000000", entries[0].Values["issued_at"])
	require.Equal(t, "email_verification", entries[1].Values["kind"])
}

func TestRedisNotifier_ReportsFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	n := notify.NewRedisNotifier(rdb, "s")
	require.NoError(t, n.Ping(context.Background()))
	mr.Close()

	err = n.Notify(context.Background(), notify.Message{Kind: notify.KindPasswordReset})
	require.ErrorContains(t, err, "password_reset")
	require.Error(t, n.Ping(context.Background()))
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := notify.Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	client, err = notify.Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := notify.LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, n.Notify(context.Background(), notify.Message{
		Kind: notify.KindEmailVerification, Email: "carol@example.com", Code: "11112222",
	}))
	require.Contains(t, buf.String(), "code=11112222")
	require.Contains(t, buf.String(), "kind=email_verification")
}
