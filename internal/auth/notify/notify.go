// Package notify delivers one-time codes to users out of band.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
)

// Message is a single code addressed to an email.
type Message struct {
	Kind  Kind
	Email string
	Code  string
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the logger. Only meant for local development
// since the code ends up in the log stream.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.Logger.InfoContext(ctx, "notification",
		"kind", msg.Kind,
		"email", msg.Email,
		"code", msg.Code,
	)
	return nil
}

// DefaultStream is the redis stream the mailer consumes from.
const DefaultStream = "gatekeep:notifications"

// RedisNotifier appends messages to a redis stream for a mailer to pick up.
type RedisNotifier struct {
	Client redis.Cmdable
	Stream string
	MaxLen int64 // 0 keeps every entry
	Now    func() time.Time
}

func NewRedisNotifier(client redis.Cmdable, stream string) *RedisNotifier {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisNotifier{
		Client: client,
		Stream: stream,
		MaxLen: 10_000,
		Now:    time.Now,
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, msg Message) error {
	err := n.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.Stream,
		MaxLen: n.MaxLen,
		Values: map[string]any{
			"kind":      string(msg.Kind),
			"email":     msg.Email,
			"code":      msg.Code,
			"issued_at": n.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue %s notification: %w", msg.Kind, err)
	}
	return nil
}

// Ping reports whether the stream backend is reachable.
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.Client.Ping(ctx).Err()
}

// Connect builds a client from either a redis:// URL or a bare host:port.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	var client *redis.Client
	if opt, err := redis.ParseURL(addr); err == nil {
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return client, nil
}
