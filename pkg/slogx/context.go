package slogx

import (
	"context"
	"log/slog"
	"sync"
)

type ctxKey struct{}

type fieldsKey struct{}

// requestFields collects attributes added while a request is being handled so
// the completion line can carry them too.
type requestFields struct {
	mu   sync.Mutex
	args []any
}

func (f *requestFields) add(args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.args = append(f.args, args...)
}

func (f *requestFields) snapshot() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.args...)
}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// With returns ctx carrying the contextual logger extended with args. Inside
// HTTPMiddleware the args are also added to the request's completion line.
func With(ctx context.Context, args ...any) context.Context {
	if f, ok := ctx.Value(fieldsKey{}).(*requestFields); ok {
		f.add(args...)
	}
	return WithContext(ctx, FromContext(ctx).With(args...))
}
