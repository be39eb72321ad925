package flow

import (
	"context"
	"log/slog"
)

type requestIDKey struct{}

type loggerKey struct{}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id in ctx, or "" when there is none.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the logger in ctx. Without one it falls back to
// slog.Default, tagged with the request id when ctx has one.
func Logger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	if id := RequestID(ctx); id != "" {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}

// Start begins a request: it draws an id from gen unless ctx already has
// one, and attaches a logger derived from base that carries the id and op.
func Start(ctx context.Context, gen IDGenerator, base *slog.Logger, op string) (context.Context, string) {
	id := RequestID(ctx)
	if id == "" {
		id = gen.Generate()
		ctx = WithRequestID(ctx, id)
	}
	if base == nil {
		base = slog.Default()
	}
	return WithLogger(ctx, base.With("request_id", id, "op", op)), id
}
