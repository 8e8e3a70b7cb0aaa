// Package logctx carries a request-scoped logger on the context so layers
// below the HTTP middleware inherit the request id and route fields without
// threading a logger argument everywhere.
package logctx

import (
	"context"

	"github.com/soko-labs/soko-checkout/internal/observability"
)

type ctxKey struct{}

// With attaches logger to ctx. A nil logger leaves the context unchanged.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromOr returns the logger attached to ctx, the fallback when none is
// attached, or a discarding logger when both are absent.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(observability.Logger); ok && logger != nil {
			return logger
		}
	}
	if fallback != nil {
		return fallback
	}
	return observability.NopLogger()
}
