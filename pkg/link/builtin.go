package link

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/getmockd/mockedprovider/pkg/graphql"
	"github.com/getmockd/mockedprovider/pkg/logging"
)

// Logging logs every operation with its outcome and duration.
func Logging(logger *slog.Logger) Link {
	logger = logging.OrNop(logger)
	return Func(func(ctx context.Context, op *Operation, forward NextLink) *graphql.Response {
		start := time.Now()
		resp := forward(ctx, op)

		attrs := []any{
			"operation", op.Name,
			"type", string(op.Kind),
			"duration", time.Since(start),
		}
		if resp.HasErrors() {
			logger.Warn("graphql operation failed", append(attrs, "errors", len(resp.Errors), "error", resp.Errors[0].Message)...)
		} else {
			logger.Debug("graphql operation", attrs...)
		}
		return resp
	})
}

// RateLimit waits for the limiter before forwarding. Queries and mutations
// share the limiter.
func RateLimit(limiter *rate.Limiter) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) *graphql.Response {
		if err := limiter.Wait(ctx); err != nil {
			return graphql.ErrorResponse("rate limit: " + err.Error())
		}
		return forward(ctx, op)
	})
}

// Delay simulates network latency.
func Delay(d time.Duration) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) *graphql.Response {
		if d <= 0 {
			return forward(ctx, op)
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return graphql.ErrorResponse("request cancelled: " + ctx.Err().Error())
		case <-timer.C:
		}
		return forward(ctx, op)
	})
}

// OnError calls fn with the operation and its errors whenever the response
// carries any. The response is passed through unchanged.
func OnError(fn func(op *Operation, errs []*graphql.Error)) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) *graphql.Response {
		resp := forward(ctx, op)
		if resp.HasErrors() {
			fn(op, resp.Errors)
		}
		return resp
	})
}
