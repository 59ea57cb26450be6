package middleware

import (
	"context"
	"log/slog"
	"time"

	"peer-rpc/message"
)

// LoggingMiddleware logs every dispatched call with its duration, and the
// error text when the method failed.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Reply {
			start := time.Now()
			reply := next(ctx, req)
			duration := time.Since(start)
			if reply != nil && reply.Error != "" {
				logger.Warn("rpc call failed",
					"method", req.Name(),
					"counter", req.Counter,
					"duration", duration,
					"error", reply.Error,
				)
				return reply
			}
			logger.Debug("rpc call",
				"method", req.Name(),
				"counter", req.Counter,
				"duration", duration,
			)
			return reply
		}
	}
}
