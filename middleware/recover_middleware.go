package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"peer-rpc/message"
)

// RecoverMiddleware turns a panicking local method into an error reply so one
// bad call does not take down the goroutine driving the connection.
func RecoverMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (reply *message.Reply) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("rpc method panicked",
						"method", req.Name(),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					reply = &message.Reply{Error: fmt.Sprintf("method %s panicked: %v", req.Name(), r)}
				}
			}()
			return next(ctx, req)
		}
	}
}
