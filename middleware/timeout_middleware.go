package middleware

import (
	"context"
	"time"

	"peer-rpc/message"
)

// TimeOutMiddleware bounds how long the driving goroutine waits for a local
// method. The method keeps running after the deadline; its late reply is dropped.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Reply {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Reply, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return &message.Reply{
					Error: "request timed out",
				}
			}
		}
	}
}
