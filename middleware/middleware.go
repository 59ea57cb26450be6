// Package middleware wraps the local dispatch of inbound calls.
//
// A chain runs on the goroutine driving the connection, between frame
// decoding and the local method. Whatever Reply the chain returns is encoded
// and queued as the reply frame.
package middleware

import (
	"context"

	"peer-rpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Reply

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
