package rpc

import (
	"context"
	"log/slog"

	"peer-rpc/codec"
	"peer-rpc/middleware"
)

type options struct {
	codec       codec.Codec
	logger      *slog.Logger
	middlewares []middleware.Middleware
	id          string
	baseCtx     context.Context
}

type Option func(*options)

// WithCodec sets the argument codec. Both peers must use the same one.
func WithCodec(cd codec.Codec) Option {
	return func(o *options) { o.codec = cd }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMiddleware wraps local dispatch, outermost first.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mw...) }
}

// WithID overrides the generated connection id used in logs.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithBaseContext sets the parent of the context handed to local methods.
func WithBaseContext(ctx context.Context) Option {
	return func(o *options) { o.baseCtx = ctx }
}
