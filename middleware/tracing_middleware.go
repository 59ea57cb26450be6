package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"peer-rpc/message"
)

const tracerName = "peer-rpc"

// TracingMiddleware opens a server span around each dispatched call.
// A nil tracer uses the global provider.
func TracingMiddleware(tracer trace.Tracer) Middleware {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Reply {
			ctx, span := tracer.Start(ctx, "rpc "+req.Name(),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.Int64("rpc.call_id", int64(req.CallID)),
					attribute.Int64("rpc.counter", int64(req.Counter)),
					attribute.Bool("rpc.generic", req.Generic),
				),
			)
			defer span.End()

			reply := next(ctx, req)
			if reply != nil && reply.Error != "" {
				span.SetStatus(codes.Error, reply.Error)
			}
			return reply
		}
	}
}
