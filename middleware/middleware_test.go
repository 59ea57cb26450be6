package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"peer-rpc/message"
)

// 模拟一个简单的 handler：直接返回成功响应
func echoHandler(ctx context.Context, req *message.Request) *message.Reply {
	return &message.Reply{Value: "ok"}
}

// 模拟一个慢 handler：睡 200ms
func slowHandler(ctx context.Context, req *message.Request) *message.Reply {
	time.Sleep(200 * time.Millisecond)
	return &message.Reply{Value: "ok"}
}

func failingHandler(ctx context.Context, req *message.Request) *message.Reply {
	return &message.Reply{Error: "division by zero"}
}

func panickingHandler(ctx context.Context, req *message.Request) *message.Reply {
	panic("boom")
}

func newRequest() *message.Request {
	return &message.Request{CallID: 1, Counter: 7, Method: "Add"}
}

func TestLogging(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reply := LoggingMiddleware(logger)(echoHandler)(context.Background(), newRequest())
	require.NotNil(t, reply)
	assert.Equal(t, "ok", reply.Value)
	assert.Contains(t, out.String(), "method=Add")

	out.Reset()
	reply = LoggingMiddleware(logger)(failingHandler)(context.Background(), newRequest())
	assert.Equal(t, "division by zero", reply.Error)
	assert.Contains(t, out.String(), "division by zero")
}

func TestTimeoutPass(t *testing.T) {
	// 超时 500ms，handler 很快，应该正常返回
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	reply := handler(context.Background(), newRequest())
	assert.Empty(t, reply.Error)
}

func TestTimeoutExceeded(t *testing.T) {
	// 超时 50ms，handler 需要 200ms，应该超时
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	reply := handler(context.Background(), newRequest())
	assert.Equal(t, "request timed out", reply.Error)
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2 → 前 2 个立刻放行，第 3 个被拒
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		reply := handler(context.Background(), newRequest())
		require.Empty(t, reply.Error, "request %d should pass", i)
	}

	reply := handler(context.Background(), newRequest())
	assert.Equal(t, "rate limit exceeded", reply.Error)
}

func TestRecover(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	reply := RecoverMiddleware(logger)(panickingHandler)(context.Background(), newRequest())
	require.NotNil(t, reply)
	assert.Contains(t, reply.Error, "boom")
}

func TestTracing(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")

	var sawSpan bool
	handler := TracingMiddleware(tracer)(func(ctx context.Context, req *message.Request) *message.Reply {
		sawSpan = ctx != nil
		return failingHandler(ctx, req)
	})

	reply := handler(context.Background(), newRequest())
	assert.True(t, sawSpan)
	assert.Equal(t, "division by zero", reply.Error)
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) *message.Reply {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	handler := Chain(mark("a"), mark("b"), TimeOutMiddleware(500*time.Millisecond))(echoHandler)
	reply := handler(context.Background(), newRequest())

	require.NotNil(t, reply)
	assert.Empty(t, reply.Error)
	assert.Equal(t, []string{"a", "b"}, order)
}
