package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peer-rpc/client"
	"peer-rpc/codec"
	"peer-rpc/message"
	"peer-rpc/middleware"
	"peer-rpc/registry"
	"peer-rpc/rpc"
)

type Arith interface {
	Add(a, b int) int
	Divide(a, b int) (int, error)
}

type arith struct{}

func (arith) Add(a, b int) int { return a + b }

func (arith) Divide(a, b int) (int, error) {
	if b == 0 {
		return 0, errors.New("divide by zero")
	}
	return a / b, nil
}

// Notifier is served by clients so the server can call back into them.
type Notifier interface {
	Notify(msg string) string
}

type notifier struct{ got chan string }

func (n *notifier) Notify(msg string) string {
	n.got <- msg
	return "ack " + msg
}

var discard = slog.New(slog.DiscardHandler)

func startServer(t *testing.T, reg registry.Registry, opts ...Option) (*Server, string) {
	t.Helper()
	opts = append([]Option{WithLogger(discard), WithPollInterval(10 * time.Millisecond)}, opts...)
	svr := NewServer(opts...)
	require.NoError(t, Register[Arith](svr, arith{}))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()

	served := make(chan error, 1)
	go func() { served <- svr.ServeListener(l, "", reg) }()
	t.Cleanup(func() {
		_ = svr.Shutdown(3 * time.Second)
		assert.NoError(t, <-served)
	})
	return svr, addr
}

func TestServerServesCalls(t *testing.T) {
	for _, cd := range []codec.Codec{&codec.JSONCodec{}, &codec.BinaryCodec{}} {
		t.Run(cd.Type().String(), func(t *testing.T) {
			_, addr := startServer(t, nil, WithCodec(cd))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			peer, err := client.Dial(ctx, "tcp", addr, nil, rpc.MustTable[Arith](),
				client.WithCodec(cd), client.WithLogger(discard))
			require.NoError(t, err)
			defer peer.Close()

			sum, err := client.Call[int](ctx, peer, "Add", 1, 2)
			require.NoError(t, err)
			assert.Equal(t, 3, sum)

			sum, err = client.Call[int](ctx, peer, "Add", 10, 20)
			require.NoError(t, err)
			assert.Equal(t, 30, sum)

			_, err = client.Call[int](ctx, peer, "Divide", 1, 0)
			var remote *rpc.RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, "divide by zero", remote.Message)
		})
	}
}

func TestServerRunsMiddleware(t *testing.T) {
	svr := NewServer(WithLogger(discard))
	require.NoError(t, Register[Arith](svr, arith{}))
	svr.Use(middleware.LoggingMiddleware(discard))
	svr.Use(middleware.RateLimitMiddleware(1, 1))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go svr.ServeListener(l, "", nil)
	defer svr.Shutdown(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := client.Dial(ctx, "tcp", l.Addr().String(), nil, rpc.MustTable[Arith](), client.WithLogger(discard))
	require.NoError(t, err)
	defer peer.Close()

	// the second call in the same instant exceeds a burst of one
	f1, err := client.Go[int](peer, "Add", 1, 1)
	require.NoError(t, err)
	f2, err := client.Go[int](peer, "Add", 2, 2)
	require.NoError(t, err)

	v, err := f1.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, err = f2.Wait(ctx)
	var remote *rpc.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "rate limit")
}

func TestServerCallsBackIntoClient(t *testing.T) {
	connected := make(chan *rpc.Connection, 1)
	_, addr := startServer(t, nil,
		WithRemote(rpc.MustTable[Notifier]()),
		OnConnect(func(c *rpc.Connection) { connected <- c }),
	)

	n := &notifier{got: make(chan string, 1)}
	local, err := rpc.NewService[Notifier](n)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := client.Dial(ctx, "tcp", addr, local, rpc.MustTable[Arith](), client.WithLogger(discard))
	require.NoError(t, err)
	defer peer.Close()

	var conn *rpc.Connection
	select {
	case conn = <-connected:
	case <-ctx.Done():
		t.Fatal("server never saw the connection")
	}

	call, err := rpc.NewCall[string](conn, "Notify", "hello")
	require.NoError(t, err)
	ack, err := call.Future().Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ack hello", ack)
	assert.Equal(t, "hello", <-n.got)
}

func TestServerRegistersAndDeregisters(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	svr := NewServer(WithLogger(discard), WithCodec(&codec.BinaryCodec{}))
	require.NoError(t, Register[Arith](svr, arith{}))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- svr.ServeListener(l, "", reg) }()

	ctx := context.Background()
	require.Eventually(t, func() bool {
		_, err := reg.Discover(ctx, svr.ServiceName())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	instances, err := reg.Discover(ctx, svr.ServiceName())
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, l.Addr().String(), instances[0].Addr)
	assert.Equal(t, "binary", instances[0].Codec)

	require.NoError(t, svr.Shutdown(time.Second))
	require.NoError(t, <-served)

	_, err = reg.Discover(ctx, svr.ServiceName())
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestShutdownFailsPendingClientCalls(t *testing.T) {
	svr := NewServer(WithLogger(discard))
	// a dispatcher that never replies keeps the call pending
	svr.Handle("Silent", rpc.DispatcherFunc(func(context.Context, *message.Request) *message.Reply { return nil }))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go svr.ServeListener(l, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := client.Dial(ctx, "tcp", l.Addr().String(), nil, rpc.MustTable[Arith](), client.WithLogger(discard))
	require.NoError(t, err)
	defer peer.Close()

	f, err := client.Go[int](peer, "Add", 1, 2)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return svr.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, svr.Shutdown(2*time.Second))

	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, rpc.ErrTransportClosed)
	<-peer.Done()
}

func TestServeWithoutService(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, NewServer().ServeListener(l, "", nil), ErrNoService)
}

func TestWebSocketHandler(t *testing.T) {
	svr := NewServer(WithLogger(discard))
	require.NoError(t, Register[Arith](svr, arith{}))
	defer svr.Shutdown(time.Second)

	hs := httptest.NewServer(svr.WebSocketHandler())
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, err := client.DialWebSocket(ctx, "ws"+strings.TrimPrefix(hs.URL, "http"), nil, rpc.MustTable[Arith](),
		client.WithLogger(discard))
	require.NoError(t, err)
	defer peer.Close()

	q, err := client.Call[int](ctx, peer, "Divide", 9, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, q)
}
