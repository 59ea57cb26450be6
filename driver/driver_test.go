package driver

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"peer-rpc/rpc"
	"peer-rpc/transport"
)

type Greeter interface {
	Greet(name string) string
}

type greeter struct{}

func (greeter) Greet(name string) string { return "hello " + name }

func newPair(t *testing.T) (client, server *rpc.Connection) {
	t.Helper()
	a, b := transport.NewPipe()
	svc, err := rpc.NewService[Greeter](greeter{})
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	client = rpc.NewConnection(a, nil, rpc.MustTable[Greeter](), rpc.WithLogger(logger))
	server = rpc.NewConnection(b, svc, nil, rpc.WithLogger(logger))
	return client, server
}

func TestRunServesCallsUntilDisconnect(t *testing.T) {
	client, server := newPair(t)

	var disconnects atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return Run(ctx, client, OnDisconnect(func() { disconnects.Add(1) })) })
	g.Go(func() error { return Run(ctx, server, WithPollInterval(10*time.Millisecond)) })

	for _, name := range []string{"a", "b", "c"} {
		call, err := rpc.NewCall[string](client, "Greet", name)
		require.NoError(t, err)
		got, err := call.Future().Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "hello "+name, got)
	}

	require.NoError(t, server.Close())
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), disconnects.Load())
	assert.True(t, client.Disconnected())
}

func TestRunPendingCallFailsOnDisconnect(t *testing.T) {
	client, _ := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// the server side is never driven, so the call stays pending
	call, err := rpc.NewCall[string](client, "Greet", "x")
	require.NoError(t, err)
	f := call.Future()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, client) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, client.Transport().Close())

	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, rpc.ErrTransportClosed)
	assert.NoError(t, <-done)
}

func TestRunResolvesCallsCommittedWhileDisconnecting(t *testing.T) {
	const (
		rounds    = 100
		producers = 4
		perRound  = 25
	)
	for round := 0; round < rounds; round++ {
		client, server := newPair(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		done := make(chan error, 1)
		go func() { done <- Run(ctx, client) }()

		var (
			mu      sync.Mutex
			futures []*rpc.Future[string]
			g       errgroup.Group
		)
		for p := 0; p < producers; p++ {
			g.Go(func() error {
				for i := 0; i < perRound; i++ {
					call, err := rpc.NewCall[string](client, "Greet", "x")
					if err != nil {
						return err
					}
					f := call.Future()
					mu.Lock()
					futures = append(futures, f)
					mu.Unlock()
				}
				return nil
			})
		}
		require.NoError(t, server.Close())
		require.NoError(t, g.Wait())
		require.NoError(t, <-done)

		for i, f := range futures {
			select {
			case <-f.Done():
			case <-time.After(time.Second):
				t.Fatalf("round %d: call %d never resolved", round, i)
			}
			res, _ := f.Result()
			assert.ErrorIs(t, res.Err, rpc.ErrTransportClosed)
		}
		cancel()
	}
}

func TestRunStopsWhenContextDone(t *testing.T) {
	client, _ := newPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, client, WithPollInterval(5*time.Millisecond)) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReturnsAtOnceWhenAlreadyDisconnected(t *testing.T) {
	client, _ := newPair(t)
	require.NoError(t, client.Transport().Close())
	client.Process(rpc.In)

	assert.NoError(t, Run(context.Background(), client))
}
