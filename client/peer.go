package client

import (
	"context"

	"peer-rpc/driver"
	"peer-rpc/rpc"
	"peer-rpc/transport"
)

// Peer is a connection driven on its own goroutine. Calls may be committed
// on it from any goroutine and awaited with Future.Wait.
type Peer struct {
	conn   *rpc.Connection
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func start(t transport.Transport, local rpc.Dispatcher, remote *rpc.Table, o options) *Peer {
	conn := rpc.NewConnection(t, local, remote,
		rpc.WithCodec(o.codec),
		rpc.WithLogger(o.logger),
		rpc.WithMiddleware(o.middlewares...),
	)
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{conn: conn, cancel: cancel, done: make(chan struct{})}

	var dopts []driver.Option
	if o.pollInterval > 0 {
		dopts = append(dopts, driver.WithPollInterval(o.pollInterval))
	}
	go func() {
		defer close(p.done)
		p.err = driver.Run(ctx, conn, dopts...)
	}()
	return p
}

func (p *Peer) Conn() *rpc.Connection { return p.conn }

// Done is closed once the peer's transport has closed.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Close closes the transport and waits for the driver to fail the calls
// still pending.
func (p *Peer) Close() error {
	err := p.conn.Close()
	<-p.done
	p.cancel()
	return err
}

// Err is the driver's exit error once Done is closed.
func (p *Peer) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Call invokes method on the peer and waits for its result.
func Call[R any](ctx context.Context, p *Peer, method string, args ...any) (R, error) {
	call, err := rpc.NewCall[R](p.conn, method, args...)
	if err != nil {
		var zero R
		return zero, err
	}
	return call.Future().Wait(ctx)
}

// Go invokes method on the peer without waiting.
func Go[R any](p *Peer, method string, args ...any) (*rpc.Future[R], error) {
	call, err := rpc.NewCall[R](p.conn, method, args...)
	if err != nil {
		return nil, err
	}
	return call.Future(), nil
}
