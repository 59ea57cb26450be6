// Package driver runs the processing loop of one connection on the calling
// goroutine, so the application does not have to schedule Process itself.
//
// The loop wakes when a call is committed (out-signal), when the transport
// reports new inbound data (transport.Notifier), or on a polling tick, and
// runs Process(Both) each time. It returns once the transport is seen closed
// or ctx is done.
package driver

import (
	"context"
	"time"

	"peer-rpc/rpc"
	"peer-rpc/transport"
)

const defaultPollInterval = 100 * time.Millisecond

type options struct {
	pollInterval time.Duration
	onDisconnect func()
}

type Option func(*options)

// WithPollInterval sets the fallback tick for transports that cannot notify.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// OnDisconnect runs fn once when the connection's transport closes.
func OnDisconnect(fn func()) Option {
	return func(o *options) { o.onDisconnect = fn }
}

// Run drives conn until its transport closes (returns nil) or ctx is done
// (returns ctx.Err()). Run installs the connection's out-signal, and its
// disconnect-signal when OnDisconnect is given. It must be the only
// goroutine calling conn.Process.
func Run(ctx context.Context, conn *rpc.Connection, opts ...Option) error {
	o := options{pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}

	wake := make(chan struct{}, 1)
	signal := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}
	conn.SetOutSignal(signal)
	if n, ok := conn.Transport().(transport.Notifier); ok {
		n.SetNotify(signal)
	}

	if o.onDisconnect != nil {
		conn.SetDisconnectSignal(o.onDisconnect)
	}

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		conn.Process(rpc.Both)
		if conn.Disconnected() {
			return nil
		}

		select {
		case <-ctx.Done():
			// flush replies and calls queued before cancellation
			conn.Process(rpc.Out)
			return ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}
