// Package transport moves whole frames between two peers.
//
// A Transport never blocks the goroutine driving a connection: stream
// transports read frames on a background goroutine into an inbox, and
// Receive only pops from it.
//
//	recvLoop:  conn ──ReadFrame──→ inbox ──Receive──→ Connection.Process(In)
//	Send:      Connection.Process(Out) ──sending lock──→ conn
package transport

import "errors"

var ErrClosed = errors.New("transport: closed")

// Transport is the connection engine's view of the wire.
type Transport interface {
	// Send writes one fully framed message. Frames from one connection are
	// delivered in the order they were sent.
	Send(frame []byte) error

	// Receive returns the next frame, or an empty frame with ok=true when
	// the transport is open but nothing is pending. ok=false means the
	// transport is permanently closed and drained.
	Receive() (frame []byte, ok bool)

	Close() error
}

// Notifier is implemented by transports that can wake a driver when a frame
// arrives or the transport closes.
type Notifier interface {
	SetNotify(fn func())
}
