// Package rpc is the connection engine: it turns typed method calls into
// frames sent over a transport, and inbound frames into either dispatched
// local calls or replies to calls made earlier.
//
// No goroutines are started here. Calls may be built and committed from any
// goroutine, but frames only move when the application calls Process:
//
//	caller ──NewCall/Async──┐
//	caller ──CallGeneric────┼──→ outbound queue ──Process(Out)──→ transport.Send
//	caller ──Future─────────┘        (counter, patch header, register reply)
//
//	transport.Receive ──Process(In)──→ reply?  correlator → handler
//	                                  call?   middleware → Dispatcher → reply queued
//
// Exactly one goroutine at a time may run Process for a connection. The
// driver package provides such a loop.
package rpc

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"peer-rpc/codec"
	"peer-rpc/message"
	"peer-rpc/middleware"
	"peer-rpc/protocol"
	"peer-rpc/transport"
)

// Direction selects which half of the I/O path Process services.
type Direction int

const (
	In   Direction = 1 << 0
	Out  Direction = 1 << 1
	Both           = In | Out
)

// Connection owns one peer relationship over a shared transport.
type Connection struct {
	id        string
	transport transport.Transport
	codec     codec.Codec
	local     Dispatcher
	remote    *Table
	handler   middleware.HandlerFunc
	logger    *slog.Logger
	baseCtx   context.Context

	outWork workQueue
	spare   []func()

	// touched only by the goroutine running Process
	counter uint32
	replies replies

	outSignal        atomic.Pointer[func()]
	disconnectSignal atomic.Pointer[func()]

	depth        atomic.Int32
	dead         atomic.Bool // inbound loop saw the transport close
	closed       atomic.Bool // Close was called
	disconnected atomic.Bool // disconnect signal has fired
}

// NewConnection wires a transport to the local dispatcher and the method
// table of the peer's interface. Either may be nil: a nil local answers every
// inbound call with an error, a nil remote allows only NewCallID and
// CallGeneric.
func NewConnection(t transport.Transport, local Dispatcher, remote *Table, opts ...Option) *Connection {
	o := options{
		codec:   &codec.JSONCodec{},
		logger:  slog.Default(),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	c := &Connection{
		id:        o.id,
		transport: t,
		codec:     o.codec,
		local:     local,
		remote:    remote,
		logger:    o.logger.With("conn", o.id),
		baseCtx:   o.baseCtx,
		replies:   newReplies(),
	}
	c.handler = middleware.Chain(o.middlewares...)(c.dispatchLocal)
	return c
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) Codec() codec.Codec { return c.codec }

func (c *Connection) Remote() *Table { return c.remote }

// Transport returns the shared transport handle.
func (c *Connection) Transport() transport.Transport { return c.transport }

// Close closes the transport. Calls committed afterwards fail with
// ErrConnectionClosed; calls already pending fail with ErrTransportClosed on
// the next Process(In).
func (c *Connection) Close() error {
	c.closed.Store(true)
	return c.transport.Close()
}

// SetOutSignal installs a callback run after every commit, from the
// committing goroutine, so a driver loop can be woken.
func (c *Connection) SetOutSignal(fn func()) {
	c.outSignal.Store(&fn)
}

// SetDisconnectSignal installs a callback run on the goroutine running
// Process when the inbound loop finds the transport closed. The signal fires
// at most once per connection: a callback installed after it fired never runs.
func (c *Connection) SetDisconnectSignal(fn func()) {
	c.disconnectSignal.Store(&fn)
}

// Processing reports whether a Process call is in flight.
func (c *Connection) Processing() bool {
	return c.depth.Load() > 0
}

// Disconnected reports whether the transport has been seen closed.
func (c *Connection) Disconnected() bool {
	return c.dead.Load()
}

// Pending returns the number of calls awaiting a reply. It reads state owned
// by the goroutine running Process and must only be called from that
// goroutine, or while no Process call is in flight.
func (c *Connection) Pending() int {
	return c.replies.len()
}

// Queued returns the number of send actions waiting for Process(Out).
func (c *Connection) Queued() int {
	return c.outWork.len()
}

// Process services the outbound queue, the inbound transport, or both.
// With Both, outbound work is flushed again after inbound dispatch so the
// replies it produced leave in the same pass.
func (c *Connection) Process(what Direction) {
	c.depth.Add(1)
	defer c.depth.Add(-1)

	if what&Out != 0 {
		c.processOut()
	}
	if what&In != 0 {
		if !c.processIn(withConnection(c.baseCtx, c)) {
			c.fireDisconnect()
		}
		if what&Out != 0 {
			c.processOut()
		}
	}
}

func (c *Connection) processOut() {
	work := c.outWork.swap(c.spare)
	for i, fn := range work {
		fn()
		work[i] = nil
	}
	c.spare = work
}

// processIn drains the transport. It returns false once the transport is closed.
func (c *Connection) processIn(ctx context.Context) bool {
	for {
		frame, ok := c.transport.Receive()
		if !ok {
			c.dead.Store(true)
			if n := c.replies.abort(ErrTransportClosed); n > 0 {
				c.logger.Info("aborted pending calls", "count", n)
			}
			// commits racing the close either land here or see push fail
			for _, fn := range c.outWork.close() {
				fn()
			}
			return false
		}
		// open, but nothing to read right now
		if len(frame) == 0 {
			return true
		}

		hdr, err := protocol.ParseHeader(frame)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", err, "len", len(frame))
			continue
		}
		body := protocol.WrapBuffer(frame)
		_ = body.Skip(protocol.HeaderSize)

		if hdr.IsReply {
			c.processReply(hdr, body)
		} else {
			c.processCall(ctx, hdr, body)
		}
	}
}

func (c *Connection) processReply(hdr protocol.Header, body *protocol.Buffer) {
	h, ok := c.replies.take(hdr.Key())
	if !ok {
		c.logger.Debug("discarding reply with no pending call",
			"call_id", hdr.CallID,
			"counter", hdr.Counter,
		)
		return
	}
	h(body.Rest(), nil)
}

func (c *Connection) processCall(ctx context.Context, hdr protocol.Header, body *protocol.Buffer) {
	req := &message.Request{
		CallID:  hdr.CallID,
		Counter: hdr.Counter,
		Codec:   c.codec,
	}

	var err error
	if hdr.CallID == protocol.GenericCallID {
		req.Generic = true
		req.Method, err = body.ReadString()
	} else if n, ok := c.local.(interface{ MethodName(uint32) (string, bool) }); ok {
		req.Method, _ = n.MethodName(hdr.CallID)
	}
	if err == nil {
		req.Args, err = readArgs(body)
	}
	if err != nil {
		c.logger.Warn("malformed call body", "call_id", hdr.CallID, "counter", hdr.Counter, "error", err)
		c.enqueueReply(hdr, message.Failed(&DecodingError{What: "call body", Err: err}))
		return
	}

	if reply := c.handler(ctx, req); reply != nil {
		c.enqueueReply(hdr, reply)
	}
}

func (c *Connection) dispatchLocal(ctx context.Context, req *message.Request) *message.Reply {
	if c.local == nil {
		return &message.Reply{Error: "no local interface"}
	}
	return c.local.Dispatch(ctx, req)
}

func (c *Connection) fireDisconnect() {
	if !c.disconnected.CompareAndSwap(false, true) {
		return
	}
	if fn := c.disconnectSignal.Swap(nil); fn != nil && *fn != nil {
		c.logger.Info("transport disconnected")
		(*fn)()
	}
}

func (c *Connection) signalOut() {
	if fn := c.outSignal.Load(); fn != nil && *fn != nil {
		(*fn)()
	}
}

// commit queues a finalized call. Safe from any goroutine.
func (c *Connection) commit(buf *protocol.Buffer, slot protocol.Slot, h replyHandler) {
	if c.closed.Load() {
		h(nil, ErrConnectionClosed)
		return
	}
	// the queue closes once the transport is seen closed
	if !c.outWork.push(func() { c.send(buf, slot, h) }) {
		h(nil, ErrTransportClosed)
		return
	}
	c.signalOut()
}

// send runs inside Process(Out): assign the counter, patch the header,
// register the handler, then hand the frame to the transport.
func (c *Connection) send(buf *protocol.Buffer, slot protocol.Slot, h replyHandler) {
	switch {
	case c.closed.Load():
		h(nil, ErrConnectionClosed)
		return
	case c.dead.Load():
		h(nil, ErrTransportClosed)
		return
	}

	c.counter++
	if c.counter == 0 {
		c.counter++
	}
	slot.Patch(uint32(buf.Len()), c.counter)
	c.replies.add(slot.Header().Key(), h)

	if err := c.transport.Send(buf.Bytes()); err != nil {
		c.logger.Warn("send failed", "call_id", slot.Header().CallID, "counter", c.counter, "error", err)
	}
}

// enqueueReply frames reply so it echoes the call's id and counter, and
// queues it behind any pending calls.
func (c *Connection) enqueueReply(hdr protocol.Header, reply *message.Reply) {
	buf := protocol.NewBuffer(64)
	slot := buf.Reserve(hdr.CallID, true)
	writeReply(buf, c.codec, reply)
	slot.Patch(uint32(buf.Len()), hdr.Counter)

	queued := c.outWork.push(func() {
		if c.dead.Load() || c.closed.Load() {
			return
		}
		if err := c.transport.Send(buf.Bytes()); err != nil {
			c.logger.Warn("reply send failed", "call_id", hdr.CallID, "counter", hdr.Counter, "error", err)
		}
	})
	if queued {
		c.signalOut()
	}
}
