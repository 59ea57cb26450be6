package rpc

import (
	"reflect"
	"runtime"

	"peer-rpc/protocol"
)

// Call is one outgoing invocation under construction. Its buffer starts with
// a reserved header and holds the serialized arguments behind it.
//
// A Call must be committed exactly once with Async or Future. Close commits
// an uncommitted call with a discarding handler, so a fully built call is
// still transmitted; a finalizer does the same for calls dropped without
// Close. A Call is not safe for concurrent use.
type Call[R any] struct {
	conn       *Connection
	buf        *protocol.Buffer
	slot       protocol.Slot
	serialized bool
	committed  bool
}

// NewCall starts a call to the remote method named method, checking args and
// R against the connection's remote table.
func NewCall[R any](c *Connection, method string, args ...any) (*Call[R], error) {
	if c.remote == nil {
		return nil, ErrNoRemoteTable
	}
	m, ok := c.remote.Lookup(method)
	if !ok {
		return nil, &ArgumentError{Method: method, Index: -1, Reason: "unknown method", Err: ErrUnknownMethod}
	}
	if err := m.checkResult(reflect.TypeFor[R]()); err != nil {
		return nil, err
	}
	bound, err := m.bindArgs(args)
	if err != nil {
		return nil, err
	}
	call := newCall[R](c, m.ID)
	if err := call.serializeParams(bound); err != nil {
		return nil, err
	}
	return call, nil
}

// NewCallID starts a call to a raw method id without any signature check.
func NewCallID[R any](c *Connection, id uint32, args ...any) (*Call[R], error) {
	call := newCall[R](c, id)
	if err := call.serializeParams(args); err != nil {
		return nil, err
	}
	return call, nil
}

// CallGeneric starts a call dispatched by name on the peer, for methods not
// known at compile time.
func (c *Connection) CallGeneric(name string, args ...any) (*Call[any], error) {
	call := newCall[any](c, protocol.GenericCallID)
	call.buf.WriteString(name)
	if err := call.serializeParams(args); err != nil {
		return nil, err
	}
	return call, nil
}

func newCall[R any](c *Connection, callID uint32) *Call[R] {
	buf := protocol.NewBuffer(128)
	slot := buf.Reserve(callID, false)
	return &Call[R]{conn: c, buf: buf, slot: slot}
}

func (call *Call[R]) serializeParams(args []any) error {
	if err := writeArgs(call.buf, call.conn.codec, args); err != nil {
		return err
	}
	call.serialized = true
	runtime.SetFinalizer(call, (*Call[R]).finalize)
	return nil
}

// Async commits the call. handler runs exactly once, on the goroutine that
// decodes the reply or aborts the connection.
func (call *Call[R]) Async(handler func(Result[R])) {
	if call.committed {
		panic(ErrDoubleCommit)
	}
	call.committed = true
	runtime.SetFinalizer(call, nil)

	cd := call.conn.codec
	call.conn.commit(call.buf, call.slot, func(body []byte, err error) {
		handler(decodeResult[R](cd, body, err))
	})
}

// Future commits the call and returns the future its result resolves.
func (call *Call[R]) Future() *Future[R] {
	f := newFuture[R]()
	call.Async(f.resolve)
	return f
}

// Close commits the call with a discarding handler unless it was already
// committed. Calling Close more than once is a no-op.
func (call *Call[R]) Close() {
	if call.committed || !call.serialized {
		return
	}
	call.Async(func(Result[R]) {})
}

func (call *Call[R]) finalize() {
	call.Close()
}

// Committed reports whether Async, Future or Close has committed the call.
func (call *Call[R]) Committed() bool { return call.committed }
