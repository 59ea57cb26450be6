package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportClosed resolves every call still pending when the inbound
	// loop finds the transport closed.
	ErrTransportClosed = errors.New("rpc: transport closed")

	// ErrConnectionClosed resolves calls committed after Close.
	ErrConnectionClosed = errors.New("rpc: connection closed")

	// ErrDoubleCommit is the panic value for a second Async or Future on one call.
	ErrDoubleCommit = errors.New("rpc: call already committed")

	// ErrKeyCollision is the panic value for registering a reply key twice.
	ErrKeyCollision = errors.New("rpc: reply key already registered")

	ErrUnknownMethod = errors.New("rpc: unknown method")
	ErrNoRemoteTable = errors.New("rpc: connection has no remote method table")
)

// EncodingError reports an argument or result the codec could not encode.
type EncodingError struct {
	Arg int // argument index, -1 for a result
	Err error
}

func (e *EncodingError) Error() string {
	if e.Arg < 0 {
		return fmt.Sprintf("rpc: encode result: %v", e.Err)
	}
	return fmt.Sprintf("rpc: encode argument %d: %v", e.Arg, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DecodingError reports a frame body the codec could not decode.
type DecodingError struct {
	What string
	Err  error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("rpc: decode %s: %v", e.What, e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// RemoteError carries the failure reported by the peer's method.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "rpc: remote: " + e.Message
}

// ArgumentError reports a call whose arguments or result type do not match
// the remote method signature.
type ArgumentError struct {
	Method string
	Index  int // -1 when the whole argument list or the result is at fault
	Reason string
	Err    error // underlying sentinel, if any
}

func (e *ArgumentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("rpc: method %s: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("rpc: method %s: argument %d: %s", e.Method, e.Index, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return e.Err }
