// Package message defines the decoded form of an inbound call and the reply
// a local dispatcher produces for it.
//
// A Request is built by the connection from one call frame. The Reply is
// encoded into a reply frame that echoes the request's CallID and Counter.
package message

import (
	"strconv"

	"peer-rpc/codec"
)

// Request carries one inbound call.
//
//   - Typed call:   CallID names the method; Method is filled when the dispatcher knows the name.
//   - Generic call: Generic is set and Method carries the name the caller asked for.
type Request struct {
	CallID  uint32
	Counter uint32
	Method  string
	Generic bool
	Args    [][]byte    // one codec-encoded segment per argument
	Codec   codec.Codec // codec the peer encoded Args with
}

// Name returns a printable method name for logs and spans.
func (r *Request) Name() string {
	if r.Method != "" {
		return r.Method
	}
	return "#" + strconv.FormatUint(uint64(r.CallID), 10)
}

// Reply is the outcome of a dispatched call.
//
//   - On success: Value is encoded with the connection codec, Error is empty.
//   - On failure: Error is non-empty and Value is ignored.
type Reply struct {
	Value any
	Error string
}

// Failed builds an error reply.
func Failed(err error) *Reply {
	return &Reply{Error: err.Error()}
}
