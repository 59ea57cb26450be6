package rpc

import (
	"fmt"
	"sort"
)

// replyHandler receives the reply body (status byte onwards) or the error
// that ended the call without a reply.
type replyHandler func(body []byte, err error)

// replies correlates in-flight call keys with their handlers.
// It is only touched by the goroutine driving Process.
type replies struct {
	pending map[uint64]replyHandler
}

func newReplies() replies {
	return replies{pending: make(map[uint64]replyHandler)}
}

func (r *replies) add(key uint64, h replyHandler) {
	if _, dup := r.pending[key]; dup {
		panic(fmt.Errorf("%w: %#x", ErrKeyCollision, key))
	}
	r.pending[key] = h
}

func (r *replies) take(key uint64) (replyHandler, bool) {
	h, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	return h, ok
}

// abort fails every pending handler with err, oldest counter first, and
// leaves the correlator empty.
func (r *replies) abort(err error) int {
	if len(r.pending) == 0 {
		return 0
	}
	pending := r.pending
	r.pending = make(map[uint64]replyHandler)

	keys := make([]uint64, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return uint32(keys[i]) < uint32(keys[j])
	})
	for _, k := range keys {
		pending[k](nil, err)
	}
	return len(keys)
}

func (r *replies) len() int {
	return len(r.pending)
}
