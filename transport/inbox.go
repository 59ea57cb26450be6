package transport

import (
	"sync"
	"sync/atomic"
)

// inbox buffers received frames until the connection polls for them.
type inbox struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	err    error

	notify atomic.Pointer[func()]
}

func (in *inbox) SetNotify(fn func()) {
	in.notify.Store(&fn)
}

func (in *inbox) wake() {
	if fn := in.notify.Load(); fn != nil && *fn != nil {
		(*fn)()
	}
}

func (in *inbox) push(frame []byte) bool {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return false
	}
	in.frames = append(in.frames, frame)
	in.mu.Unlock()
	in.wake()
	return true
}

// close marks the inbox closed; frames already queued are still delivered.
func (in *inbox) close(err error) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	in.err = err
	in.mu.Unlock()
	in.wake()
}

func (in *inbox) Receive() ([]byte, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.frames) > 0 {
		frame := in.frames[0]
		in.frames[0] = nil
		in.frames = in.frames[1:]
		return frame, true
	}
	if in.closed {
		return nil, false
	}
	return nil, true
}

// Err returns the error that closed the transport, if any.
func (in *inbox) Err() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.err
}

// Pending returns the number of frames waiting to be received.
func (in *inbox) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.frames)
}
