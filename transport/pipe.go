package transport

import (
	"sync"
	"sync/atomic"
)

// Pipe is one end of an in-process transport pair. Closing either end
// closes both, like net.Pipe.
type Pipe struct {
	inbox
	peer   *Pipe
	shared *pipeState
}

type pipeState struct {
	closed atomic.Bool
	once   sync.Once
}

// NewPipe returns two connected ends.
func NewPipe() (*Pipe, *Pipe) {
	st := &pipeState{}
	a := &Pipe{shared: st}
	b := &Pipe{shared: st}
	a.peer, b.peer = b, a
	return a, b
}

// Send copies frame into the peer's inbox.
func (p *Pipe) Send(frame []byte) error {
	if p.shared.closed.Load() {
		return ErrClosed
	}
	cp := append([]byte(nil), frame...)
	if !p.peer.push(cp) {
		return ErrClosed
	}
	return nil
}

func (p *Pipe) Close() error {
	p.shared.once.Do(func() {
		p.shared.closed.Store(true)
		p.inbox.close(ErrClosed)
		p.peer.inbox.close(ErrClosed)
	})
	return nil
}
