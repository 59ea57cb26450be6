package rpc

import "sync"

// workQueue is the outbound FIFO of send actions. Any goroutine may push;
// only the goroutine driving Process swaps it out.
type workQueue struct {
	mu     sync.Mutex
	q      []func()
	closed bool
}

// push queues fn. It reports false once the queue is closed, in which case
// fn was not queued and never runs.
func (w *workQueue) push(fn func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.q = append(w.q, fn)
	return true
}

// swap hands back the queued actions and installs spare (emptied) in their place.
func (w *workQueue) swap(spare []func()) []func() {
	w.mu.Lock()
	q := w.q
	w.q = spare[:0]
	w.mu.Unlock()
	return q
}

// close refuses further pushes and returns whatever was still queued.
func (w *workQueue) close() []func() {
	w.mu.Lock()
	q := w.q
	w.q = nil
	w.closed = true
	w.mu.Unlock()
	return q
}

func (w *workQueue) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.q)
}
