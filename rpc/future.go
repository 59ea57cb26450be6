package rpc

import "context"

// Future is the single-assignment side of a call committed with Call.Future.
type Future[R any] struct {
	done chan struct{}
	res  Result[R]
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// resolve never blocks; it is called exactly once by the reply handler.
func (f *Future[R]) resolve(res Result[R]) {
	f.res = res
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Result returns the result without blocking. ok is false while pending.
func (f *Future[R]) Result() (res Result[R], ok bool) {
	select {
	case <-f.done:
		return f.res, true
	default:
		return res, false
	}
}

// Wait blocks until the reply arrives or ctx is done.
//
// Waiting on the goroutine that drives Process for the same connection
// deadlocks when the reply can only arrive through that goroutine.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.res.Value, f.res.Err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}
