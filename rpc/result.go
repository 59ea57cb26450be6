package rpc

// Void is the result type for methods that return nothing.
type Void = struct{}

// Result is delivered exactly once to the handler of a committed call.
type Result[R any] struct {
	Value R
	Err   error
}

func (r Result[R]) OK() bool { return r.Err == nil }

func (r Result[R]) Get() (R, error) { return r.Value, r.Err }
