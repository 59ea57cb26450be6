package rpc

import (
	"context"
	"fmt"
	"reflect"

	"peer-rpc/message"
)

// Dispatcher is the local-dispatch delegate of a connection. It invokes the
// method named by an inbound call and returns the reply to send back, or nil
// to send none.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *message.Request) *message.Reply
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, req *message.Request) *message.Reply

func (f DispatcherFunc) Dispatch(ctx context.Context, req *message.Request) *message.Reply {
	return f(ctx, req)
}

// GenericHandler serves generic calls whose name matches no method of the
// local interface. Arguments are decoded into `any`.
type GenericHandler func(ctx context.Context, name string, args []any) (any, error)

type ServiceOption func(*Service)

func WithGenericHandler(h GenericHandler) ServiceOption {
	return func(s *Service) { s.generic = h }
}

// Service dispatches inbound calls to an implementation of interface L.
type Service struct {
	table   *Table
	fns     map[uint32]reflect.Value
	generic GenericHandler
}

// NewService binds impl to the method table of interface L.
func NewService[L any](impl L, opts ...ServiceOption) (*Service, error) {
	table, err := NewTable[L]()
	if err != nil {
		return nil, err
	}
	rcvr := reflect.ValueOf(impl)
	if !rcvr.IsValid() {
		return nil, fmt.Errorf("rpc: nil implementation of %s", table.Name())
	}

	s := &Service{
		table: table,
		fns:   make(map[uint32]reflect.Value, len(table.methods)),
	}
	for _, m := range table.methods {
		fn := rcvr.MethodByName(m.Name)
		if !fn.IsValid() {
			return nil, fmt.Errorf("rpc: %s has no method %s", rcvr.Type(), m.Name)
		}
		s.fns[m.ID] = fn
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Table() *Table { return s.table }

// MethodName resolves a typed call id for logging.
func (s *Service) MethodName(id uint32) (string, bool) {
	m, ok := s.table.ByID(id)
	if !ok {
		return "", false
	}
	return m.Name, true
}

func (s *Service) Dispatch(ctx context.Context, req *message.Request) *message.Reply {
	if req.Generic {
		return s.dispatchGeneric(ctx, req)
	}
	m, ok := s.table.ByID(req.CallID)
	if !ok {
		return message.Failed(fmt.Errorf("%w: id %d", ErrUnknownMethod, req.CallID))
	}
	return s.invoke(ctx, m, req)
}

// dispatchGeneric prefers a declared method of the same name, decoding each
// argument straight into the declared parameter type.
func (s *Service) dispatchGeneric(ctx context.Context, req *message.Request) *message.Reply {
	if m, ok := s.table.Lookup(req.Method); ok {
		return s.invoke(ctx, m, req)
	}
	if s.generic == nil {
		return message.Failed(fmt.Errorf("%w: %q", ErrUnknownMethod, req.Method))
	}

	args := make([]any, len(req.Args))
	for i, seg := range req.Args {
		if err := req.Codec.Decode(seg, &args[i]); err != nil {
			return message.Failed(&DecodingError{What: fmt.Sprintf("argument %d", i), Err: err})
		}
	}
	v, err := s.generic(ctx, req.Method, args)
	if err != nil {
		return message.Failed(err)
	}
	return &message.Reply{Value: v}
}

func (s *Service) invoke(ctx context.Context, m *Method, req *message.Request) *message.Reply {
	if len(req.Args) != len(m.Params) {
		return message.Failed(&ArgumentError{
			Method: m.Name,
			Index:  -1,
			Reason: fmt.Sprintf("want %d arguments, got %d", len(m.Params), len(req.Args)),
		})
	}

	in := make([]reflect.Value, 0, len(m.Params)+1)
	if m.withContext {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	for i, p := range m.Params {
		v := reflect.New(p)
		if err := req.Codec.Decode(req.Args[i], v.Interface()); err != nil {
			return message.Failed(&DecodingError{What: fmt.Sprintf("argument %d", i), Err: err})
		}
		in = append(in, v.Elem())
	}

	out := s.fns[m.ID].Call(in)

	if m.withError {
		if e := out[len(out)-1]; !e.IsNil() {
			return message.Failed(e.Interface().(error))
		}
	}
	reply := &message.Reply{}
	if m.Result != nil {
		reply.Value = out[0].Interface()
	}
	return reply
}
