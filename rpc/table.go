package rpc

import (
	"context"
	"fmt"
	"math"
	"reflect"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	voidType    = reflect.TypeFor[Void]()
)

// Method describes one remotely callable method of an interface.
type Method struct {
	ID     uint32
	Name   string
	Params []reflect.Type
	Result reflect.Type // nil when the method returns at most an error

	withContext bool
	withError   bool
}

// Table maps the methods of one Go interface to wire call ids.
//
// Exported methods get ids 1..n in name order, so two peers compiled against
// the same interface agree on the ids without exchanging them. Id 0 is
// protocol.GenericCallID.
type Table struct {
	iface   reflect.Type
	methods []*Method
	byID    map[uint32]*Method
	byName  map[string]*Method
}

// NewTable builds the table of interface type T.
func NewTable[T any]() (*Table, error) {
	return TableOf(reflect.TypeFor[T]())
}

// MustTable is NewTable that panics on error, for package-level tables.
func MustTable[T any]() *Table {
	t, err := NewTable[T]()
	if err != nil {
		panic(err)
	}
	return t
}

func TableOf(iface reflect.Type) (*Table, error) {
	if iface == nil || iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("rpc: %v is not an interface type", iface)
	}
	t := &Table{
		iface:  iface,
		byID:   make(map[uint32]*Method),
		byName: make(map[string]*Method),
	}
	// reflect lists interface methods sorted by name
	for i := 0; i < iface.NumMethod(); i++ {
		mt := iface.Method(i)
		if !mt.IsExported() {
			continue
		}
		id := uint32(len(t.methods) + 1)
		m, err := newMethod(id, mt.Name, mt.Type)
		if err != nil {
			return nil, fmt.Errorf("rpc: %v: %w", iface, err)
		}
		t.methods = append(t.methods, m)
		t.byID[id] = m
		t.byName[m.Name] = m
	}
	return t, nil
}

func newMethod(id uint32, name string, ft reflect.Type) (*Method, error) {
	if ft.IsVariadic() {
		return nil, fmt.Errorf("method %s: variadic methods are not supported", name)
	}
	m := &Method{ID: id, Name: name}

	start := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		m.withContext = true
		start = 1
	}
	for i := start; i < ft.NumIn(); i++ {
		m.Params = append(m.Params, ft.In(i))
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			m.withError = true
		} else {
			m.Result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, fmt.Errorf("method %s: second result must be error", name)
		}
		m.Result = ft.Out(0)
		m.withError = true
	default:
		return nil, fmt.Errorf("method %s: too many results", name)
	}
	return m, nil
}

func (t *Table) Name() string { return t.iface.String() }

func (t *Table) Methods() []*Method { return t.methods }

func (t *Table) Lookup(name string) (*Method, bool) {
	m, ok := t.byName[name]
	return m, ok
}

func (t *Table) ByID(id uint32) (*Method, bool) {
	m, ok := t.byID[id]
	return m, ok
}

// bindArgs checks args against the parameter list and converts numeric
// arguments to the declared parameter type.
func (m *Method) bindArgs(args []any) ([]any, error) {
	if len(args) != len(m.Params) {
		return nil, &ArgumentError{
			Method: m.Name,
			Index:  -1,
			Reason: fmt.Sprintf("want %d arguments, got %d", len(m.Params), len(args)),
		}
	}
	out := make([]any, len(args))
	for i, a := range args {
		p := m.Params[i]
		if a == nil {
			if !nillable(p.Kind()) {
				return nil, &ArgumentError{Method: m.Name, Index: i, Reason: "nil for " + p.String()}
			}
			continue
		}
		v := reflect.ValueOf(a)
		switch {
		case v.Type().AssignableTo(p):
			out[i] = a
		case numericConvertible(v.Kind(), p.Kind()):
			if overflows(v, p) {
				return nil, &ArgumentError{
					Method: m.Name,
					Index:  i,
					Reason: fmt.Sprintf("%v overflows %s", a, p),
				}
			}
			out[i] = v.Convert(p).Interface()
		default:
			return nil, &ArgumentError{
				Method: m.Name,
				Index:  i,
				Reason: fmt.Sprintf("%s is not assignable to %s", v.Type(), p),
			}
		}
	}
	return out, nil
}

// checkResult rejects a result type R the method can never produce.
func (m *Method) checkResult(rt reflect.Type) error {
	if rt.Kind() == reflect.Interface && (m.Result == nil || m.Result.Implements(rt)) {
		return nil
	}
	if m.Result == nil {
		if rt == voidType {
			return nil
		}
		return &ArgumentError{Method: m.Name, Index: -1, Reason: fmt.Sprintf("returns no value, not %s", rt)}
	}
	if !m.Result.AssignableTo(rt) {
		return &ArgumentError{Method: m.Name, Index: -1, Reason: fmt.Sprintf("returns %s, not %s", m.Result, rt)}
	}
	return nil
}

func nillable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Uint64
}

func isSigned(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

// overflows reports whether converting v to t would change its value.
// Integer to float conversions may round but never overflow.
func overflows(v reflect.Value, t reflect.Type) bool {
	switch {
	case isFloat(t.Kind()):
		return isFloat(v.Kind()) && t.OverflowFloat(v.Float())
	case isSigned(v.Kind()) && isSigned(t.Kind()):
		return t.OverflowInt(v.Int())
	case isSigned(v.Kind()):
		n := v.Int()
		return n < 0 || t.OverflowUint(uint64(n))
	case isSigned(t.Kind()):
		n := v.Uint()
		return n > math.MaxInt64 || t.OverflowInt(int64(n))
	default:
		return t.OverflowUint(v.Uint())
	}
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// numericConvertible allows int→int, int→float and float→float conversions,
// never float→int.
func numericConvertible(from, to reflect.Kind) bool {
	switch {
	case isInt(from):
		return isInt(to) || isFloat(to)
	case isFloat(from):
		return isFloat(to)
	}
	return false
}
