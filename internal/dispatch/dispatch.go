// Package dispatch builds a dynamic dispatch table for actors: rather than
// looking methods up by reflection on every call, a Table is built once per
// sequential-specification type, mapping each declared operation to a
// closure of type Func. Each Func still invokes its method through
// reflect.Value.Call.
package dispatch

import (
	"fmt"
	"reflect"
	"sync"
)

// Func invokes one operation against instance with args, returning either a
// single return value (nil for a void method) or a thrown error.
type Func func(instance any, args []any) (result any, isVoid bool, err error)

// Table maps operation names to dispatch functions, built once per
// sequential-specification type and cached process-wide.
type Table struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

var (
	tablesMu sync.Mutex
	tables   = map[reflect.Type]*Table{}
)

// For returns the cached Table for t, building it via reflection the first
// time t is seen. t is normally the type of the sequential specification
// instance (or a pointer to it).
func For(t reflect.Type) *Table {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	if tbl, ok := tables[t]; ok {
		return tbl
	}
	tbl := build(t)
	tables[t] = tbl
	return tbl
}

func build(t reflect.Type) *Table {
	tbl := &Table{funcs: make(map[string]Func)}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		name := m.Name
		mt := m.Type // method expression: receiver is argument 0
		numOut := mt.NumOut()
		isVoid := numOut == 0
		hasErr := numOut > 0 && mt.Out(numOut-1) == reflect.TypeOf((*error)(nil)).Elem()

		method := m.Func
		tbl.funcs[name] = func(instance any, args []any) (result any, void bool, err error) {
			rv := reflect.ValueOf(instance)
			in := make([]reflect.Value, 0, len(args)+1)
			in = append(in, rv)
			for _, a := range args {
				in = append(in, reflect.ValueOf(a))
			}
			defer func() {
				if p := recover(); p != nil {
					if e, ok := p.(error); ok {
						err = e
					} else {
						err = fmt.Errorf("dispatch: panic invoking %s: %v", name, p)
					}
				}
			}()
			out := method.Call(in)
			if isVoid {
				return nil, true, nil
			}
			if hasErr {
				last := out[len(out)-1]
				if !last.IsNil() {
					return nil, false, last.Interface().(error)
				}
				if len(out) == 1 {
					return nil, true, nil
				}
				return out[0].Interface(), false, nil
			}
			return out[0].Interface(), false, nil
		}
	}
	return tbl
}

// Lookup returns the Func registered for name, or false if name is unknown.
func (t *Table) Lookup(name string) (Func, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.funcs[name]
	return f, ok
}

// Names returns every operation name known to the table, for error messages.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.funcs))
	for n := range t.funcs {
		out = append(out, n)
	}
	return out
}
