package store

import "reflect"

// Cloner is implemented by fixtures holding references (maps, slices, pointers)
// that must not be shared between the store and its readers.
type Cloner[T any] interface {
	Clone() T
}

// cloneValue returns v, or v.Clone() when v has a Clone method returning its own type.
func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	m := rv.MethodByName("Clone")
	if !m.IsValid() {
		return v
	}
	mt := m.Type()
	if mt.NumIn() != 0 || mt.NumOut() != 1 || mt.Out(0) != rv.Type() {
		return v
	}
	return m.Call(nil)[0].Interface()
}
