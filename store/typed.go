package store

import (
	"fmt"
	"reflect"
)

// Get returns the T stored in b, or in the global bucket when b is a local view.
func Get[T any](b Bucket) (T, error) {
	var zero T
	v, err := b.Lookup(reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: expected %s, found %T", ErrTypeMismatch, reflect.TypeFor[T](), v)
	}
	return t, nil
}

// Insert stores v in b keyed by T and returns the previous T, if any.
func Insert[T any](b Bucket, v T) (T, bool, error) {
	var zero T
	prev, replaced, err := b.Insert(reflect.TypeFor[T](), v)
	if err != nil || !replaced {
		return zero, false, err
	}
	p, _ := prev.(T)
	return p, true, nil
}

// Remove deletes the T stored in b and returns it.
func Remove[T any](b Bucket) (T, bool, error) {
	var zero T
	removed, ok, err := b.Remove(reflect.TypeFor[T]())
	if err != nil || !ok {
		return zero, false, err
	}
	r, _ := removed.(T)
	return r, true, nil
}
