package pipeline

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ethereum-optimism/infra/op-suite/store"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// FixtureError reports a declared input that is present in neither the local nor the global scope.
type FixtureError struct {
	Func  string
	Phase types.Phase
	Type  reflect.Type
	Scope store.ScopeID
	Err   error
}

func (e *FixtureError) Error() string {
	return fmt.Sprintf("%s %s: missing fixture %s (%s scope)", e.Phase, e.Func, e.Type, e.Scope)
}

func (e *FixtureError) Unwrap() error {
	if e.Err == nil {
		return store.ErrFixtureNotFound
	}
	return e.Err
}

// TypeMismatchError reports a value whose type does not match the declared output type.
type TypeMismatchError struct {
	Func     string
	Expected reflect.Type
	Actual   reflect.Type // nil when the value was nil
}

func (e *TypeMismatchError) Error() string {
	actual := "nil"
	if e.Actual != nil {
		actual = e.Actual.String()
	}
	return fmt.Sprintf("%s: type mismatch: declared %s, got %s", e.Func, e.Expected, actual)
}

func (e *TypeMismatchError) Unwrap() error {
	return store.ErrTypeMismatch
}

// AssertionError carries the messages recorded on a T that was marked failed.
type AssertionError struct {
	Func     string
	Messages []string
}

func (e *AssertionError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("%s: assertion failed", e.Func)
	}
	return fmt.Sprintf("%s: assertion failed: %s", e.Func, strings.Join(e.Messages, "; "))
}

// PanicError is a panic recovered from a hook or test body.
type PanicError struct {
	Func  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic: %v", e.Func, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
