// Package pipeline binds hook and test functions to the fixture store and runs the
// per-test hook sequence.
//
// Hooks and tests are plain Go functions. Their parameters declare inputs and their
// results declare outputs:
//
//	func startNode(ctx context.Context, cfg Config) (*Node, error)
//
// A leading context.Context marks the function as suspending, which selects the
// cooperative execution model for the whole suite. A *T parameter receives an
// assertion handle. Every other parameter is resolved from the store by type
// immediately before the call, and every non-error result is published into the
// store by type immediately after it.
package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
	tType       = reflect.TypeFor[*T]()
)

type paramKind int

const (
	paramInput paramKind = iota
	paramContext
	paramT
)

type param struct {
	kind paramKind
	typ  reflect.Type
}

// Func is a hook or test function bound to its declared inputs and outputs.
type Func struct {
	kind     types.Phase
	name     string
	fn       reflect.Value
	params   []param
	inputs   []reflect.Type
	outputs  []reflect.Type
	results  []int // function result index of each output
	errIdx   int   // function result index of the error result, or -1
	dynamic  []bool
	suspends bool
}

type bindConfig struct {
	name    string
	returns []reflect.Type
}

// Option configures Bind.
type Option func(*bindConfig)

// Named sets the display name used in diagnostics and results.
func Named(name string) Option {
	return func(c *bindConfig) {
		c.name = name
	}
}

// Returns overrides the declared output types, one per non-error result. It is
// needed to publish a value under an interface type.
func Returns(outputs ...reflect.Type) Option {
	return func(c *bindConfig) {
		c.returns = outputs
	}
}

// Bind inspects fn and returns its descriptor. Every problem that can be detected
// without running fn is reported here.
func Bind(kind types.Phase, fn any, opts ...Option) (*Func, error) {
	cfg := &bindConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch kind {
	case types.PhaseBeforeAll, types.PhaseBeforeEach, types.PhaseTest,
		types.PhaseAfterEach, types.PhaseAfterAll, types.PhaseCleanup:
	default:
		return nil, fmt.Errorf("unknown hook kind %q", kind)
	}

	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: expected a function, got %T", kind, fn)
	}
	if v.IsNil() {
		return nil, fmt.Errorf("%s: nil function", kind)
	}

	f := &Func{
		kind:   kind,
		name:   cfg.name,
		fn:     v,
		errIdx: -1,
	}
	if f.name == "" {
		f.name = funcName(v)
	}

	ft := v.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%s %s: variadic functions cannot be bound", kind, f.name)
	}

	for i := 0; i < ft.NumIn(); i++ {
		in := ft.In(i)
		switch {
		case in == contextType:
			if i != 0 {
				return nil, fmt.Errorf("%s %s: context.Context must be the first parameter", kind, f.name)
			}
			f.suspends = true
			f.params = append(f.params, param{kind: paramContext, typ: in})
		case in == tType:
			f.params = append(f.params, param{kind: paramT, typ: in})
		default:
			f.params = append(f.params, param{kind: paramInput, typ: in})
			f.inputs = append(f.inputs, in)
		}
	}

	var results []reflect.Type
	for i := 0; i < ft.NumOut(); i++ {
		out := ft.Out(i)
		if out == errorType {
			if i != ft.NumOut()-1 {
				return nil, fmt.Errorf("%s %s: error must be the last result", kind, f.name)
			}
			f.errIdx = i
			continue
		}
		results = append(results, out)
		f.results = append(f.results, i)
	}

	declared := results
	if cfg.returns != nil {
		if len(cfg.returns) != len(results) {
			return nil, fmt.Errorf("%s %s: declares %d outputs but returns %d values", kind, f.name, len(cfg.returns), len(results))
		}
		declared = cfg.returns
	}

	seen := make(map[reflect.Type]bool, len(declared))
	for i, want := range declared {
		if want == nil {
			return nil, fmt.Errorf("%s %s: output %d has no type", kind, f.name, i)
		}
		if seen[want] {
			return nil, fmt.Errorf("%s %s: output %s declared twice", kind, f.name, want)
		}
		seen[want] = true

		got := results[i]
		switch {
		case got.AssignableTo(want):
			f.dynamic = append(f.dynamic, false)
		case got.Kind() == reflect.Interface && (want.Kind() == reflect.Interface || want.Implements(got)):
			// The concrete value is only known once the function returns.
			f.dynamic = append(f.dynamic, true)
		default:
			return nil, &TypeMismatchError{Func: f.name, Expected: want, Actual: got}
		}
	}
	f.outputs = declared

	if len(f.outputs) > 0 {
		switch kind {
		case types.PhaseAfterEach, types.PhaseAfterAll, types.PhaseCleanup, types.PhaseTest:
			return nil, fmt.Errorf("%s %s: %s functions cannot declare outputs", kind, f.name, kind)
		}
	}
	return f, nil
}

// MustBind is like Bind but panics on error.
func MustBind(kind types.Phase, fn any, opts ...Option) *Func {
	f, err := Bind(kind, fn, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func funcName(v reflect.Value) string {
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "anonymous"
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

func (f *Func) Kind() types.Phase { return f.kind }

func (f *Func) Name() string { return f.name }

// Suspends reports whether the function takes a context.Context and may yield.
func (f *Func) Suspends() bool { return f.suspends }

// Inputs returns the declared input types in parameter order.
func (f *Func) Inputs() []reflect.Type { return append([]reflect.Type(nil), f.inputs...) }

// Outputs returns the declared output types in result order.
func (f *Func) Outputs() []reflect.Type { return append([]reflect.Type(nil), f.outputs...) }

func (f *Func) String() string {
	return fmt.Sprintf("%s %s", f.kind, f.name)
}
