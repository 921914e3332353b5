package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/ethereum-optimism/infra/op-suite/metrics"
	"github.com/ethereum-optimism/infra/op-suite/store"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Diagnostics carries the logger and the verbose trace writer of a run.
// Out must be safe for concurrent use when tasks run in parallel.
type Diagnostics struct {
	Log     log.Logger
	Out     io.Writer
	Verbose bool
}

func (d *Diagnostics) logger() log.Logger {
	if d == nil || d.Log == nil {
		return log.Root()
	}
	return d.Log
}

func (d *Diagnostics) tracef(format string, args ...any) {
	if d == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	d.logger().Trace(msg)
	if d.Verbose && d.Out != nil {
		fmt.Fprintln(d.Out, msg)
	}
}

// Call resolves the inputs of f from b, invokes f and publishes its outputs into b.
//
// A returned error is either the function's own error result or one of
// *FixtureError, *TypeMismatchError, *AssertionError or *PanicError.
func (f *Func) Call(ctx context.Context, b store.Bucket, d *Diagnostics) (err error) {
	if f.kind == types.PhaseTest {
		d.tracef("%s - starting test", f.name)
	} else {
		d.tracef("Running %s", f.kind)
	}

	start := time.Now()
	defer func() {
		metrics.RecordHook(f.kind, err, time.Since(start))
	}()

	// Resolution runs fixture Clone methods and must stay inside the catcher.
	var (
		out        []reflect.Value
		t          *T
		resolveErr error
		catcher    panics.Catcher
	)
	catcher.Try(func() {
		var args []reflect.Value
		args, t, resolveErr = f.resolve(ctx, b, d)
		if resolveErr != nil {
			return
		}
		out = f.fn.Call(args)
	})
	if r := catcher.Recovered(); r != nil {
		if _, ok := r.Value.(failNow); ok && t != nil {
			return &AssertionError{Func: f.name, Messages: t.Messages()}
		}
		d.logger().Debug("Recovered panic", "fn", f.name, "panic", r.Value)
		return &PanicError{Func: f.name, Value: r.Value, Stack: r.Stack}
	}
	if resolveErr != nil {
		return resolveErr
	}
	if t != nil && t.Failed() {
		return &AssertionError{Func: f.name, Messages: t.Messages()}
	}
	if f.errIdx >= 0 {
		if e, _ := out[f.errIdx].Interface().(error); e != nil {
			return e
		}
	}
	return f.publish(out, b, d)
}

func (f *Func) resolve(ctx context.Context, b store.Bucket, d *Diagnostics) ([]reflect.Value, *T, error) {
	args := make([]reflect.Value, len(f.params))
	var t *T
	for i, p := range f.params {
		switch p.kind {
		case paramContext:
			if ctx == nil {
				ctx = context.Background()
			}
			args[i] = reflect.ValueOf(&ctx).Elem()
		case paramT:
			if t == nil {
				t = newT(f.name, d.logger())
			}
			args[i] = reflect.ValueOf(t)
		default:
			v, err := f.lookup(b, p.typ, d)
			if err != nil {
				return nil, nil, err
			}
			if v == nil {
				args[i] = reflect.Zero(p.typ)
			} else {
				args[i] = reflect.ValueOf(v)
			}
		}
	}
	return args, t, nil
}

func (f *Func) lookup(b store.Bucket, typ reflect.Type, d *Diagnostics) (any, error) {
	var (
		v   any
		err error
	)
	if layered, ok := b.(store.Layered); ok {
		d.tracef("%s - getting %s from local state", f.name, typ)
		if local, found := layered.LookupLocal(typ); found {
			return local, nil
		}
		d.tracef("%s - %s not found in local state, getting from global", f.name, typ)
		v, err = b.Lookup(typ)
	} else {
		d.tracef("%s - getting %s from global state", f.name, typ)
		v, err = b.Lookup(typ)
	}
	if err != nil {
		if errors.Is(err, store.ErrFixtureNotFound) {
			metrics.RecordFixtureMiss(f.kind, typ.String())
			return nil, &FixtureError{Func: f.name, Phase: f.kind, Type: typ, Scope: b.Scope(), Err: err}
		}
		return nil, fmt.Errorf("%s: reading %s: %w", f.name, typ, err)
	}
	return v, nil
}

func (f *Func) publish(out []reflect.Value, b store.Bucket, d *Diagnostics) error {
	scope := "local"
	if b.Scope() == store.GlobalScope {
		scope = "global"
	}
	values := make([]any, len(f.outputs))
	for i, want := range f.outputs {
		rv := out[f.results[i]]
		if !(rv.Kind() == reflect.Interface && rv.IsNil()) {
			values[i] = rv.Interface()
		}
		if v := values[i]; f.dynamic[i] && v != nil && !reflect.TypeOf(v).AssignableTo(want) {
			return &TypeMismatchError{Func: f.name, Expected: want, Actual: reflect.TypeOf(v)}
		}
	}

	// Nothing is inserted unless every output passed the check above.
	for i, want := range f.outputs {
		v := values[i]
		d.tracef("%s - setting %s to %s state", f.name, want, scope)
		if _, _, err := b.Insert(want, v); err != nil {
			if errors.Is(err, store.ErrTypeMismatch) {
				return &TypeMismatchError{Func: f.name, Expected: want, Actual: reflect.TypeOf(v)}
			}
			return fmt.Errorf("%s: publishing %s: %w", f.name, want, err)
		}
	}
	return nil
}
