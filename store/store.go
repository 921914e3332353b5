// Package store holds the fixtures shared between the hooks and tests of a suite.
//
// A Store has one global bucket and one local bucket per test. Every bucket maps a
// type identity to at most one value of that type. Reads against a local bucket fall
// back to the global bucket on a miss.
//
// The global bucket is only writable inside the window opened by WithGlobalWrite,
// which the engine opens around before_all and after_all. While tasks run it is
// read-only and shared.
package store

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
)

// ScopeID identifies a bucket. Local scopes are the declaration indices of tests.
type ScopeID int

// GlobalScope is the reserved id of the global bucket.
const GlobalScope ScopeID = -1

func (id ScopeID) String() string {
	if id == GlobalScope {
		return "global"
	}
	return fmt.Sprintf("local#%d", int(id))
}

var (
	ErrFixtureNotFound     = errors.New("fixture not found")
	ErrScopeNotInitialised = errors.New("scope not initialised")
	ErrScopesCreated       = errors.New("local scopes already created")
	ErrGlobalReadOnly      = errors.New("global scope is read-only outside of the global write window")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrWindowClosed        = errors.New("global write window is closed")
)

// Bucket is a typed view over one scope of the store.
type Bucket interface {
	// Scope returns the id of the bucket written by Insert and Remove.
	Scope() ScopeID
	// Lookup returns a copy of the value stored for typ.
	Lookup(typ reflect.Type) (any, error)
	// Insert stores v under typ and returns the value it replaced, if any.
	Insert(typ reflect.Type, v any) (prev any, replaced bool, err error)
	// Remove deletes the value stored under typ.
	Remove(typ reflect.Type) (removed any, ok bool, err error)
}

// Layered is implemented by local views, which fall back to the global bucket.
type Layered interface {
	Bucket
	// LookupLocal reads the local bucket only.
	LookupLocal(typ reflect.Type) (any, bool)
}

var (
	_ Layered = (*localView)(nil)
	_ Bucket  = (*globalView)(nil)
)

type bucket struct {
	mu     sync.RWMutex
	values map[reflect.Type]any
}

func newBucket() *bucket {
	return &bucket{values: make(map[reflect.Type]any)}
}

// Store is the fixture container of one suite run.
type Store struct {
	log    log.Logger
	global *bucket
	locals map[ScopeID]*bucket

	created atomic.Bool
}

// New creates a store holding an empty global bucket.
func New(logger log.Logger) *Store {
	if logger == nil {
		logger = log.New()
	}
	return &Store{
		log:    logger.New("component", "store"),
		global: newBucket(),
		locals: make(map[ScopeID]*bucket),
	}
}

// CreateLocalScopes allocates one empty bucket per id. It must be called once,
// before any hook or test executes, and not concurrently with any other operation.
func (s *Store) CreateLocalScopes(ids ...ScopeID) error {
	if !s.created.CompareAndSwap(false, true) {
		return ErrScopesCreated
	}
	for _, id := range ids {
		if id == GlobalScope {
			return fmt.Errorf("scope id %d is reserved for the global scope", int(id))
		}
		if _, exists := s.locals[id]; exists {
			return fmt.Errorf("duplicate scope id %d", int(id))
		}
		s.locals[id] = newBucket()
	}
	s.log.Debug("Created local scopes", "count", len(ids))
	return nil
}

// Scopes returns the number of local scopes.
func (s *Store) Scopes() int {
	return len(s.locals)
}

func (s *Store) local(id ScopeID) (*bucket, error) {
	b, ok := s.locals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScopeNotInitialised, id)
	}
	return b, nil
}

// Scope returns a bucket view for id. Local views read local then global and
// write local. The global view is read-only.
func (s *Store) Scope(id ScopeID) (Bucket, error) {
	if id == GlobalScope {
		return &globalView{s: s}, nil
	}
	b, err := s.local(id)
	if err != nil {
		return nil, err
	}
	return &localView{s: s, id: id, b: b}, nil
}

// Insert stores v under typ in the named scope.
func (s *Store) Insert(scope ScopeID, typ reflect.Type, v any) (any, bool, error) {
	b, err := s.Scope(scope)
	if err != nil {
		return nil, false, err
	}
	return b.Insert(typ, v)
}

// Remove deletes the value stored under typ in the named scope.
func (s *Store) Remove(scope ScopeID, typ reflect.Type) (any, bool, error) {
	b, err := s.Scope(scope)
	if err != nil {
		return nil, false, err
	}
	return b.Remove(typ)
}

// Get returns a copy of the value stored under typ. Local scopes fall back to
// the global scope on a miss.
func (s *Store) Get(scope ScopeID, typ reflect.Type) (any, error) {
	b, err := s.Scope(scope)
	if err != nil {
		return nil, err
	}
	return b.Lookup(typ)
}

// WithGlobalWrite runs fn with exclusive write access to the global bucket.
// Readers of the global bucket block until fn returns. Windows do not nest.
func (s *Store) WithGlobalWrite(fn func(w *GlobalWriter) error) error {
	s.global.mu.Lock()
	defer s.global.mu.Unlock()

	w := &GlobalWriter{s: s}
	defer w.closed.Store(true)
	return fn(w)
}

func (s *Store) lookupGlobal(typ reflect.Type) (any, bool) {
	s.global.mu.RLock()
	defer s.global.mu.RUnlock()
	v, ok := s.global.values[typ]
	return v, ok
}

func checkAssignable(typ reflect.Type, v any) error {
	if typ == nil {
		return fmt.Errorf("%w: nil type", ErrTypeMismatch)
	}
	if v == nil {
		switch typ.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return nil
		}
		return fmt.Errorf("%w: nil is not a valid %s", ErrTypeMismatch, typ)
	}
	if vt := reflect.TypeOf(v); !vt.AssignableTo(typ) {
		return fmt.Errorf("%w: expected %s, found %s", ErrTypeMismatch, typ, vt)
	}
	return nil
}

func fixtureMiss(scope ScopeID, typ reflect.Type) error {
	return fmt.Errorf("%w: %s in %s scope", ErrFixtureNotFound, typ, scope)
}

type localView struct {
	s  *Store
	id ScopeID
	b  *bucket
}

func (v *localView) Scope() ScopeID { return v.id }

func (v *localView) Lookup(typ reflect.Type) (any, error) {
	v.b.mu.RLock()
	val, ok := v.b.values[typ]
	v.b.mu.RUnlock()
	if ok {
		return cloneValue(val), nil
	}
	if val, ok := v.s.lookupGlobal(typ); ok {
		return cloneValue(val), nil
	}
	return nil, fixtureMiss(v.id, typ)
}

// LookupLocal returns the value stored in the local bucket only.
func (v *localView) LookupLocal(typ reflect.Type) (any, bool) {
	v.b.mu.RLock()
	defer v.b.mu.RUnlock()
	val, ok := v.b.values[typ]
	if !ok {
		return nil, false
	}
	return cloneValue(val), true
}

func (v *localView) Insert(typ reflect.Type, val any) (any, bool, error) {
	if err := checkAssignable(typ, val); err != nil {
		return nil, false, err
	}
	v.b.mu.Lock()
	defer v.b.mu.Unlock()
	prev, replaced := v.b.values[typ]
	v.b.values[typ] = val
	return prev, replaced, nil
}

func (v *localView) Remove(typ reflect.Type) (any, bool, error) {
	v.b.mu.Lock()
	defer v.b.mu.Unlock()
	prev, ok := v.b.values[typ]
	delete(v.b.values, typ)
	return prev, ok, nil
}

type globalView struct {
	s *Store
}

func (v *globalView) Scope() ScopeID { return GlobalScope }

func (v *globalView) Lookup(typ reflect.Type) (any, error) {
	if val, ok := v.s.lookupGlobal(typ); ok {
		return cloneValue(val), nil
	}
	return nil, fixtureMiss(GlobalScope, typ)
}

func (v *globalView) Insert(reflect.Type, any) (any, bool, error) {
	return nil, false, ErrGlobalReadOnly
}

func (v *globalView) Remove(reflect.Type) (any, bool, error) {
	return nil, false, ErrGlobalReadOnly
}

// GlobalWriter is the write handle of an open global write window. It is only
// valid inside the function passed to WithGlobalWrite.
type GlobalWriter struct {
	s      *Store
	closed atomic.Bool
}

var _ Bucket = (*GlobalWriter)(nil)

func (w *GlobalWriter) Scope() ScopeID { return GlobalScope }

func (w *GlobalWriter) Lookup(typ reflect.Type) (any, error) {
	if w.closed.Load() {
		return nil, ErrWindowClosed
	}
	if val, ok := w.s.global.values[typ]; ok {
		return cloneValue(val), nil
	}
	return nil, fixtureMiss(GlobalScope, typ)
}

func (w *GlobalWriter) Insert(typ reflect.Type, val any) (any, bool, error) {
	if w.closed.Load() {
		return nil, false, ErrWindowClosed
	}
	if err := checkAssignable(typ, val); err != nil {
		return nil, false, err
	}
	prev, replaced := w.s.global.values[typ]
	w.s.global.values[typ] = val
	return prev, replaced, nil
}

func (w *GlobalWriter) Remove(typ reflect.Type) (any, bool, error) {
	if w.closed.Load() {
		return nil, false, ErrWindowClosed
	}
	prev, ok := w.s.global.values[typ]
	delete(w.s.global.values, typ)
	return prev, ok, nil
}

// Len returns the number of values in the global bucket.
func (w *GlobalWriter) Len() int {
	return len(w.s.global.values)
}

// Drain empties the global bucket, closing every drained value that implements
// io.Closer. Close errors are joined.
func (w *GlobalWriter) Drain() error {
	if w.closed.Load() {
		return ErrWindowClosed
	}
	var errs []error
	for typ, val := range w.s.global.values {
		delete(w.s.global.values, typ)
		closer, ok := val.(io.Closer)
		if !ok {
			continue
		}
		w.s.log.Debug("Closing drained fixture", "type", typ.String())
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", typ, err))
		}
	}
	return errors.Join(errs...)
}
