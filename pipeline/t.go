package pipeline

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

// T is the assertion handle handed to hooks and tests that declare a *T parameter.
// It satisfies testify's TestingT, so assert and require can be used against it.
//
// FailNow must be called from the goroutine running the hook or test.
type T struct {
	name string
	log  log.Logger

	mu       sync.Mutex
	failed   bool
	messages []string
}

var _ require.TestingT = (*T)(nil)

// failNow is the panic value used by FailNow to unwind the body.
type failNow struct{}

func newT(name string, logger log.Logger) *T {
	return &T{name: name, log: logger}
}

// Name returns the display name of the running hook or test.
func (t *T) Name() string {
	return t.name
}

func (t *T) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.failed = true
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	t.log.Debug("Assertion failed", "fn", t.name, "msg", msg)
}

// Fail marks the function as failed and continues execution.
func (t *T) Fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
}

// FailNow marks the function as failed and stops its execution.
func (t *T) FailNow() {
	t.Fail()
	panic(failNow{})
}

func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

func (t *T) Helper() {}

func (t *T) Logf(format string, args ...any) {
	t.log.Info(fmt.Sprintf(format, args...), "fn", t.name)
}

func (t *T) Fatalf(format string, args ...any) {
	t.Errorf(format, args...)
	t.FailNow()
}

func (t *T) Messages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.messages...)
}
