package suites

import (
	"errors"
	"sync"

	"github.com/stretchr/testify/require"

	suite "github.com/ethereum-optimism/infra/op-suite"
	"github.com/ethereum-optimism/infra/op-suite/pipeline"
)

// Ledger is a shared resource that must be closed when the suite ends.
// It is published behind a pointer so every test appends to the same ledger.
type Ledger struct {
	mu      sync.Mutex
	entries []string
	closed  bool
}

func (l *Ledger) Append(entry string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("ledger closed")
	}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close implements io.Closer. The store calls it when the global scope is drained.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.New("ledger already closed")
	}
	l.closed = true
	return nil
}

// Entry is a per-test snapshot that can be cloned out of the store
type Entry struct {
	Labels []string
}

// Clone returns a deep copy so tests cannot mutate the stored entry.
func (e Entry) Clone() Entry {
	labels := make([]string, len(e.Labels))
	copy(labels, e.Labels)
	return Entry{Labels: labels}
}

// Resources shares a closable resource through the global scope and releases
// it on drain.
var Resources = suite.Definition{
	Name:        "resources",
	Description: "global fixtures implementing io.Closer are closed at suite end",
	BeforeAll: &suite.Hook{
		Name: "open_ledger",
		Fn: func() (*Ledger, error) {
			return &Ledger{}, nil
		},
	},
	BeforeEach: &suite.Hook{
		Name: "new_entry",
		Fn: func() Entry {
			return Entry{Labels: []string{"base"}}
		},
	},
	AfterEach: &suite.Hook{
		Name: "entry_untouched",
		Fn: func(t *pipeline.T, e Entry) {
			require.Equal(t, []string{"base"}, e.Labels)
		},
	},
	AfterAll: &suite.Hook{
		Name: "ledger_filled",
		Fn: func(t *pipeline.T, l *Ledger) {
			require.Equal(t, 2, l.Len())
		},
	},
	Tests: []suite.TestCase{
		{Name: "append_first", Fn: appendEntry},
		{Name: "append_second", Fn: appendEntry},
	},
}

func appendEntry(t *pipeline.T, l *Ledger, e Entry) error {
	e.Labels[0] = "changed"
	return l.Append(t.Name())
}
