package runner

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-suite/store"
)

// JoinError reports a task whose goroutine ended without completing, for example
// through runtime.Goexit.
type JoinError struct {
	Task   string
	Index  store.ScopeID
	Reason string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("task %s (%s): %s", e.Task, e.Index, e.Reason)
}

func abortedError(name string, index store.ScopeID) *JoinError {
	return &JoinError{Task: name, Index: index, Reason: "task aborted"}
}
