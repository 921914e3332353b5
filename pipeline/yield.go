package pipeline

import "context"

// Yielder hands the execution baton of a cooperative run to another task.
type Yielder interface {
	Yield()
}

type yielderKey struct{}

// WithYielder returns a context whose Yield calls reach y.
func WithYielder(ctx context.Context, y Yielder) context.Context {
	return context.WithValue(ctx, yielderKey{}, y)
}

// Yield suspends the calling task until the cooperative runtime resumes it.
// Outside a cooperative run it returns immediately.
func Yield(ctx context.Context) {
	if ctx == nil {
		return
	}
	if y, ok := ctx.Value(yielderKey{}).(Yielder); ok && y != nil {
		y.Yield()
	}
}
