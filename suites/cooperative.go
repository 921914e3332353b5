package suites

import (
	"context"
	"sync/atomic"

	"github.com/stretchr/testify/assert"

	suite "github.com/ethereum-optimism/infra/op-suite"
	"github.com/ethereum-optimism/infra/op-suite/pipeline"
)

// Ticker counts the yields performed by the tests of one run
type Ticker struct {
	n *atomic.Int64
}

func (t Ticker) Tick(ctx context.Context) {
	t.n.Add(1)
	pipeline.Yield(ctx)
}

func (t Ticker) Count() int64 {
	return t.n.Load()
}

// Cooperative takes a context.Context in its hooks, which runs the suite on
// the cooperative runtime. Tests hand the baton back with pipeline.Yield.
var Cooperative = suite.Definition{
	Name:        "cooperative",
	Description: "suspending hooks and tests share a single execution baton",
	BeforeAll: &suite.Hook{
		Name: "start_ticker",
		Fn: func(ctx context.Context) Ticker {
			return Ticker{n: new(atomic.Int64)}
		},
	},
	BeforeEach: &suite.Hook{
		Name: "tick_before",
		Fn: func(ctx context.Context, tk Ticker) {
			tk.Tick(ctx)
		},
	},
	AfterAll: &suite.Hook{
		Name: "count_ticks",
		Fn: func(t *pipeline.T, tk Ticker) {
			// one tick per before_each plus three per test body
			assert.Equal(t, int64(3*4), tk.Count())
		},
	},
	Tests: []suite.TestCase{
		{Name: "yields_first", Fn: yieldThrice},
		{Name: "yields_second", Fn: yieldThrice},
		{Name: "yields_third", Fn: yieldThrice},
	},
}

func yieldThrice(ctx context.Context, t *pipeline.T, tk Ticker) {
	before := tk.Count()
	for range 3 {
		tk.Tick(ctx)
	}
	assert.GreaterOrEqual(t, tk.Count(), before+3)
}
