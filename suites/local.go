package suites

import (
	"fmt"

	"github.com/stretchr/testify/assert"

	suite "github.com/ethereum-optimism/infra/op-suite"
	"github.com/ethereum-optimism/infra/op-suite/pipeline"
)

// Pair is the per-test fixture published by before_each
type Pair struct {
	Left, Right string
}

// Tag is the byte fixture published by before_each
type Tag byte

func (p Pair) String() string {
	return fmt.Sprintf("(%s, %s)", p.Left, p.Right)
}

// LocalFixtures gives every test its own copy of the before_each outputs.
// Tests mutate their copy, and after_each checks that nothing leaked in from
// another test.
var LocalFixtures = suite.Definition{
	Name:        "local-fixtures",
	Description: "before_each outputs are private to each test",
	BeforeEach: &suite.Hook{
		Name: "publish_tag_and_pair",
		Fn: func() (Tag, Pair) {
			return 8, Pair{"a", "b"}
		},
	},
	AfterEach: &suite.Hook{
		Name: "check_pair",
		Fn: func(t *pipeline.T, p Pair, tag Tag) {
			assert.Equal(t, Pair{"a", "b"}, p)
			assert.Equal(t, Tag(8), tag)
		},
	},
	Tests: []suite.TestCase{
		{Name: "reads_pair", Fn: func(t *pipeline.T, p Pair) {
			assert.Equal(t, "a", p.Left)
		}},
		{Name: "mutates_copy", Fn: func(t *pipeline.T, p Pair) {
			p.Left = "z"
			assert.Equal(t, "z", p.Left)
		}},
		{Name: "reads_tag", Fn: func(t *pipeline.T, tag Tag) {
			assert.Equal(t, Tag(8), tag)
		}},
	},
}
