package suites

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	suite "github.com/ethereum-optimism/infra/op-suite"
	"github.com/ethereum-optimism/infra/op-suite/pipeline"
)

// Answer is the integer fixture published by before_all
type Answer int

// Profile is the record fixture published by before_all
type Profile struct {
	ID   int
	Name string
}

// GlobalFixtures publishes two values once and reads them from every test.
var GlobalFixtures = suite.Definition{
	Name:        "global-fixtures",
	Description: "before_all outputs are visible to every test",
	BeforeAll: &suite.Hook{
		Name: "publish_answer_and_profile",
		Fn: func() (Answer, Profile) {
			return 42, Profile{ID: 7, Name: "op"}
		},
	},
	Tests: []suite.TestCase{
		{
			Name: "answer_is_42",
			Fn: func(t *pipeline.T, n Answer, p Profile) {
				assert.Equal(t, Answer(42), n)
				assert.Equal(t, 7, p.ID)
			},
		},
		{
			Name: "profile_is_7",
			Fn: func(t *pipeline.T, p Profile, n Answer) {
				require.Equal(t, 7, p.ID)
				require.Equal(t, Answer(42), n)
			},
		},
	},
}
