// Package suites contains the suites shipped with op-suite. They exercise the
// fixture flow of every hook phase and double as smoke tests for a deployment.
package suites

import (
	suite "github.com/ethereum-optimism/infra/op-suite"
)

// Registrar accepts suite definitions
type Registrar interface {
	Register(def suite.Definition) error
}

// All returns every built-in suite in registration order
func All() []suite.Definition {
	return []suite.Definition{
		GlobalFixtures,
		LocalFixtures,
		Cooperative,
		Resources,
	}
}

// Register adds every built-in suite to r
func Register(r Registrar) error {
	for _, def := range All() {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
