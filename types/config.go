package types

import (
	"fmt"
	"strings"
)

// AfterAllPolicy decides whether after_all runs when a test failed
type AfterAllPolicy string

const (
	// AfterAllAlways runs after_all after every run.
	AfterAllAlways AfterAllPolicy = "always"
	// AfterAllOnSuccess skips after_all when any test failed.
	AfterAllOnSuccess AfterAllPolicy = "on_success"
)

// ParseAfterAllPolicy parses a policy name. The empty string selects AfterAllAlways.
func ParseAfterAllPolicy(s string) (AfterAllPolicy, error) {
	switch AfterAllPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", AfterAllAlways:
		return AfterAllAlways, nil
	case AfterAllOnSuccess:
		return AfterAllOnSuccess, nil
	}
	return "", fmt.Errorf("unknown after_all policy %q (want %q or %q)", s, AfterAllAlways, AfterAllOnSuccess)
}

// UnmarshalYAML implements yaml.Unmarshaler
func (p *AfterAllPolicy) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseAfterAllPolicy(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// SuiteConfig overrides the settings of a registered suite
type SuiteConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Enabled     *bool          `yaml:"enabled,omitempty"`
	Sequential  *bool          `yaml:"sequential,omitempty"`
	Verbose     *bool          `yaml:"verbose,omitempty"`
	AfterAll    AfterAllPolicy `yaml:"after_all,omitempty"`
	Concurrency int            `yaml:"concurrency,omitempty"`
}

// IsEnabled reports whether the suite should run. Suites are enabled unless disabled explicitly.
func (c SuiteConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks the config for values the engine cannot honour.
func (c SuiteConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("suite config is missing a name")
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("suite %q: concurrency must be >= 0, got %d", c.Name, c.Concurrency)
	}
	return nil
}

// SuitesConfig is the top level of the suites YAML file
type SuitesConfig struct {
	Suites []SuiteConfig `yaml:"suites"`
}

// Validate checks every suite config and rejects duplicate names.
func (c SuitesConfig) Validate() error {
	seen := make(map[string]bool, len(c.Suites))
	for _, s := range c.Suites {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate suite config %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
