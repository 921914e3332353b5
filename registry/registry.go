package registry

import (
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	suite "github.com/ethereum-optimism/infra/op-suite"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

// Registry holds the suites known to the service and their configuration
type Registry struct {
	config    Config
	suites    map[string]suite.Definition
	order     []string
	overrides map[string]types.SuiteConfig
	mu        sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log             log.Logger
	SuiteConfigFile string // Optional YAML file overriding suite settings
	// Suites restricts Definitions to the named suites. Empty means all.
	Suites []string
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config:    cfg,
		suites:    make(map[string]suite.Definition),
		overrides: make(map[string]types.SuiteConfig),
	}

	if cfg.SuiteConfigFile != "" {
		if err := r.loadOverrides(cfg.SuiteConfigFile); err != nil {
			return nil, fmt.Errorf("failed to load suite config: %w", err)
		}
	}

	cfg.Log.Debug("Registry created", "len(overrides)", len(r.overrides))
	return r, nil
}

func (r *Registry) loadOverrides(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, s := range cfg.Suites {
		r.overrides[s.Name] = s
	}
	return nil
}

func loadConfig(path string) (*types.SuitesConfig, error) {
	log.Debug("Reading suite config file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg types.SuitesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Register adds a suite definition. Names must be unique.
func (r *Registry) Register(def suite.Definition) error {
	if def.Name == "" {
		return fmt.Errorf("suite name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.suites[def.Name]; ok {
		return fmt.Errorf("suite %q already registered", def.Name)
	}
	r.suites[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Names returns the registered suite names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Get returns the named definition with its configuration applied
func (r *Registry) Get(name string) (suite.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.suites[name]
	if !ok {
		return suite.Definition{}, false
	}
	return r.apply(def), true
}

// Definitions returns every enabled, selected suite in registration order.
// Selecting a suite that was never registered is an error.
func (r *Registry) Definitions() ([]suite.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name := range r.overrides {
		if _, ok := r.suites[name]; !ok {
			r.config.Log.Warn("Suite config refers to an unknown suite", "suite", name)
		}
	}

	selected := make(map[string]bool, len(r.config.Suites))
	for _, name := range r.config.Suites {
		if _, ok := r.suites[name]; !ok {
			return nil, fmt.Errorf("unknown suite %q", name)
		}
		selected[name] = true
	}

	var defs []suite.Definition
	for _, name := range r.order {
		if len(selected) > 0 && !selected[name] {
			continue
		}
		if o, ok := r.overrides[name]; ok && !o.IsEnabled() {
			r.config.Log.Debug("Suite disabled by config", "suite", name)
			continue
		}
		defs = append(defs, r.apply(r.suites[name]))
	}
	return defs, nil
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

func (r *Registry) apply(def suite.Definition) suite.Definition {
	o, ok := r.overrides[def.Name]
	if !ok {
		return def
	}
	if o.Description != "" {
		def.Description = o.Description
	}
	if o.Sequential != nil {
		def.Sequential = *o.Sequential
	}
	if o.Verbose != nil {
		def.Verbose = *o.Verbose
	}
	if o.AfterAll != "" {
		def.AfterAllPolicy = o.AfterAll
	}
	if o.Concurrency > 0 {
		def.Concurrency = o.Concurrency
	}
	return def
}
