// Package config provides configuration loading and management for Stagehand.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/stagehand/chain/validation"
)

// Config represents the complete Stagehand configuration
type Config struct {
	Repo       RepoConfig        `yaml:"repo"`
	State      StateConfig       `yaml:"state"`
	NATS       NATSConfig        `yaml:"nats"`
	Workflow   WorkflowConfig    `yaml:"workflow"`
	Locks      LockConfig        `yaml:"locks"`
	Validation validation.Config `yaml:"validation"`
	Governance GovernanceConfig  `yaml:"governance"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// RepoConfig configures the repository settings
type RepoConfig struct {
	// Path is the repository root path (auto-detected from git if empty)
	Path string `yaml:"path"`
}

// StateConfig configures where durable state lives
type StateConfig struct {
	// Dir is the state directory, relative to the repo root unless absolute
	Dir string `yaml:"dir"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
}

// WorkflowConfig configures workflow defaults
type WorkflowConfig struct {
	// DefaultTemplate is used when `workflow new` names no template
	DefaultTemplate string `yaml:"default_template"`
}

// Duration wraps time.Duration so YAML accepts "24h" style values.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"24h\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// LockConfig configures the advisory file-scope locks
type LockConfig struct {
	// TTL is how long an acquired lock stays live without renewal
	TTL Duration `yaml:"ttl"`
}

// GovernanceConfig configures the policy evaluator
type GovernanceConfig struct {
	// RulesFile is the governance rules document, relative to the repo
	// root unless absolute
	RulesFile string `yaml:"rules_file"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Repo: RepoConfig{
			Path: "", // Auto-detect
		},
		State: StateConfig{
			Dir: ".stagehand",
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Workflow: WorkflowConfig{
			DefaultTemplate: "feature",
		},
		Locks: LockConfig{
			TTL: Duration(24 * time.Hour),
		},
		Governance: GovernanceConfig{
			RulesFile: ".stagehand/governance.yaml",
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.State.Dir == "" {
		return fmt.Errorf("state.dir is required")
	}
	if c.Locks.TTL <= 0 {
		return fmt.Errorf("locks.ttl must be positive")
	}
	if c.Workflow.DefaultTemplate == "" {
		return fmt.Errorf("workflow.default_template is required")
	}
	if c.Validation.CoverageThreshold < 0 || c.Validation.CoverageThreshold > 100 {
		return fmt.Errorf("validation.coverage_threshold must be between 0 and 100")
	}
	return nil
}

// StateDir resolves the state directory against the repo root.
func (c *Config) StateDir() string {
	return c.resolve(c.State.Dir)
}

// TemplatesDir is where custom template documents live.
func (c *Config) TemplatesDir() string {
	return filepath.Join(c.StateDir(), "templates")
}

// ChainsDir is where chain documents live.
func (c *Config) ChainsDir() string {
	return filepath.Join(c.StateDir(), "chains")
}

// WorkflowsDir is where workflow documents live.
func (c *Config) WorkflowsDir() string {
	return filepath.Join(c.StateDir(), "workflows")
}

// LockFile is the single lock store document.
func (c *Config) LockFile() string {
	return filepath.Join(c.StateDir(), "locks.json")
}

// GovernanceFile resolves the governance rules document path.
func (c *Config) GovernanceFile() string {
	return c.resolve(c.Governance.RulesFile)
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Repo.Path, path)
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Repo
	if other.Repo.Path != "" {
		c.Repo.Path = other.Repo.Path
	}

	// State
	if other.State.Dir != "" {
		c.State.Dir = other.State.Dir
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	// Workflow
	if other.Workflow.DefaultTemplate != "" {
		c.Workflow.DefaultTemplate = other.Workflow.DefaultTemplate
	}

	// Locks
	if other.Locks.TTL != 0 {
		c.Locks.TTL = other.Locks.TTL
	}

	// Validation
	if len(other.Validation.Required) > 0 {
		if c.Validation.Required == nil {
			c.Validation.Required = make(map[string]bool, len(other.Validation.Required))
		}
		for name, required := range other.Validation.Required {
			c.Validation.Required[name] = required
		}
	}
	if other.Validation.CoverageThreshold != 0 {
		c.Validation.CoverageThreshold = other.Validation.CoverageThreshold
	}

	// Governance
	if other.Governance.RulesFile != "" {
		c.Governance.RulesFile = other.Governance.RulesFile
	}

	// Metrics
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
