package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all hotswap configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Source units to compile each reload cycle
	Units []UnitConfig `yaml:"units"`

	// Tracked objects and the calls to exercise on them
	Objects []ObjectConfig `yaml:"objects"`

	// Compiler bridge settings
	Compiler CompilerConfig `yaml:"compiler"`

	// Reload cycle settings
	Reload ReloadConfig `yaml:"reload"`

	// Source watcher
	Watch WatchConfig `yaml:"watch"`

	// Reload history store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CompilerConfig configures the compiler bridge.
type CompilerConfig struct {
	// Packages submitted source may import (stdlib import paths).
	AllowedPackages []string `yaml:"allowed_packages"`

	// Escalate warning diagnostics to errors.
	WarningsAsErrors bool `yaml:"warnings_as_errors"`

	// Per-unit compile timeout.
	Timeout string `yaml:"timeout"`

	// Units compiled concurrently within one cycle.
	Parallelism int `yaml:"parallelism"`
}

// ReloadConfig configures reload cycle admission.
type ReloadConfig struct {
	// queue: wait for the running cycle; reject: fail fast.
	Policy string `yaml:"policy"`
}

// WatchConfig configures the source watcher.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Debounce string `yaml:"debounce"`
}

// StoreConfig configures the reload history database.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Reload policies.
const (
	PolicyQueue  = "queue"
	PolicyReject = "reject"
)

// DefaultAllowedPackages is the stdlib surface offered to submitted source.
var DefaultAllowedPackages = []string{
	"strings", "strconv", "fmt", "math", "math/rand", "regexp",
	"encoding/json", "encoding/base64", "time", "sort", "bytes",
	"errors", "unicode", "unicode/utf8", "path", "container/list",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "hotswap",
		Version: "0.3.0",

		Compiler: CompilerConfig{
			AllowedPackages:  append([]string(nil), DefaultAllowedPackages...),
			WarningsAsErrors: false,
			Timeout:          "10s",
			Parallelism:      4,
		},

		Reload: ReloadConfig{
			Policy: PolicyQueue,
		},

		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "300ms",
		},

		Store: StoreConfig{
			Enabled: true,
			Path:    ".hotswap/history.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Relative paths are resolved against the config file location.
	base := filepath.Dir(path)
	for i := range cfg.Units {
		if cfg.Units[i].Path != "" && !filepath.IsAbs(cfg.Units[i].Path) {
			cfg.Units[i].Path = filepath.Join(base, cfg.Units[i].Path)
		}
	}
	if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(base, cfg.Store.Path)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("HOTSWAP_DB"); path != "" {
		c.Store.Path = path
		c.Store.Enabled = true
	}
	if level := os.Getenv("HOTSWAP_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if policy := os.Getenv("HOTSWAP_RELOAD_POLICY"); policy != "" {
		c.Reload.Policy = strings.ToLower(policy)
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Reload.Policy {
	case PolicyQueue, PolicyReject, "":
	default:
		return fmt.Errorf("reload.policy must be %q or %q, got %q", PolicyQueue, PolicyReject, c.Reload.Policy)
	}
	if c.Compiler.Parallelism < 0 {
		return fmt.Errorf("compiler.parallelism must not be negative")
	}

	units := make(map[string]bool, len(c.Units))
	for i, u := range c.Units {
		if u.Path == "" {
			return fmt.Errorf("units[%d]: path is required", i)
		}
		name := u.UnitName()
		if units[name] {
			return fmt.Errorf("units[%d]: duplicate unit name %q", i, name)
		}
		units[name] = true
	}

	keys := make(map[string]bool, len(c.Objects))
	for i, o := range c.Objects {
		if o.Type == "" {
			return fmt.Errorf("objects[%d]: type is required", i)
		}
		key := o.ObjectKey()
		if keys[key] {
			return fmt.Errorf("objects[%d]: duplicate object key %q", i, key)
		}
		keys[key] = true
		for j, call := range o.Calls {
			if call.Method == "" {
				return fmt.Errorf("objects[%d].calls[%d]: method is required", i, j)
			}
			for k, p := range call.Params {
				if !validKind(p.Kind) {
					return fmt.Errorf("objects[%d].calls[%d].params[%d]: unknown kind %q", i, j, k, p.Kind)
				}
			}
		}
	}
	return nil
}

// GetCompileTimeout returns the compile timeout as a duration.
func (c *Config) GetCompileTimeout() time.Duration {
	d, err := time.ParseDuration(c.Compiler.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetDebounce returns the watcher debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 300 * time.Millisecond
	}
	return d
}
