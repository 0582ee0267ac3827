package npc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/behave/internal/core/observability/log"
)

// ManagerConfig is the runtime configuration of a Manager and the btrun host.
type ManagerConfig struct {
	// Workers bounds how many goroutines tick agents in parallel. Zero means GOMAXPROCS.
	Workers  int           `json:"workers" yaml:"workers"`
	TickRate time.Duration `json:"tick_rate" yaml:"tick_rate"`
	LogLevel string        `json:"log_level" yaml:"log_level"`

	// TreeDir holds *.yaml, *.yml and *.json tree files and the scripts they reference.
	TreeDir  string        `json:"tree_dir" yaml:"tree_dir"`
	Watch    bool          `json:"watch" yaml:"watch"`
	Debounce time.Duration `json:"debounce" yaml:"debounce"`

	// MetricsAddr enables the debug HTTP server when set, e.g. ":9090".
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`

	Agents []AgentConfig `json:"agents" yaml:"agents"`
}

// AgentConfig declares a group of agents running the same tree.
type AgentConfig struct {
	Name       string         `json:"name" yaml:"name"`
	Tree       string         `json:"tree" yaml:"tree"`
	Count      int            `json:"count" yaml:"count"`
	Blackboard map[string]any `json:"blackboard,omitempty" yaml:"blackboard,omitempty"`
}

// DefaultManagerConfig returns a config ticking at 20 Hz on every CPU.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Workers:  runtime.GOMAXPROCS(0),
		TickRate: 50 * time.Millisecond,
		LogLevel: log.LevelInfo.String(),
		TreeDir:  "trees",
		Debounce: 200 * time.Millisecond,
	}
}

// LoadManagerConfig decodes YAML over the defaults.
func LoadManagerConfig(r io.Reader) (ManagerConfig, error) {
	cfg := DefaultManagerConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to decode manager config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadManagerConfigFile(path string) (ManagerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return ManagerConfig{}, fmt.Errorf("failed to open manager config: %w", err)
	}
	defer f.Close()
	return LoadManagerConfig(f)
}

// Validate fills zero values that have a safe default and rejects the rest.
func (c *ManagerConfig) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}
	if c.Workers == 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive: %s", c.TickRate)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative: %s", c.Debounce)
	}
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.Tree == "" {
			return fmt.Errorf("agent group %d (%s) has no tree", i, a.Name)
		}
		if a.Count < 0 {
			return fmt.Errorf("agent group %s: count must not be negative", a.Name)
		}
		if a.Count == 0 {
			a.Count = 1
		}
		if a.Name == "" {
			a.Name = a.Tree
		}
	}
	return nil
}

// Level returns the parsed log level. Call Validate first.
func (c *ManagerConfig) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.LevelInfo
	}
	return level
}
