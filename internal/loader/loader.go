// Package loader handles configuration file loading and the construction
// of the storage stack it describes.
//
// Configuration is YAML with environment variables expanded before
// parsing. The backends list is ordered: the first member is the fastest
// and the preferred read source, later members provide durability and
// fallback; more than one member is composed behind a glue backend.
package loader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keleshev/tau/config"
	"github.com/keleshev/tau/internal/backend"
	"github.com/keleshev/tau/internal/backend/badgerdb"
	"github.com/keleshev/tau/internal/backend/binlog"
	"github.com/keleshev/tau/internal/backend/glue"
	"github.com/keleshev/tau/internal/backend/memory"
	"github.com/keleshev/tau/internal/backend/textlog"
	"github.com/keleshev/tau/internal/collector"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config is the top-level configuration file.
type Config struct {
	// Listen is the server listen address.
	Listen string `yaml:"listen"`

	// Backends is the ordered storage stack.
	Backends []BackendConfig `yaml:"backends"`

	// Collect configures the SNMP collector.
	Collect CollectConfig `yaml:"collect"`
}

// BackendConfig describes one storage stack member.
type BackendConfig struct {
	// Type is one of "memory", "text", "binary", "badger".
	Type string `yaml:"type"`

	// Retention is the memory backend's sliding window.
	Retention Duration `yaml:"retention"`

	// Dir is the storage directory of the durable backends.
	Dir string `yaml:"dir"`
}

// CollectConfig configures the SNMP collector.
type CollectConfig struct {
	Targets []TargetConfig `yaml:"targets"`
}

// TargetConfig describes one SNMP target.
type TargetConfig struct {
	Host      string   `yaml:"host"`
	Port      uint16   `yaml:"port"`
	Community string   `yaml:"community"`
	Interval  Duration `yaml:"interval"`

	// Signals maps signal names to the OIDs they are read from.
	Signals map[string]string `yaml:"signals"`
}

// DefaultConfig returns the configuration used when no file is given: a
// single memory backend with the default retention window.
func DefaultConfig() *Config {
	return &Config{
		Listen: config.DefaultAddress,
		Backends: []BackendConfig{
			{Type: "memory", Retention: Duration(config.DefaultRetention)},
		},
	}
}

// Load loads configuration from a YAML file, expanding environment
// variables first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	cfg.Backends = nil
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Backends) == 0 {
		cfg.Backends = DefaultConfig().Backends
	}
	return cfg, nil
}

// Build constructs the storage stack. The returned close function
// releases backends that hold resources; it is safe to call once the
// stack is no longer used.
func (c *Config) Build() (backend.Backend, func() error, error) {
	var members []backend.Backend
	var closers []func() error
	closeAll := func() error {
		var firstErr error
		for _, close := range closers {
			if err := close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, bc := range c.Backends {
		b, err := c.buildMember(bc, &closers)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		members = append(members, b)
	}

	switch len(members) {
	case 0:
		closeAll()
		return nil, nil, fmt.Errorf("no backends configured")
	case 1:
		return members[0], closeAll, nil
	default:
		return glue.New(members...), closeAll, nil
	}
}

func (c *Config) buildMember(bc BackendConfig, closers *[]func() error) (backend.Backend, error) {
	switch bc.Type {
	case "memory":
		window := bc.Retention.Duration()
		if window <= 0 {
			window = config.DefaultRetention
		}
		return memory.New(window), nil
	case "text":
		if bc.Dir == "" {
			return nil, fmt.Errorf("text backend requires dir")
		}
		return textlog.New(bc.Dir)
	case "binary":
		if bc.Dir == "" {
			return nil, fmt.Errorf("binary backend requires dir")
		}
		return binlog.New(bc.Dir)
	case "badger":
		if bc.Dir == "" {
			return nil, fmt.Errorf("badger backend requires dir")
		}
		b, err := badgerdb.New(badgerdb.Config{Path: bc.Dir})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, b.Close)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", bc.Type)
	}
}

// CollectorTargets converts the collect section into collector targets,
// applying defaults.
func (c *Config) CollectorTargets() []collector.Target {
	targets := make([]collector.Target, 0, len(c.Collect.Targets))
	for _, tc := range c.Collect.Targets {
		t := collector.Target{
			Host:      tc.Host,
			Port:      tc.Port,
			Community: tc.Community,
			Interval:  tc.Interval.Duration(),
			Signals:   tc.Signals,
		}
		if t.Port == 0 {
			t.Port = config.DefaultSNMPPort
		}
		if t.Interval <= 0 {
			t.Interval = config.DefaultCollectInterval
		}
		targets = append(targets, t)
	}
	return targets
}
