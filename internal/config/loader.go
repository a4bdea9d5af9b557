package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment contract.
const (
	EnvPrefix = "HUMANCHECK_"
	EnvFile   = "HUMANCHECK_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if HUMANCHECK_CONFIG is set
//  3. env (prefix HUMANCHECK_)
func Load(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(EnvFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// HUMANCHECK_QUEUE_SIZE -> queue_size. Underscores are kept to match the flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.MaxSuspectsLimit <= 0:
		return fmt.Errorf("%w: max_suspects_limit must be positive", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StoreSQLite:
		return fmt.Errorf("%w: store must be %q or %q", ErrInvalidConfig, StoreMemory, StoreSQLite)
	case c.Store == StoreSQLite && c.DBPath == "":
		return fmt.Errorf("%w: db_path is required for the sqlite store", ErrInvalidConfig)
	case c.BootstrapSessions < 0:
		return fmt.Errorf("%w: bootstrap_sessions must not be negative", ErrInvalidConfig)
	case c.SamplingInterval <= 0:
		return fmt.Errorf("%w: sampling_interval must be positive", ErrInvalidConfig)
	case c.SamplingNoise < 0:
		return fmt.Errorf("%w: sampling_noise must not be negative", ErrInvalidConfig)
	case c.PauseThreshold < 0:
		return fmt.Errorf("%w: pause_threshold must not be negative", ErrInvalidConfig)
	case c.DirectionThreshold < 0 || c.DirectionThreshold > math.Pi:
		return fmt.Errorf("%w: direction_threshold must be within [0, pi]", ErrInvalidConfig)
	case c.ForestTrees <= 0:
		return fmt.Errorf("%w: forest_trees must be positive", ErrInvalidConfig)
	case c.ForestMaxDepth < 0:
		return fmt.Errorf("%w: forest_max_depth must not be negative", ErrInvalidConfig)
	case c.SpoolSettleSeconds < 0:
		return fmt.Errorf("%w: spool_settle_seconds must not be negative", ErrInvalidConfig)
	}
	return nil
}
