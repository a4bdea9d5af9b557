// Package config defines service configuration structures and loading hooks.
//
// Configuration is layered: built-in defaults, then an optional YAML file, then
// HUMANCHECK_* environment variables. Keys are flat and match the koanf tags below.
package config

import (
	"math"
	"runtime"
)

// Store backends accepted by the store key.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// QueueSize bounds the in-memory session queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of analysis workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the session id deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxSuspectsLimit caps GET /suspects?limit.
	MaxSuspectsLimit int `koanf:"max_suspects_limit"`

	// Store selects the verdict store: memory or sqlite.
	Store string `koanf:"store"`
	// DBPath is the SQLite database file used when Store is sqlite.
	DBPath string `koanf:"db_path"`
	// ModelPath is the model snapshot file. Empty disables persistence.
	ModelPath string `koanf:"model_path"`
	// BootstrapModel trains a model at startup when none can be loaded.
	BootstrapModel bool `koanf:"bootstrap_model"`
	// BootstrapSessions is the number of synthetic traces per class used to
	// bootstrap. Zero trains on the built-in seed examples only.
	BootstrapSessions int `koanf:"bootstrap_sessions"`

	// SamplingInterval is the minimum time between samples, in trace time units.
	SamplingInterval float64 `koanf:"sampling_interval"`
	// SamplingNoise is the per-axis jitter half-width added to each sample.
	SamplingNoise float64 `koanf:"sampling_noise"`
	// PauseThreshold is the speed below which a step counts as a pause.
	PauseThreshold float64 `koanf:"pause_threshold"`
	// DirectionThreshold is the heading change in radians counted as a turn.
	DirectionThreshold float64 `koanf:"direction_threshold"`

	// ForestTrees is the random forest ensemble size.
	ForestTrees int `koanf:"forest_trees"`
	// ForestSeed seeds tree bagging and feature selection.
	ForestSeed int64 `koanf:"forest_seed"`
	// ForestMaxDepth limits tree depth. Zero means unlimited.
	ForestMaxDepth int `koanf:"forest_max_depth"`

	// SpoolDir is watched for finished trace CSV files. Empty disables it.
	SpoolDir string `koanf:"spool_dir"`
	// SpoolSettleSeconds is how long a file must be quiet before it is read.
	SpoolSettleSeconds float64 `koanf:"spool_settle_seconds"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		QueueSize:          10_000,
		WorkerCount:        runtime.NumCPU(),
		DedupeSize:         100_000,
		MaxSuspectsLimit:   100,
		Store:              StoreMemory,
		DBPath:             "humancheck.db",
		ModelPath:          "",
		BootstrapModel:     true,
		BootstrapSessions:  0,
		SamplingInterval:   16.67,
		SamplingNoise:      0.2,
		PauseThreshold:     0.1,
		DirectionThreshold: math.Pi / 4,
		ForestTrees:        100,
		ForestSeed:         42,
		ForestMaxDepth:     0,
		SpoolDir:           "",
		SpoolSettleSeconds: 0.5,
	}
}
