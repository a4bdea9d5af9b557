package config

import "errors"

// Sentinel kinds for configuration errors.
var (
	// ErrInvalidConfig marks a value outside its accepted range.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a file or environment source that could not be read.
	ErrLoadConfig = errors.New("load config failed")
)
