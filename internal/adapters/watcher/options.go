package watcher

import (
	"time"

	"github.com/okian/humancheck/internal/domain/motion"
	"github.com/okian/humancheck/pkg/logger"
)

// Option applies a configuration option to the Watcher.
type Option func(*Watcher)

// WithSettle sets how long a file must stay unchanged before it is ingested.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithSource sets the source recorded on submitted sessions.
func WithSource(src motion.Source) Option {
	return func(w *Watcher) {
		if src != "" {
			w.source = src
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}
