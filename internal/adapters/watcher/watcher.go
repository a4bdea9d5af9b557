// Package watcher ingests finished trace files dropped into a spool directory.
//
// A file named <session_id>.csv is submitted once it has been stable for the settle
// delay. Ingested files move to processed/. Unreadable or rejected ones go to failed/.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/okian/humancheck/internal/adapters/tracefile"
	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/internal/domain/motion"
	"github.com/okian/humancheck/pkg/logger"
	"github.com/okian/humancheck/pkg/metrics"
)

// Spool subdirectories.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	traceExt         = ".csv"
	defaultSettle    = 500 * time.Millisecond
	dirPermission    = 0o750
	minCheckInterval = 10 * time.Millisecond
)

// Spool file outcomes reported to metrics.
const (
	resultSubmitted = "submitted"
	resultDuplicate = "duplicate"
	resultMalformed = "malformed"
	resultRejected  = "rejected"
	resultError     = "error"
)

// Submitter accepts sessions for analysis. It reports whether the session was
// already known.
type Submitter interface {
	Submit(ctx context.Context, sub model.Submission) (duplicate bool, err error)
}

// Watcher monitors a spool directory.
type Watcher struct {
	dir       string
	settle    time.Duration
	source    motion.Source
	submitter Submitter
	log       logger.Logger

	fs *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time // path -> last change

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a watcher for dir. The directory is created if missing.
func New(dir string, submitter Submitter, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		dir:       dir,
		settle:    defaultSettle,
		source:    motion.SourcePlayer,
		submitter: submitter,
		pending:   make(map[string]time.Time),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.Get().Named("spool_watcher")
	}

	for _, sub := range []string{"", ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), dirPermission); err != nil {
			return nil, fmt.Errorf("spool %s: %w", dir, err)
		}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w.fs = fsw
	return w, nil
}

// Start watches the directory and queues files already present.
func (w *Watcher) Start(ctx context.Context) error {
	started := false
	var err error
	w.startOnce.Do(func() {
		started = true
		if err = w.fs.Add(w.dir); err != nil {
			return
		}
		var entries []os.DirEntry
		entries, err = os.ReadDir(w.dir)
		if err != nil {
			return
		}
		now := time.Now()
		w.mu.Lock()
		for _, e := range entries {
			if !e.IsDir() && isTrace(e.Name()) {
				w.pending[filepath.Join(w.dir, e.Name())] = now
			}
		}
		w.mu.Unlock()

		w.wg.Add(2)
		go w.eventLoop(ctx)
		go w.settleLoop(ctx)
		w.log.Info(ctx, "watching spool directory",
			logger.String("dir", w.dir),
			logger.Duration("settle", w.settle))
	})
	if !started {
		return ErrStarted
	}
	return err
}

// Stop ends watching and waits for in-flight files.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isTrace(ev.Name) || filepath.Dir(ev.Name) != filepath.Clean(w.dir) {
				continue
			}
			w.mu.Lock()
			w.pending[ev.Name] = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			metrics.RecordErrorByComponent("watcher", "fsnotify")
			w.log.Warn(ctx, "fsnotify error", logger.Error(err))
		}
	}
}

func (w *Watcher) settleLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(max(w.settle/2, minCheckInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case now := <-ticker.C:
			for _, path := range w.stable(now) {
				w.ingest(ctx, path)
			}
		}
	}
}

// stable removes and returns files unchanged for the settle delay.
func (w *Watcher) stable(now time.Time) []string {
	threshold := now.Add(-w.settle)
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for path, changed := range w.pending {
		if !changed.After(threshold) {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	return out
}

// ingest submits one file and moves it out of the spool.
func (w *Watcher) ingest(ctx context.Context, path string) {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	samples, err := tracefile.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		metrics.RecordSpoolFile(resultMalformed)
		w.log.Warn(ctx, "rejecting spool file", logger.String("path", path), logger.Error(err))
		w.move(ctx, path, FailedDir)
		return
	}

	if id == "" {
		err = fmt.Errorf("%w: empty session id", ErrRejected)
	} else {
		var dup bool
		dup, err = w.submitter.Submit(ctx, model.Submission{
			SessionID:  id,
			Source:     w.source,
			Samples:    samples,
			ReceivedAt: time.Now(),
		})
		if err == nil {
			w.ingested(ctx, path, id, len(samples), dup)
			return
		}
	}
	if errors.Is(err, ErrRejected) {
		metrics.RecordSpoolFile(resultRejected)
		w.log.Warn(ctx, "spool submission rejected", logger.String("path", path), logger.Error(err))
		w.move(ctx, path, FailedDir)
		return
	}
	metrics.RecordSpoolFile(resultError)
	w.log.Error(ctx, "spool submission failed, will retry", logger.String("session_id", id), logger.Error(err))
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) ingested(ctx context.Context, path, id string, samples int, dup bool) {
	if dup {
		metrics.RecordSpoolFile(resultDuplicate)
	} else {
		metrics.RecordSpoolFile(resultSubmitted)
	}
	w.log.Debug(ctx, "spool file ingested",
		logger.String("session_id", id),
		logger.Int("samples", samples),
		logger.Bool("duplicate", dup))
	w.move(ctx, path, ProcessedDir)
}

func (w *Watcher) move(ctx context.Context, path, sub string) {
	dst := filepath.Join(w.dir, sub, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		w.log.Warn(ctx, "failed to move spool file", logger.String("path", path), logger.Error(err))
	}
}

func isTrace(name string) bool {
	return strings.EqualFold(filepath.Ext(name), traceExt)
}
