// Package service wires the analysis pipeline behind the HTTP API and the spool
// watcher: dedupe, queue, worker pool, feature extraction, classification and the
// verdict store.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/humancheck/internal/adapters/mq/queue"
	"github.com/okian/humancheck/internal/adapters/mq/worker"
	"github.com/okian/humancheck/internal/adapters/repository"
	"github.com/okian/humancheck/internal/adapters/watcher"
	"github.com/okian/humancheck/internal/config"
	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/dedupe"
	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/internal/domain/motion"
	"github.com/okian/humancheck/internal/domain/types"
	"github.com/okian/humancheck/pkg/logger"
	"github.com/okian/humancheck/pkg/metrics"
)

const secondsToDuration = float64(time.Second)

// Service implements the API dependencies for session analysis.
type Service struct {
	mu      sync.RWMutex
	trainMu sync.Mutex // serializes persisting trains

	cfg *config.Config
	log logger.Logger
	now func() time.Time

	// Core components
	model     *classifier.Model
	extractor *features.Extractor
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	store     repository.Store
	examples  repository.ExampleStore
	spool     *watcher.Watcher

	// closers run on Stop in reverse order
	closers []func() error
	started bool
	stopped bool
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults come from config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStore overrides the verdict store selected by configuration.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithExampleStore overrides the labeled example store.
func WithExampleStore(es repository.ExampleStore) Option {
	return func(s *Service) {
		if es != nil {
			s.examples = es
		}
	}
}

// WithModel supplies a prepared model instead of one built from configuration.
func WithModel(m *classifier.Model) Option {
	return func(s *Service) {
		if m != nil {
			s.model = m
		}
	}
}

// WithClock sets the time source used to stamp verdicts.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("service")
	}
	if s.cfg.WorkerCount < 1 {
		s.cfg.WorkerCount = runtime.NumCPU()
	}

	s.extractor = features.NewExtractor(
		features.WithPauseThreshold(s.cfg.PauseThreshold),
		features.WithDirectionThreshold(s.cfg.DirectionThreshold),
	)
	if s.model == nil {
		forest := []classifier.ForestOption{
			classifier.WithTrees(s.cfg.ForestTrees),
			classifier.WithSeed(s.cfg.ForestSeed),
			classifier.WithMaxDepth(s.cfg.ForestMaxDepth),
		}
		s.model = classifier.NewModel(
			classifier.WithEstimator(func() classifier.Estimator { return classifier.NewRandomForest(forest...) }),
			classifier.WithLogger(s.log.Named("model")),
		)
	}
	return s
}

// Start builds the stores, bootstraps the model and starts the workers and the
// spool watcher.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	s.log.Info(ctx, "starting humancheck service...")

	if err := s.openStores(ctx); err != nil {
		s.closeAll(ctx)
		return err
	}
	if err := s.bootstrap(ctx); err != nil {
		s.closeAll(ctx)
		return fmt.Errorf("bootstrap model: %w", err)
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
	s.pool = worker.NewPool(s.cfg.WorkerCount, s.queue, &fallbackAnalyzer{svc: s}, s.store,
		worker.WithPoolLogger(s.log.Named("worker_pool")))
	s.pool.Start(ctx)

	if s.cfg.SpoolDir != "" {
		w, err := watcher.New(s.cfg.SpoolDir, s,
			watcher.WithSettle(time.Duration(s.cfg.SpoolSettleSeconds*secondsToDuration)),
			watcher.WithLogger(s.log.Named("spool")))
		if err == nil {
			err = w.Start(ctx)
		}
		if err != nil {
			if w != nil {
				_ = w.Stop()
			}
			_ = s.pool.Shutdown(ctx)
			s.closeAll(ctx)
			return fmt.Errorf("spool watcher: %w", err)
		}
		s.spool = w
	}

	s.started = true
	s.log.Info(ctx, "humancheck service started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.Int("dedupe_size", s.cfg.DedupeSize),
		logger.String("store", s.cfg.Store),
		logger.Bool("model_trained", s.model.Trained()))
	return nil
}

// openStores selects the verdict and example stores. Injected stores win.
func (s *Service) openStores(ctx context.Context) error {
	if s.cfg.Store == config.StoreSQLite && (s.store == nil || s.examples == nil) {
		sqlStore, err := repository.NewSQLStore(ctx, s.cfg.DBPath, repository.WithSQLLogger(s.log.Named("sql_store")))
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		s.closers = append(s.closers, sqlStore.Close)
		if s.store == nil {
			s.store = sqlStore
		}
		if s.examples == nil {
			s.examples = sqlStore
		}
	}
	if s.store == nil {
		treap := repository.NewTreapStore(ctx,
			repository.WithTopCacheSize(s.cfg.MaxSuspectsLimit),
			repository.WithLogger(s.log.Named("treap_store")))
		s.store = treap
		s.closers = append(s.closers, treap.Close)
	}
	if s.examples == nil {
		s.examples = repository.NewMemoryExamples()
	}
	return nil
}

func (s *Service) closeAll(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn(ctx, "error closing component", logger.Error(err))
		}
	}
	s.closers = nil
}

// Stop stops the watcher, drains the queue and closes the stores. A stopped
// service cannot be started again.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.stopped = true
	spool, pool := s.spool, s.pool
	s.spool = nil
	s.mu.Unlock()

	s.log.Info(ctx, "stopping humancheck service...")

	// The watcher and the workers call back into the service, so they are
	// stopped without holding the lock.
	var errs []error
	if spool != nil {
		errs = append(errs, spool.Stop())
	}
	if pool != nil {
		errs = append(errs, pool.Shutdown(ctx))
	}

	s.mu.Lock()
	s.closeAll(ctx)
	s.mu.Unlock()

	s.log.Info(ctx, "humancheck service stopped")
	return errors.Join(errs...)
}

// Submit validates a finished session and queues it for analysis. It reports
// whether the session id was already seen.
func (s *Service) Submit(ctx context.Context, sub model.Submission) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, ErrNotStarted
	}

	if sub.SessionID == "" {
		return false, fmt.Errorf("%w: missing session_id", ErrInvalidSubmission)
	}
	if err := motion.ValidateOrder(sub.Samples); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	if sub.Source == "" {
		sub.Source = motion.SourcePlayer
	}
	if sub.ReceivedAt.IsZero() {
		sub.ReceivedAt = s.now()
	}

	if s.deduper.SeenAndRecord(ctx, sub.SessionID) {
		metrics.RecordSessionDuplicate()
		s.log.Debug(ctx, "duplicate session", logger.String("session_id", sub.SessionID))
		return true, nil
	}
	if err := s.queue.Enqueue(ctx, sub); err != nil {
		s.deduper.Unrecord(ctx, sub.SessionID)
		return false, fmt.Errorf("%w: %w", ErrBackpressure, err)
	}
	metrics.RecordSessionSubmitted()
	return false, nil
}

// Verdict returns the stored verdict of a session.
func (s *Service) Verdict(ctx context.Context, sessionID string) (model.Verdict, error) {
	store, err := s.verdicts()
	if err != nil {
		return model.Verdict{}, err
	}
	return store.Get(ctx, sessionID)
}

// Rank returns the ranking row of a session.
func (s *Service) Rank(ctx context.Context, sessionID string) (types.Suspect, error) {
	store, err := s.verdicts()
	if err != nil {
		return types.Suspect{}, err
	}
	return store.Rank(ctx, sessionID)
}

// TopSuspects returns up to n sessions ranked by bot probability.
func (s *Service) TopSuspects(ctx context.Context, n int) ([]types.Suspect, error) {
	store, err := s.verdicts()
	if err != nil {
		return nil, err
	}
	return store.TopSuspects(ctx, n)
}

func (s *Service) verdicts() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// MaxSuspectsLimit is the largest accepted suspects limit.
func (s *Service) MaxSuspectsLimit() int {
	return s.cfg.MaxSuspectsLimit
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Started       bool            `json:"started"`
	Store         string          `json:"store"`
	Workers       int             `json:"workers"`
	ActiveWorkers int             `json:"active_workers"`
	QueueLength   int             `json:"queue_length"`
	QueueCapacity int             `json:"queue_capacity"`
	DedupeSize    int64           `json:"dedupe_size"`
	Verdicts      types.Summary   `json:"verdicts"`
	Model         classifier.Info `json:"model"`
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:       s.started,
		Store:         s.cfg.Store,
		Workers:       s.cfg.WorkerCount,
		QueueCapacity: s.cfg.QueueSize,
		Model:         s.model.Info(),
	}
	if !s.started {
		return st
	}

	st.ActiveWorkers = s.pool.Active()
	st.QueueLength = s.queue.Len()
	st.DedupeSize = s.deduper.Size()
	sum, err := s.store.Summary(ctx)
	if err != nil {
		s.log.Warn(ctx, "failed to summarize verdicts", logger.Error(err))
	}
	st.Verdicts = sum

	metrics.UpdateQueueSize(st.QueueLength)
	metrics.UpdateStoreVerdicts(sum.Total)
	return st
}
