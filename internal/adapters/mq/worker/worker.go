// Package worker runs asynchronous session analysis off the queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/pkg/logger"
	"github.com/okian/humancheck/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// Analyzer turns a submission into a verdict.
type Analyzer interface {
	Analyze(ctx context.Context, sub model.Submission) (model.Verdict, error)
}

// Recorder stores verdicts.
type Recorder interface {
	Record(ctx context.Context, v model.Verdict) error
}

// Queue defines how workers receive submissions.
type Queue interface {
	Dequeue() <-chan model.Submission
}

// InMemoryWorker analyzes submissions and records the verdicts.
type InMemoryWorker struct {
	queue    Queue
	analyzer Analyzer
	recorder Recorder
	name     string
	active   *atomic.Int64

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, analyzer Analyzer, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		analyzer: analyzer,
		recorder: recorder,
		name:     "worker",
		active:   new(atomic.Int64),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run consumes until the queue channel is closed and drained, or ctx is canceled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case sub, ok := <-items:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, sub); err != nil {
				w.logger.Error(ctx, "error processing session", logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// process handles a single submission.
func (w *InMemoryWorker) process(ctx context.Context, sub model.Submission) error { //nolint:gocritic // hugeParam: Submission is passed by value for channel semantics
	w.active.Add(1)
	start := time.Now()
	defer func() {
		w.active.Add(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	verdict, err := w.analyzer.Analyze(ctx, sub)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "analysis_error")
		metrics.RecordErrorByType("analysis_error", "high")
		return fmt.Errorf("analyze session %s: %w", sub.SessionID, err)
	}

	if err := w.recorder.Record(ctx, verdict); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "store_error")
		metrics.RecordErrorByType("store_error", "high")
		return fmt.Errorf("record verdict %s: %w", sub.SessionID, err)
	}

	w.logger.Debug(ctx, "session analyzed",
		logger.String("session_id", sub.SessionID),
		logger.String("verdict", string(verdict.Verdict)),
		logger.Float64("confidence", verdict.Confidence),
		logger.Bool("fallback", verdict.Fallback),
	)
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  atomic.Int64
	logger  logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewPool creates a new worker pool. A non-positive count means one worker per CPU.
func NewPool(workerCount int, queue Queue, analyzer Analyzer, recorder Recorder, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}

	for i := 0; i < workerCount; i++ {
		name := "worker-" + strconv.Itoa(i)
		w := NewInMemoryWorker(queue, analyzer, recorder,
			WithName(name),
			WithLogger(p.logger.Named(name)),
		)
		w.active = &p.active
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active returns the number of workers currently analyzing a session.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.reportUtilization(ctx)
}

func (p *Pool) reportUtilization(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			active := p.Active()
			metrics.UpdateWorkerActiveCount(active)
			metrics.UpdateWorkerIdleCount(len(p.workers) - active)
		}
	}
}

// Shutdown closes the queue when it supports closing and waits for the workers
// to drain what is left, bounded by ctx and an internal timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })

	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
