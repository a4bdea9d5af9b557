package tracegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/humancheck/internal/adapters/tracefile"
	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/pkg/logger"
)

// ErrServiceUnhealthy is returned when the service health check fails.
var ErrServiceUnhealthy = errors.New("service unhealthy")

// Run generates traces, optionally writes them as CSV and submits them, then
// reports how many verdicts matched the generated labels.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("trace_gen")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting trace generation",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("workers", cfg.Workers),
		logger.Int64("seed", cfg.Seed),
		logger.String("output_dir", cfg.OutputDir),
		logger.Bool("submit", cfg.Submit))

	if cfg.Submit {
		if err := checkServiceHealth(ctx, cfg); err != nil {
			return stats, err
		}
	}

	traces, err := New(WithSeed(cfg.Seed), WithFrames(cfg.Frames)).Batch(cfg.Sessions)
	if err != nil {
		return stats, fmt.Errorf("trace generation failed: %w", err)
	}
	stats.Generated = len(traces)

	if cfg.OutputDir != "" {
		n, err := writeTraces(cfg.OutputDir, traces)
		stats.Written = n
		if err != nil {
			return stats, fmt.Errorf("writing traces failed: %w", err)
		}
		log.Info(ctx, "traces written", logger.Int("count", n), logger.String("dir", cfg.OutputDir))
	}

	if cfg.Submit {
		submitTraces(ctx, cfg, traces, stats)
		collectVerdicts(ctx, cfg, traces, stats)
		if cfg.TopN > 0 {
			var suspects []Suspect
			err := newHTTPClient(cfg).getJSON(ctx, fmt.Sprintf("/suspects?limit=%d", cfg.TopN), &suspects)
			if err != nil {
				log.Warn(ctx, "failed to fetch suspects", logger.Error(err))
			}
			stats.Suspects = len(suspects)
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, cfg *Config) error {
	resp, err := newHTTPClient(cfg).get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnhealthy, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrServiceUnhealthy, resp.StatusCode)
	}
	return nil
}

// writeTraces stores each trace as <label>_<session_id>.csv.
func writeTraces(dir string, traces []Trace) (int, error) {
	if err := os.MkdirAll(dir, directoryPermission); err != nil {
		return 0, err
	}
	for i, t := range traces {
		name := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", t.Label, t.SessionID))
		if err := tracefile.WriteFile(name, t.Samples); err != nil {
			return i, err
		}
	}
	return len(traces), nil
}

// collectVerdicts polls until every submitted session has a verdict or the wait expires.
func collectVerdicts(ctx context.Context, cfg *Config, traces []Trace, stats *Stats) {
	client := newHTTPClient(cfg)
	pending := make(map[string]classifier.Label, len(traces))
	for _, t := range traces {
		pending[t.SessionID] = t.Label
	}

	deadline := time.Now().Add(cfg.Wait)
	for len(pending) > 0 {
		for id, want := range pending {
			var v Verdict
			err := client.getJSON(ctx, verdictPath(id), &v)
			if err != nil {
				continue
			}
			delete(pending, id)
			tally(stats, want, v)
		}
		if len(pending) == 0 || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			stats.Missing = len(pending)
			return
		case <-time.After(PollInterval):
		}
	}
	stats.Missing = len(pending)
}

func tally(stats *Stats, want classifier.Label, v Verdict) {
	stats.Retrieved++
	if v.Fallback {
		stats.Fallbacks++
	}
	if v.Verdict == want {
		stats.Correct++
	}
	switch {
	case want == classifier.LabelBot && v.Verdict == classifier.LabelBot:
		stats.TruePositive++
	case want == classifier.LabelHuman && v.Verdict == classifier.LabelBot:
		stats.FalsePositive++
	case want == classifier.LabelHuman:
		stats.TrueNegative++
	default:
		stats.FalseNegative++
	}
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Generated) / stats.Duration.Seconds()
	}
	logger.Get().Named("trace_gen").Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("written", stats.Written),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Int("retrieved", stats.Retrieved),
		logger.Int("missing", stats.Missing),
		logger.Int("fallbacks", stats.Fallbacks),
		logger.Float64("accuracy_pct", stats.Accuracy()*PercentageMultiplier),
		logger.Int("true_positive", stats.TruePositive),
		logger.Int("false_positive", stats.FalsePositive),
		logger.Int("true_negative", stats.TrueNegative),
		logger.Int("false_negative", stats.FalseNegative),
		logger.Int("suspects", stats.Suspects),
		logger.Duration("duration", stats.Duration),
		logger.Float64("traces_per_second", perSecond))
}
