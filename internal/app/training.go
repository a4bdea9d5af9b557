package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/motion"
	"github.com/okian/humancheck/internal/tracegen"
	"github.com/okian/humancheck/pkg/logger"
	"github.com/okian/humancheck/pkg/metrics"
)

// Training outcomes reported to metrics.
const (
	trainSuccess = "success"
	trainFailure = "failure"
)

// TrainingExample is one labeled row given either as features or as a trace.
// Features win when both are set.
type TrainingExample struct {
	Label    classifier.Label
	Features *features.Vector
	Samples  []motion.Sample
}

// TrainRequest asks for a retrain.
//
// Without Persist the model is trained on exactly the given examples. With Persist
// the examples join the stored corpus, the model is trained on the whole corpus and
// its snapshot is written to the configured model path.
type TrainRequest struct {
	Examples []TrainingExample
	Persist  bool
}

// Train fits and publishes a new model. Predictions keep using the previous model
// until the new one is ready.
func (s *Service) Train(ctx context.Context, req TrainRequest) (classifier.Info, error) {
	rows, err := s.labeledRows(req.Examples)
	if err != nil {
		return classifier.Info{}, err
	}

	if !req.Persist {
		if err := s.fit(ctx, rows); err != nil {
			return classifier.Info{}, err
		}
		return s.model.Info(), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return classifier.Info{}, ErrNotStarted
	}

	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	stored, err := s.examples.Examples(ctx)
	if err != nil {
		return classifier.Info{}, fmt.Errorf("load stored examples: %w", err)
	}
	staged, err := s.stage(ctx, append(stored, rows...))
	if err != nil {
		return classifier.Info{}, err
	}
	if err := s.examples.AddExamples(ctx, rows); err != nil {
		return classifier.Info{}, fmt.Errorf("store examples: %w", err)
	}
	staged.Publish(ctx)
	metrics.UpdateModelState(true, len(stored)+len(rows))
	if err := s.saveModel(ctx); err != nil {
		return classifier.Info{}, err
	}
	return s.model.Info(), nil
}

// ModelInfo describes the published model.
func (s *Service) ModelInfo() classifier.Info {
	return s.model.Info()
}

func (s *Service) labeledRows(examples []TrainingExample) ([]classifier.LabeledExample, error) {
	rows := make([]classifier.LabeledExample, 0, len(examples))
	for i, ex := range examples {
		if ex.Features != nil {
			rows = append(rows, classifier.LabeledExample{Features: *ex.Features, Label: ex.Label})
			continue
		}
		if len(ex.Samples) == 0 {
			return nil, fmt.Errorf("%w: example %d has neither features nor samples", ErrInvalidExample, i)
		}
		if err := motion.ValidateOrder(ex.Samples); err != nil {
			return nil, fmt.Errorf("%w: example %d: %w", ErrInvalidExample, i, err)
		}
		fv, err := s.extractor.Extract(ex.Samples)
		if err != nil {
			return nil, fmt.Errorf("%w: example %d: %w", ErrInvalidExample, i, err)
		}
		rows = append(rows, classifier.LabeledExample{Features: fv, Label: ex.Label})
	}
	return rows, nil
}

// fit trains and publishes the model.
func (s *Service) fit(ctx context.Context, rows []classifier.LabeledExample) error {
	staged, err := s.stage(ctx, rows)
	if err != nil {
		return err
	}
	staged.Publish(ctx)
	metrics.UpdateModelState(true, len(rows))
	return nil
}

// stage fits a candidate model and records the outcome.
func (s *Service) stage(ctx context.Context, rows []classifier.LabeledExample) (*classifier.Staged, error) {
	start := time.Now()
	staged, err := s.model.Stage(ctx, rows)
	ms := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordModelTraining(trainFailure, ms)
		return nil, err
	}
	metrics.RecordModelTraining(trainSuccess, ms)
	return staged, nil
}

func (s *Service) saveModel(ctx context.Context) error {
	if s.cfg.ModelPath == "" {
		return nil
	}
	if err := s.model.SaveFile(s.cfg.ModelPath); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	s.log.Info(ctx, "model snapshot saved", logger.String("path", s.cfg.ModelPath))
	return nil
}

// bootstrap makes a model available at startup. It tries, in order: the snapshot
// at the model path, the stored example corpus, and built-in plus synthetic
// examples. Without any of these the model stays untrained and every verdict is a
// fallback until POST /model/train.
func (s *Service) bootstrap(ctx context.Context) error {
	if s.model.Trained() {
		return nil
	}

	if s.cfg.ModelPath != "" {
		err := s.model.LoadFile(s.cfg.ModelPath)
		switch {
		case err == nil:
			info := s.model.Info()
			metrics.UpdateModelState(true, info.Examples)
			s.log.Info(ctx, "model snapshot loaded",
				logger.String("path", s.cfg.ModelPath),
				logger.Int("examples", info.Examples))
			return nil
		case errors.Is(err, fs.ErrNotExist):
		default:
			s.log.Warn(ctx, "ignoring unreadable model snapshot",
				logger.String("path", s.cfg.ModelPath),
				logger.Error(err))
		}
	}

	stored, err := s.examples.Examples(ctx)
	if err != nil {
		return fmt.Errorf("load stored examples: %w", err)
	}
	if len(stored) > 0 {
		return s.fit(ctx, stored)
	}

	if !s.cfg.BootstrapModel {
		metrics.UpdateModelState(false, 0)
		s.log.Warn(ctx, "no model available; sessions will receive fallback verdicts")
		return nil
	}

	rows := classifier.SeedExamples()
	if n := s.cfg.BootstrapSessions; n > 0 {
		gen := tracegen.New(
			tracegen.WithSeed(s.cfg.ForestSeed),
			tracegen.WithSamplerOptions(
				motion.WithInterval(s.cfg.SamplingInterval),
				motion.WithNoise(s.cfg.SamplingNoise),
			),
		)
		synthetic, err := gen.Examples(2*n, s.extractor)
		if err != nil {
			return fmt.Errorf("generate bootstrap examples: %w", err)
		}
		rows = append(rows, synthetic...)
	}
	if err := s.fit(ctx, rows); err != nil {
		return err
	}
	return s.saveModel(ctx)
}
