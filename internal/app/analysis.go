package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/pkg/logger"
	"github.com/okian/humancheck/pkg/metrics"
)

// Analyze scores a session synchronously. Nothing is stored. Errors are returned
// as is: features.ErrInsufficientData, classifier.ErrModelNotTrained or
// classifier.ErrInvalidFeatures.
func (s *Service) Analyze(ctx context.Context, sub model.Submission) (model.Verdict, error) {
	v, _, err := s.analyze(ctx, sub)
	return v, err
}

// analyze returns the extracted features even when classification fails.
func (s *Service) analyze(ctx context.Context, sub model.Submission) (model.Verdict, *features.Vector, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAnalysisLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	fv, err := s.extractor.Extract(sub.Samples)
	if err != nil {
		return model.Verdict{}, nil, fmt.Errorf("session %s: %w", sub.SessionID, err)
	}
	p, err := s.model.Predict(ctx, fv)
	if err != nil {
		return model.Verdict{}, &fv, fmt.Errorf("session %s: %w", sub.SessionID, err)
	}

	v := model.FromPrediction(sub, p, s.now())
	metrics.RecordSessionAnalyzed(len(sub.Samples))
	metrics.RecordVerdict(string(v.Verdict), v.Confidence)
	return v, &fv, nil
}

// fallbackReason maps an analysis failure to the reason stored on its verdict.
func fallbackReason(err error) string {
	switch {
	case errors.Is(err, features.ErrInsufficientData):
		return model.ReasonInsufficientData
	case errors.Is(err, classifier.ErrModelNotTrained):
		return model.ReasonModelNotTrained
	case errors.Is(err, classifier.ErrInvalidFeatures):
		return model.ReasonInvalidFeatures
	default:
		return model.ReasonInternal
	}
}

// fallbackAnalyzer adapts the service to worker.Analyzer. Sessions that cannot be
// scored still get a stored verdict: human, flagged as a fallback.
type fallbackAnalyzer struct {
	svc *Service
}

func (a *fallbackAnalyzer) Analyze(ctx context.Context, sub model.Submission) (model.Verdict, error) { //nolint:gocritic // hugeParam: matches worker.Analyzer
	v, fv, err := a.svc.analyze(ctx, sub)
	if err == nil {
		return v, nil
	}

	reason := fallbackReason(err)
	metrics.RecordFallback(reason)
	metrics.RecordVerdict(string(classifier.LabelHuman), 0)
	a.svc.log.Warn(ctx, "falling back to human verdict",
		logger.String("session_id", sub.SessionID),
		logger.String("reason", reason),
		logger.Int("samples", len(sub.Samples)),
		logger.Error(err))
	return model.FallbackVerdict(sub, reason, fv, a.svc.now()), nil
}
