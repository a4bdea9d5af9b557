// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/motion"
)

// Fallback reasons recorded on verdicts that were not produced by the model.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonModelNotTrained  = "model_not_trained"
	ReasonInvalidFeatures  = "invalid_features"
	ReasonInternal         = "internal"
)

// Submission is a finished tracking session handed in for analysis.
type Submission struct {
	SessionID  string          // unique id for idempotency
	Source     motion.Source   // what was tracked
	Samples    []motion.Sample // ordered trace
	ReceivedAt time.Time
}

// Verdict is the stored outcome of analyzing one session.
type Verdict struct {
	SessionID        string           `json:"session_id"`
	Source           motion.Source    `json:"source"`
	Verdict          classifier.Label `json:"prediction"`
	Confidence       float64          `json:"confidence"`
	HumanProbability float64          `json:"human_probability"`
	BotProbability   float64          `json:"bot_probability"`
	Features         *features.Vector `json:"features,omitempty"`
	Samples          int              `json:"samples"`
	Fallback         bool             `json:"fallback"`
	Reason           string           `json:"reason,omitempty"`
	AnalyzedAt       time.Time        `json:"analyzed_at"`
}

// FromPrediction builds a model-backed verdict.
func FromPrediction(sub Submission, p classifier.Prediction, at time.Time) Verdict {
	v := p.Features
	return Verdict{
		SessionID:        sub.SessionID,
		Source:           sub.Source,
		Verdict:          p.Verdict,
		Confidence:       p.Confidence,
		HumanProbability: p.HumanProbability,
		BotProbability:   p.BotProbability,
		Features:         &v,
		Samples:          len(sub.Samples),
		AnalyzedAt:       at,
	}
}

// FallbackVerdict builds the verdict stored when analysis could not run. Sessions
// that cannot be judged are given the benefit of the doubt.
func FallbackVerdict(sub Submission, reason string, fv *features.Vector, at time.Time) Verdict {
	return Verdict{
		SessionID:        sub.SessionID,
		Source:           sub.Source,
		Verdict:          classifier.LabelHuman,
		Confidence:       0,
		HumanProbability: 1,
		BotProbability:   0,
		Features:         fv,
		Samples:          len(sub.Samples),
		Fallback:         true,
		Reason:           reason,
		AnalyzedAt:       at,
	}
}
