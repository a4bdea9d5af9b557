// Package repository stores verdicts and labeled training examples.
package repository

import (
	"context"

	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/internal/domain/types"
)

// Store holds the latest verdict per session and ranks sessions by bot
// probability DESC, then session ID ASC.
type Store interface {
	Record(ctx context.Context, v model.Verdict) error
	Get(ctx context.Context, sessionID string) (model.Verdict, error)
	Rank(ctx context.Context, sessionID string) (types.Suspect, error)
	TopSuspects(ctx context.Context, n int) ([]types.Suspect, error)
	Summary(ctx context.Context) (types.Summary, error)
	Count(ctx context.Context) int
	Close() error
}

// ExampleStore persists labeled training rows.
type ExampleStore interface {
	AddExamples(ctx context.Context, examples []classifier.LabeledExample) error
	Examples(ctx context.Context) ([]classifier.LabeledExample, error)
}
