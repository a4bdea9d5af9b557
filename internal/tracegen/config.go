package tracegen

import (
	"time"

	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/internal/domain/motion"
	"github.com/okian/humancheck/internal/domain/types"
)

// Config holds configuration for a generation run.
type Config struct {
	BaseURL   string        // service to submit to
	Sessions  int           // traces to generate
	Workers   int           // concurrent submitters
	Timeout   time.Duration // HTTP request timeout
	Wait      time.Duration // how long to wait for verdicts
	OutputDir string        // CSV destination, empty to skip
	Seed      int64
	Frames    int
	Submit    bool
	TopN      int // suspects fetched after the run
	Verbose   bool
}

// SessionRequest is the body of POST /sessions.
type SessionRequest struct {
	SessionID string          `json:"session_id"`
	Source    motion.Source   `json:"source"`
	Samples   []motion.Sample `json:"samples"`
}

// AckResponse is the reply to a submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Verdict is the stored verdict returned by GET /verdicts/{id}.
type Verdict = model.Verdict

// Suspect is one row of GET /suspects.
type Suspect = types.Suspect

// Stats holds run statistics.
type Stats struct {
	Generated int
	Written   int
	Submitted int
	Accepted  int
	Duplicate int
	Failed    int

	Retrieved int
	Missing   int
	Fallbacks int
	Correct   int

	// Confusion counts with bot as the positive class.
	TruePositive  int
	FalsePositive int
	TrueNegative  int
	FalseNegative int

	Suspects  int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Accuracy is the share of retrieved verdicts that matched the generated label.
func (s *Stats) Accuracy() float64 {
	if s.Retrieved == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Retrieved)
}
