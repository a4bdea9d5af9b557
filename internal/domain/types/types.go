// Package types contains common types used across the application
package types

// Suspect is one row of the bot-probability ranking.
type Suspect struct {
	Rank           int     `json:"rank"`
	SessionID      string  `json:"session_id"`
	BotProbability float64 `json:"bot_probability"`
	Verdict        string  `json:"prediction"`
	Confidence     float64 `json:"confidence"`
	Fallback       bool    `json:"fallback"`
}

// Summary aggregates the verdicts held by a store.
type Summary struct {
	Total     int `json:"total"`
	Human     int `json:"human"`
	Bot       int `json:"bot"`
	Fallbacks int `json:"fallbacks"`
}

// Add counts one verdict.
func (s *Summary) Add(verdict string, fallback bool) { s.apply(verdict, fallback, 1) }

// Remove uncounts one verdict.
func (s *Summary) Remove(verdict string, fallback bool) { s.apply(verdict, fallback, -1) }

func (s *Summary) apply(verdict string, fallback bool, d int) {
	s.Total += d
	switch verdict {
	case "human":
		s.Human += d
	case "bot":
		s.Bot += d
	}
	if fallback {
		s.Fallbacks += d
	}
}
