// Package motion turns raw on-screen positions into evenly spaced movement samples.
//
// A Sampler smooths a bursty position stream into fixed-rate Samples and a Session
// owns one Sampler plus the sample buffer for a single tracked episode.
package motion

import "strings"

// Point is a 2-D screen position. Coordinates are floats so sub-pixel motion survives.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Sample is one fixed-interval observation of a tracked object.
type Sample struct {
	Timestamp float64 `json:"t"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// Position returns the sample coordinates as a Point.
func (s Sample) Position() Point { return Point{X: s.X, Y: s.Y} }

// Source identifies what was tracked during a session.
type Source string

const (
	// SourcePlayer is the player avatar, recorded through the Sampler.
	SourcePlayer Source = "player"
	// SourceCursor is the raw pointer, recorded on every position change.
	SourceCursor Source = "cursor"
)

// ParseSource maps a wire value to a Source. Empty input means SourcePlayer.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(SourcePlayer):
		return SourcePlayer, nil
	case string(SourceCursor):
		return SourceCursor, nil
	default:
		return "", ErrUnknownSource
	}
}
