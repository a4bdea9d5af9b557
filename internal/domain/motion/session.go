package motion

import (
	"sync"

	"github.com/google/uuid"
)

// Default session configuration constants.
const (
	defaultBufferSize = 1024
)

// SessionOption applies a configuration option to the Session.
type SessionOption func(*Session)

// WithSessionID sets an explicit session identifier.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithSource sets what the session tracks.
func WithSource(src Source) SessionOption {
	return func(s *Session) {
		if src != "" {
			s.source = src
		}
	}
}

// WithSamplerOptions configures the sampler used for player sessions.
func WithSamplerOptions(opts ...SamplerOption) SessionOption {
	return func(s *Session) {
		s.samplerOpts = append(s.samplerOpts, opts...)
	}
}

// Session is one bounded episode of tracked movement, from a reset to termination.
//
// It owns its sampler and its sample buffer. Player sessions go through the Sampler;
// cursor sessions record every position change as reported. Only one control loop
// drives a session, but Finish may be called from another goroutine.
type Session struct {
	id          string
	source      Source
	samplerOpts []SamplerOption

	mu       sync.Mutex
	sampler  *Sampler
	samples  []Sample
	lastRaw  Point
	hasRaw   bool
	finished bool
}

// NewSession starts a new session with configuration options.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		source:  SourcePlayer,
		samples: make([]Sample, 0, defaultBufferSize),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.id == "" {
		s.id = uuid.New().String()
	}
	if s.source == SourcePlayer {
		s.sampler = NewSampler(s.samplerOpts...)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Source returns what the session tracks.
func (s *Session) Source() Source { return s.source }

// Track records the position observed at now. It reports whether a sample was
// appended to the session buffer.
func (s *Session) Track(pos Point, now float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return false
	}

	var (
		sample Sample
		ok     bool
	)
	switch s.source {
	case SourceCursor:
		sample, ok = s.trackRaw(pos, now)
	default:
		sample, ok = s.sampler.Update(pos, now)
	}
	if !ok {
		return false
	}

	if n := len(s.samples); n > 0 && sample.Timestamp <= s.samples[n-1].Timestamp {
		return false
	}
	s.samples = append(s.samples, sample)
	return true
}

// trackRaw records a cursor position only when it moved. The first observation is
// a reference point and is not recorded.
func (s *Session) trackRaw(pos Point, now float64) (Sample, bool) {
	if !s.hasRaw {
		s.hasRaw = true
		s.lastRaw = pos
		return Sample{}, false
	}
	if pos == s.lastRaw {
		return Sample{}, false
	}
	s.lastRaw = pos
	return Sample{Timestamp: now, X: pos.X, Y: pos.Y}, true
}

// Len returns the number of recorded samples.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Finish ends the session and hands the recorded samples to the caller.
// Subsequent calls return ErrSessionClosed.
func (s *Session) Finish() ([]Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return nil, ErrSessionClosed
	}
	s.finished = true

	out := s.samples
	s.samples = nil
	return out, nil
}

// ValidateOrder checks that timestamps are strictly increasing.
func ValidateOrder(samples []Sample) error {
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp <= samples[i-1].Timestamp {
			return ErrNonMonotonic
		}
	}
	return nil
}
