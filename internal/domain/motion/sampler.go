package motion

import (
	"math/rand"
	"time"
)

// Default sampler configuration constants.
const (
	// DefaultInterval caps emission at roughly 60 Hz when time is in milliseconds.
	DefaultInterval = 16.67
	// DefaultNoise bounds the per-axis jitter added to every emitted sample.
	DefaultNoise = 0.2
)

// SamplerOption applies a configuration option to the Sampler.
type SamplerOption func(*Sampler)

// WithInterval sets the minimum elapsed time between two emitted samples.
func WithInterval(interval float64) SamplerOption {
	return func(s *Sampler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithNoise sets the half-width of the uniform jitter added per axis.
// Zero disables jitter.
func WithNoise(amplitude float64) SamplerOption {
	return func(s *Sampler) {
		if amplitude >= 0 {
			s.noise = amplitude
		}
	}
}

// WithRand sets the random source used for jitter.
func WithRand(rng *rand.Rand) SamplerOption {
	return func(s *Sampler) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// Sampler converts an irregular position stream into evenly spaced samples.
//
// Displacement observed between emissions is accumulated, so motion smaller than one
// reporting unit is not lost to low-rate sampling. Every emitted position carries a
// small uniform jitter which keeps traces from being perfectly linear or quantized.
//
// A Sampler is owned by one control loop and is not safe for concurrent use.
type Sampler struct {
	interval float64
	noise    float64
	rng      *rand.Rand

	seeded         bool
	last           Point
	lastSampleTime float64
	acc            Point
}

// NewSampler creates a sampler with configuration options.
func NewSampler(opts ...SamplerOption) *Sampler {
	s := &Sampler{
		interval: DefaultInterval,
		noise:    DefaultNoise,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // jitter, not security
	}
	return s
}

// Update feeds the current raw position observed at now.
//
// The first call only seeds the reference state. Later calls add the displacement
// from the last recorded raw position into the accumulator and emit a sample once at
// least one interval has elapsed since the previous emission. ok is false when nothing
// was emitted; callers must not advance session state in that case.
func (s *Sampler) Update(pos Point, now float64) (sample Sample, ok bool) {
	if !s.seeded {
		s.seeded = true
		s.last = pos
		s.lastSampleTime = now
		return Sample{}, false
	}

	s.acc = s.acc.Add(pos.Sub(s.last))

	if now-s.lastSampleTime < s.interval {
		return Sample{}, false
	}

	reported := s.last.Add(s.acc).Add(s.jitter())
	s.acc = Point{}
	s.last = pos
	s.lastSampleTime = now

	return Sample{Timestamp: now, X: reported.X, Y: reported.Y}, true
}

// Reset drops all state so the next Update seeds again.
func (s *Sampler) Reset() {
	s.seeded = false
	s.last = Point{}
	s.lastSampleTime = 0
	s.acc = Point{}
}

// jitter draws independent uniform noise in [-noise, +noise] for each axis.
func (s *Sampler) jitter() Point {
	if s.noise == 0 {
		return Point{}
	}
	return Point{
		X: (s.rng.Float64()*2 - 1) * s.noise,
		Y: (s.rng.Float64()*2 - 1) * s.noise,
	}
}
