package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/humancheck/internal/domain/motion"
)

// Default thresholds.
const (
	// DefaultPauseThreshold is the speed below which a step counts as a pause.
	DefaultPauseThreshold = 0.1
	// DefaultDirectionThreshold is the heading change, in radians, that counts as a turn.
	DefaultDirectionThreshold = math.Pi / 4
)

// Option applies a configuration option to the Extractor.
type Option func(*Extractor)

// WithPauseThreshold sets the speed below which a step counts as paused.
func WithPauseThreshold(threshold float64) Option {
	return func(e *Extractor) {
		if threshold >= 0 && !math.IsInf(threshold, 0) {
			e.pauseThreshold = threshold
		}
	}
}

// WithDirectionThreshold sets the minimum heading change, in radians, counted as a turn.
func WithDirectionThreshold(threshold float64) Option {
	return func(e *Extractor) {
		if threshold >= 0 && threshold <= math.Pi {
			e.directionThreshold = threshold
		}
	}
}

// Extractor computes a Vector from an ordered trace. It holds only configuration and
// is safe for concurrent use.
type Extractor struct {
	pauseThreshold     float64
	directionThreshold float64
}

// NewExtractor creates an extractor with configuration options.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		pauseThreshold:     DefaultPauseThreshold,
		directionThreshold: DefaultDirectionThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PauseThreshold returns the configured pause speed.
func (e *Extractor) PauseThreshold() float64 { return e.pauseThreshold }

// DirectionThreshold returns the configured turn angle.
func (e *Extractor) DirectionThreshold() float64 { return e.directionThreshold }

// step is the finite difference between two consecutive samples.
type step struct {
	dx, dy  float64
	dt      float64
	vx, vy  float64
	defined bool
}

// Extract reduces samples into a Vector. The input is not modified.
//
// Derivatives over a zero time delta are undefined and are left out of every
// statistic instead of failing the whole trace.
func (e *Extractor) Extract(samples []motion.Sample) (Vector, error) {
	if len(samples) < 2 {
		return Vector{}, fmt.Errorf("got %d samples, need 2: %w", len(samples), ErrInsufficientData)
	}

	steps := make([]step, len(samples)-1)
	var vx, vy []float64
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		st := step{
			dx: cur.X - prev.X,
			dy: cur.Y - prev.Y,
			dt: cur.Timestamp - prev.Timestamp,
		}
		if st.dt != 0 {
			st.vx, st.vy = st.dx/st.dt, st.dy/st.dt
			st.defined = finite(st.vx) && finite(st.vy)
		}
		if st.defined {
			vx = append(vx, st.vx)
			vy = append(vy, st.vy)
		}
		steps[i-1] = st
	}

	var ax, ay []float64
	for i := 1; i < len(steps); i++ {
		prev, cur := steps[i-1], steps[i]
		if !prev.defined || !cur.defined || cur.dt == 0 {
			continue
		}
		x, y := (cur.vx-prev.vx)/cur.dt, (cur.vy-prev.vy)/cur.dt
		if finite(x) && finite(y) {
			ax = append(ax, x)
			ay = append(ay, y)
		}
	}

	return Vector{
		VelocityStd:      math.Hypot(stdDev(vx), stdDev(vy)),
		VelocityMean:     math.Hypot(mean(vx), mean(vy)),
		AccelerationStd:  math.Hypot(stdDev(ax), stdDev(ay)),
		PathEfficiency:   pathEfficiency(samples, steps),
		PauseRatio:       e.pauseRatio(steps),
		DirectionChanges: e.directionChanges(steps),
	}, nil
}

func pathEfficiency(samples []motion.Sample, steps []step) float64 {
	var length float64
	for _, st := range steps {
		length += math.Hypot(st.dx, st.dy)
	}
	if length == 0 || !finite(length) {
		return 0
	}
	first, last := samples[0], samples[len(samples)-1]
	direct := math.Hypot(last.X-first.X, last.Y-first.Y)
	return math.Min(direct/length, 1)
}

func (e *Extractor) pauseRatio(steps []step) float64 {
	paused := 0
	for _, st := range steps {
		if st.defined && math.Hypot(st.vx, st.vy) < e.pauseThreshold {
			paused++
		}
	}
	return float64(paused) / float64(len(steps))
}

func (e *Extractor) directionChanges(steps []step) float64 {
	var (
		changes int
		prev    float64
		havePre bool
	)
	for _, st := range steps {
		if !st.defined {
			continue
		}
		heading := math.Atan2(st.vy, st.vx)
		if havePre && math.Abs(math.Remainder(heading-prev, 2*math.Pi)) > e.directionThreshold {
			changes++
		}
		prev, havePre = heading, true
	}
	return float64(changes)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
