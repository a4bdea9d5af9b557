// Package tracegen produces synthetic movement traces with known labels.
//
// Human traces wander between waypoints with drifting heading, uneven speed and short
// pauses. Bot traces travel straight segments at constant speed. Both are driven
// through motion.Session so they carry the same sampling artifacts as live sessions.
package tracegen

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"
	"github.com/google/uuid"

	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/internal/domain/motion"
)

// Playfield and motion constants, in pixels and milliseconds.
const (
	DefaultFrames     = 240
	DefaultFrameMs    = 17.0
	fieldWidth        = 800.0
	fieldHeight       = 600.0
	fieldMargin       = 40.0
	arriveRadius      = 8.0
	humanSpeedMin     = 0.12
	humanSpeedRange   = 0.3
	botSpeed          = 0.15
	speedWobble       = 0.8
	pauseChance       = 0.02
	pauseFramesMin    = 4
	pauseFramesRange  = 20
	headingDrift      = 1.2
	perlinFrequency   = 0.004
	perlinAlpha       = 2.0
	perlinBeta        = 2.0
	perlinOctaves     = int32(3)
	perlinYSeedOffset = 1
)

// Trace is one generated session with its ground truth.
type Trace struct {
	SessionID string
	Label     classifier.Label
	Source    motion.Source
	Samples   []motion.Sample
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes generation reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// WithFrames sets how many control-loop frames one session lasts.
func WithFrames(n int) Option {
	return func(g *Generator) {
		if n > 1 {
			g.frames = n
		}
	}
}

// WithFrameInterval sets the control-loop period in milliseconds.
func WithFrameInterval(ms float64) Option {
	return func(g *Generator) {
		if ms > 0 && !math.IsInf(ms, 0) {
			g.frameMs = ms
		}
	}
}

// WithSamplerOptions sets the options passed to each session's Sampler.
func WithSamplerOptions(opts ...motion.SamplerOption) Option {
	return func(g *Generator) {
		g.samplerOpts = append(g.samplerOpts, opts...)
	}
}

// Generator builds labeled traces. It is not safe for concurrent use.
type Generator struct {
	seed        int64
	frames      int
	frameMs     float64
	samplerOpts []motion.SamplerOption

	rng    *rand.Rand
	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
}

// New creates a Generator with configuration options.
func New(opts ...Option) *Generator {
	g := &Generator{
		seed:    1,
		frames:  DefaultFrames,
		frameMs: DefaultFrameMs,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.rng = rand.New(rand.NewSource(g.seed)) //nolint:gosec // synthetic data
	g.noiseX = perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, g.seed)
	g.noiseY = perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, g.seed+perlinYSeedOffset)
	return g
}

// Human generates one human-like trace.
func (g *Generator) Human() (Trace, error) {
	return g.record(classifier.LabelHuman, g.humanPath())
}

// Bot generates one bot-like trace.
func (g *Generator) Bot() (Trace, error) {
	return g.record(classifier.LabelBot, g.botPath())
}

// Batch generates n traces alternating human and bot, starting with human.
func (g *Generator) Batch(n int) ([]Trace, error) {
	out := make([]Trace, 0, n)
	for i := range n {
		var (
			t   Trace
			err error
		)
		if i%2 == 0 {
			t, err = g.Human()
		} else {
			t, err = g.Bot()
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Examples generates n labeled feature rows, alternating classes.
func (g *Generator) Examples(n int, ex *features.Extractor) ([]classifier.LabeledExample, error) {
	traces, err := g.Batch(n)
	if err != nil {
		return nil, err
	}
	out := make([]classifier.LabeledExample, 0, len(traces))
	for _, t := range traces {
		fv, err := ex.Extract(t.Samples)
		if err != nil {
			return nil, fmt.Errorf("trace %s: %w", t.SessionID, err)
		}
		out = append(out, classifier.LabeledExample{Features: fv, Label: t.Label})
	}
	return out, nil
}

func (g *Generator) record(label classifier.Label, path []motion.Point) (Trace, error) {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return Trace{}, err
	}
	opts := append([]motion.SamplerOption{motion.WithRand(rand.New(rand.NewSource(g.rng.Int63())))}, g.samplerOpts...) //nolint:gosec // synthetic data
	s := motion.NewSession(
		motion.WithSessionID(id.String()),
		motion.WithSource(motion.SourcePlayer),
		motion.WithSamplerOptions(opts...),
	)
	for i, p := range path {
		s.Track(p, float64(i)*g.frameMs)
	}
	samples, err := s.Finish()
	if err != nil {
		return Trace{}, err
	}
	return Trace{SessionID: s.ID(), Label: label, Source: s.Source(), Samples: samples}, nil
}

// humanPath wanders toward random waypoints. Heading drifts with Perlin noise, speed
// varies per leg, and the player occasionally stops.
func (g *Generator) humanPath() []motion.Point {
	path := make([]motion.Point, 0, g.frames)
	pos := g.randomPoint()
	target := g.randomPoint()
	speed := g.humanSpeed()
	offset := g.rng.Float64() * 1000
	pause := 0

	for i := range g.frames {
		path = append(path, pos)
		if pause > 0 {
			pause--
			continue
		}
		if g.rng.Float64() < pauseChance {
			pause = pauseFramesMin + g.rng.Intn(pauseFramesRange)
			continue
		}

		d := target.Sub(pos)
		if math.Hypot(d.X, d.Y) < arriveRadius {
			target = g.randomPoint()
			speed = g.humanSpeed()
			d = target.Sub(pos)
		}

		t := offset + float64(i)*g.frameMs*perlinFrequency
		heading := math.Atan2(d.Y, d.X) + headingDrift*g.noiseX.Noise1D(t)
		step := speed * g.frameMs * math.Max(0, 1+speedWobble*g.noiseY.Noise1D(t))
		pos = clamp(pos.Add(motion.Point{X: step * math.Cos(heading), Y: step * math.Sin(heading)}))
	}
	return path
}

// botPath travels straight legs between waypoints at a fixed speed, never pausing.
// The speed keeps a trace to one or two legs, so per-axis velocity barely varies.
func (g *Generator) botPath() []motion.Point {
	path := make([]motion.Point, 0, g.frames)
	pos := g.randomPoint()
	target := g.randomPoint()
	step := botSpeed * g.frameMs

	for range g.frames {
		path = append(path, pos)
		d := target.Sub(pos)
		dist := math.Hypot(d.X, d.Y)
		if dist <= step {
			pos = target
			target = g.randomPoint()
			continue
		}
		pos = pos.Add(motion.Point{X: d.X / dist * step, Y: d.Y / dist * step})
	}
	return path
}

func (g *Generator) humanSpeed() float64 {
	return humanSpeedMin + g.rng.Float64()*humanSpeedRange
}

func (g *Generator) randomPoint() motion.Point {
	return motion.Point{
		X: fieldMargin + g.rng.Float64()*(fieldWidth-2*fieldMargin),
		Y: fieldMargin + g.rng.Float64()*(fieldHeight-2*fieldMargin),
	}
}

func clamp(p motion.Point) motion.Point {
	p.X = math.Max(0, math.Min(fieldWidth, p.X))
	p.Y = math.Max(0, math.Min(fieldHeight, p.Y))
	return p
}
