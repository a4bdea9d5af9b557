package classifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/pkg/logger"
)

// LabeledExample is one training row.
type LabeledExample struct {
	Features features.Vector `json:"features"`
	Label    Label           `json:"label"`
}

// Prediction is the outcome of scoring one feature vector.
type Prediction struct {
	Verdict          Label           `json:"prediction"`
	Confidence       float64         `json:"confidence"`
	HumanProbability float64         `json:"human_probability"`
	BotProbability   float64         `json:"bot_probability"`
	Features         features.Vector `json:"features"`
}

// Info describes the currently published model state.
type Info struct {
	Trained     bool          `json:"trained"`
	Examples    int           `json:"examples"`
	TrainedAt   time.Time     `json:"trained_at,omitempty"`
	ClassCounts map[Label]int `json:"class_counts,omitempty"`
}

// fitted is an immutable trained state. A Model swaps whole values, never fields.
type fitted struct {
	scaler      Scaler
	estimator   Estimator
	trainedAt   time.Time
	examples    int
	classCounts map[Label]int
}

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithScaler sets the factory used for a fresh Scaler on every Train and Load.
func WithScaler(factory func() Scaler) Option {
	return func(m *Model) {
		if factory != nil {
			m.newScaler = factory
		}
	}
}

// WithEstimator sets the factory used for a fresh Estimator on every Train and Load.
func WithEstimator(factory func() Estimator) Option {
	return func(m *Model) {
		if factory != nil {
			m.newEstimator = factory
		}
	}
}

// WithLogger sets the logger for the model.
func WithLogger(l logger.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// Model is a trainable human/bot classifier.
//
// Predict is safe for concurrent use and never blocks on Train: a successful Train or
// Load publishes a complete new state atomically, so every Predict observes either the
// previous state or the new one.
type Model struct {
	newScaler    func() Scaler
	newEstimator func() Estimator
	logger       logger.Logger

	mu    sync.Mutex // serializes Train and Load
	state atomic.Pointer[fitted]
}

// NewModel creates an untrained model with configuration options.
func NewModel(opts ...Option) *Model {
	m := &Model{
		newScaler:    func() Scaler { return NewStandardScaler() },
		newEstimator: func() Estimator { return NewRandomForest() },
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("classifier")
	}
	return m
}

// Train fits a fresh scaler and estimator on examples and publishes them.
// On error the previously published state is left untouched.
func (m *Model) Train(ctx context.Context, examples []LabeledExample) error {
	st, err := m.Stage(ctx, examples)
	if err != nil {
		return err
	}
	st.Publish(ctx)
	return nil
}

// Staged is a fitted state that Predict does not see until Publish.
type Staged struct {
	m     *Model
	state *fitted
	took  time.Duration
}

// Stage fits a fresh scaler and estimator on examples without publishing them.
func (m *Model) Stage(ctx context.Context, examples []LabeledExample) (*Staged, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x, y, counts, err := matrix(examples)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	sc := m.newScaler()
	if err := sc.Fit(x); err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	scaled, err := sc.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("scale training set: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	est := m.newEstimator()
	if err := est.Fit(scaled, y); err != nil {
		return nil, fmt.Errorf("fit estimator: %w", err)
	}

	return &Staged{
		m: m,
		state: &fitted{
			scaler:      sc,
			estimator:   est,
			trainedAt:   time.Now().UTC(),
			examples:    len(examples),
			classCounts: counts,
		},
		took: time.Since(start),
	}, nil
}

// Publish swaps the staged state in atomically.
func (st *Staged) Publish(ctx context.Context) {
	st.m.mu.Lock()
	st.m.state.Store(st.state)
	st.m.mu.Unlock()

	st.m.logger.Info(ctx, "model trained",
		logger.Int("examples", st.state.examples),
		logger.Int("human", st.state.classCounts[LabelHuman]),
		logger.Int("bot", st.state.classCounts[LabelBot]),
		logger.Duration("took", st.took),
	)
}

// Predict scores v with the published state.
func (m *Model) Predict(ctx context.Context, v features.Vector) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	st := m.state.Load()
	if st == nil {
		return Prediction{}, ErrModelNotTrained
	}
	if !v.Finite() {
		return Prediction{}, fmt.Errorf("predict: %w", ErrInvalidFeatures)
	}

	proba, err := st.score(mat.NewDense(1, features.Count, v.Values()))
	if err != nil {
		return Prediction{}, err
	}

	p := Prediction{
		BotProbability:   proba.At(0, LabelBot.Index()),
		HumanProbability: proba.At(0, LabelHuman.Index()),
		Features:         v,
	}
	if p.HumanProbability > p.BotProbability {
		p.Verdict, p.Confidence = LabelHuman, p.HumanProbability
	} else {
		p.Verdict, p.Confidence = LabelBot, p.BotProbability
	}
	return p, nil
}

// Trained reports whether a fitted state is published.
func (m *Model) Trained() bool { return m.state.Load() != nil }

// Info returns a description of the published state.
func (m *Model) Info() Info {
	st := m.state.Load()
	if st == nil {
		return Info{}
	}
	counts := make(map[Label]int, len(st.classCounts))
	for k, v := range st.classCounts {
		counts[k] = v
	}
	return Info{
		Trained:     true,
		Examples:    st.examples,
		TrainedAt:   st.trainedAt,
		ClassCounts: counts,
	}
}

// score standardizes x and returns the class probabilities.
func (st *fitted) score(x mat.Matrix) (*mat.Dense, error) {
	scaled, err := st.scaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	proba, err := st.estimator.PredictProba(scaled)
	if err != nil {
		return nil, fmt.Errorf("estimate: %w", err)
	}
	rows, cols := x.Dims()
	if r, c := proba.Dims(); r != rows || c != NumClasses {
		return nil, fmt.Errorf("estimator returned %dx%d for %dx%d input: %w", r, c, rows, cols, ErrShapeMismatch)
	}
	return proba, nil
}

// matrix validates examples and lays them out as a design matrix and class indices.
func matrix(examples []LabeledExample) (*mat.Dense, []int, map[Label]int, error) {
	if len(examples) == 0 {
		return nil, nil, nil, fmt.Errorf("no examples: %w", ErrDegenerateTraining)
	}

	x := mat.NewDense(len(examples), features.Count, nil)
	y := make([]int, len(examples))
	counts := make(map[Label]int, NumClasses)
	for i, ex := range examples {
		c := ex.Label.Index()
		if c < 0 {
			return nil, nil, nil, fmt.Errorf("example %d label %q: %w", i, ex.Label, ErrDegenerateTraining)
		}
		if !ex.Features.Finite() {
			return nil, nil, nil, fmt.Errorf("example %d: %w", i, ErrInvalidFeatures)
		}
		x.SetRow(i, ex.Features.Values())
		y[i] = c
		counts[ex.Label]++
	}

	for _, l := range classes {
		if counts[l] == 0 {
			return nil, nil, nil, fmt.Errorf("no %s examples: %w", l, ErrDegenerateTraining)
		}
	}
	return x, y, counts, nil
}
