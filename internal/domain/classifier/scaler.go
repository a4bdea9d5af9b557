package classifier

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes feature columns. Fit learns per-column parameters and Transform
// applies them without refitting.
type Scaler interface {
	Fit(x mat.Matrix) error
	Transform(x mat.Matrix) (*mat.Dense, error)
}

// StandardScaler removes the column mean and divides by the population standard
// deviation. Columns with zero spread are only centered.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// NewStandardScaler returns an unfitted StandardScaler.
func NewStandardScaler() *StandardScaler { return &StandardScaler{} }

// Fit computes per-column mean and scale.
func (s *StandardScaler) Fit(x mat.Matrix) error {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("fit scaler on %dx%d: %w", rows, cols, ErrShapeMismatch)
	}

	mean := make([]float64, cols)
	scale := make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		m, sd := stat.PopMeanStdDev(col, nil)
		if sd == 0 {
			sd = 1
		}
		mean[j], scale[j] = m, sd
	}

	s.Mean, s.Scale = mean, scale
	return nil
}

// Transform returns a standardized copy of x.
func (s *StandardScaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	if len(s.Mean) == 0 {
		return nil, fmt.Errorf("scaler: %w", ErrNotFitted)
	}
	rows, cols := x.Dims()
	if rows == 0 || cols != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d columns, got %dx%d: %w", len(s.Mean), rows, cols, ErrShapeMismatch)
	}

	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, x)
	return out, nil
}
