// Package features reduces a movement trace into a fixed set of kinematic descriptors.
package features

import (
	"fmt"
	"math"
)

// Feature names. The set is closed; Vector carries exactly these six values.
const (
	NameVelocityStd      = "velocity_std"
	NameVelocityMean     = "velocity_mean"
	NameAccelerationStd  = "acceleration_std"
	NamePathEfficiency   = "path_efficiency"
	NamePauseRatio       = "pause_ratio"
	NameDirectionChanges = "direction_changes"
)

// Count is the number of features in a Vector.
const Count = 6

var names = [Count]string{
	NameVelocityStd,
	NameVelocityMean,
	NameAccelerationStd,
	NamePathEfficiency,
	NamePauseRatio,
	NameDirectionChanges,
}

// Vector is the kinematic summary of one session.
type Vector struct {
	VelocityStd      float64 `json:"velocity_std"`
	VelocityMean     float64 `json:"velocity_mean"`
	AccelerationStd  float64 `json:"acceleration_std"`
	PathEfficiency   float64 `json:"path_efficiency"`
	PauseRatio       float64 `json:"pause_ratio"`
	DirectionChanges float64 `json:"direction_changes"`
}

// Names returns the feature names in canonical column order.
func Names() []string {
	out := make([]string, Count)
	copy(out, names[:])
	return out
}

// Values returns the features in canonical column order.
func (v Vector) Values() []float64 {
	return []float64{
		v.VelocityStd,
		v.VelocityMean,
		v.AccelerationStd,
		v.PathEfficiency,
		v.PauseRatio,
		v.DirectionChanges,
	}
}

// Map returns the features keyed by name.
func (v Vector) Map() map[string]float64 {
	vals := v.Values()
	out := make(map[string]float64, Count)
	for i, name := range names {
		out[name] = vals[i]
	}
	return out
}

// Finite reports whether every feature is a finite number.
func (v Vector) Finite() bool {
	for _, x := range v.Values() {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// FromValues builds a Vector from values in canonical column order.
func FromValues(vals []float64) (Vector, error) {
	if len(vals) != Count {
		return Vector{}, fmt.Errorf("expected %d feature values, got %d", Count, len(vals))
	}
	return Vector{
		VelocityStd:      vals[0],
		VelocityMean:     vals[1],
		AccelerationStd:  vals[2],
		PathEfficiency:   vals[3],
		PauseRatio:       vals[4],
		DirectionChanges: vals[5],
	}, nil
}

// FromMap builds a Vector from a name-keyed map. Every feature must be present and
// no other key is accepted.
func FromMap(m map[string]float64) (Vector, error) {
	vals := make([]float64, Count)
	for i, name := range names {
		x, ok := m[name]
		if !ok {
			return Vector{}, fmt.Errorf("missing %s: %w", name, ErrUnknownFeature)
		}
		vals[i] = x
	}
	if len(m) != Count {
		for k := range m {
			if !isName(k) {
				return Vector{}, fmt.Errorf("%s: %w", k, ErrUnknownFeature)
			}
		}
	}
	return FromValues(vals)
}

func isName(s string) bool {
	for _, name := range names {
		if name == s {
			return true
		}
	}
	return false
}
