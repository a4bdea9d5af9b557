package classifier

import "github.com/okian/humancheck/internal/domain/features"

// SeedExamples returns a small hand-tuned training set: three human-like and three
// bot-like vectors. It is enough to make a model usable for demonstrations and
// tests, not to make accurate calls on real traffic.
func SeedExamples() []LabeledExample {
	return []LabeledExample{
		{Label: LabelHuman, Features: features.Vector{VelocityStd: 0.5, VelocityMean: 0.3, AccelerationStd: 0.2, PathEfficiency: 0.6, PauseRatio: 0.15, DirectionChanges: 10}},
		{Label: LabelHuman, Features: features.Vector{VelocityStd: 0.6, VelocityMean: 0.4, AccelerationStd: 0.25, PathEfficiency: 0.65, PauseRatio: 0.2, DirectionChanges: 12}},
		{Label: LabelHuman, Features: features.Vector{VelocityStd: 0.7, VelocityMean: 0.35, AccelerationStd: 0.3, PathEfficiency: 0.7, PauseRatio: 0.18, DirectionChanges: 15}},
		{Label: LabelBot, Features: features.Vector{VelocityStd: 0.1, VelocityMean: 0.5, AccelerationStd: 0.05, PathEfficiency: 0.95, PauseRatio: 0.02, DirectionChanges: 2}},
		{Label: LabelBot, Features: features.Vector{VelocityStd: 0.15, VelocityMean: 0.48, AccelerationStd: 0.06, PathEfficiency: 0.93, PauseRatio: 0.03, DirectionChanges: 3}},
		{Label: LabelBot, Features: features.Vector{VelocityStd: 0.12, VelocityMean: 0.52, AccelerationStd: 0.055, PathEfficiency: 0.94, PauseRatio: 0.025, DirectionChanges: 2}},
	}
}
