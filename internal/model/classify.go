package model

// Class is a qualitative suitability label derived from the composite score.
type Class string

const (
	ClassExcellent Class = "Excellent"
	ClassVeryGood  Class = "Very Good"
	ClassGood      Class = "Good"
	ClassModerate  Class = "Moderate"
	ClassLow       Class = "Low"
)

// Classes lists the labels from best to worst.
var Classes = []Class{ClassExcellent, ClassVeryGood, ClassGood, ClassModerate, ClassLow}

// ClassThresholds are inclusive lower score bounds for each label. A score of
// exactly 60 classifies as Very Good.
type ClassThresholds struct {
	Excellent float64 `yaml:"excellent" mapstructure:"excellent"`
	VeryGood  float64 `yaml:"very_good" mapstructure:"very_good"`
	Good      float64 `yaml:"good" mapstructure:"good"`
	Moderate  float64 `yaml:"moderate" mapstructure:"moderate"`
}

// DefaultClassThresholds returns the documented cut points: ≥75 Excellent,
// ≥60 Very Good, ≥45 Good, ≥30 Moderate, else Low.
func DefaultClassThresholds() ClassThresholds {
	return ClassThresholds{Excellent: 75, VeryGood: 60, Good: 45, Moderate: 30}
}

// Classify maps a composite score to its label.
func (t ClassThresholds) Classify(score float64) Class {
	switch {
	case score >= t.Excellent:
		return ClassExcellent
	case score >= t.VeryGood:
		return ClassVeryGood
	case score >= t.Good:
		return ClassGood
	case score >= t.Moderate:
		return ClassModerate
	default:
		return ClassLow
	}
}

// Valid reports whether the thresholds are strictly descending and inside the
// score range.
func (t ClassThresholds) Valid() bool {
	return t.Excellent <= 100 && t.Excellent > t.VeryGood &&
		t.VeryGood > t.Good && t.Good > t.Moderate && t.Moderate >= 0
}
