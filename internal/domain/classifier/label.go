// Package classifier scores feature vectors as human or bot.
//
// A Model pairs a standardization stage with a supervised probabilistic estimator.
// Both are pluggable through the Scaler and Estimator interfaces; the defaults are a
// StandardScaler and a RandomForest.
package classifier

import (
	"fmt"
	"strings"
)

// Label is the class of a movement trace.
type Label string

const (
	// LabelBot marks automated control. Class index 0.
	LabelBot Label = "bot"
	// LabelHuman marks human control. Class index 1.
	LabelHuman Label = "human"
)

// NumClasses is the number of probability columns an Estimator produces.
const NumClasses = 2

var classes = [NumClasses]Label{LabelBot, LabelHuman}

// Index returns the class column of the label, or -1 if the label is unknown.
func (l Label) Index() int {
	for i, c := range classes {
		if c == l {
			return i
		}
	}
	return -1
}

// Valid reports whether the label is a known class.
func (l Label) Valid() bool { return l.Index() >= 0 }

// LabelAt returns the label of class column i.
func LabelAt(i int) (Label, error) {
	if i < 0 || i >= NumClasses {
		return "", fmt.Errorf("class index %d: %w", i, ErrUnknownLabel)
	}
	return classes[i], nil
}

// ParseLabel maps a wire value to a Label.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownLabel)
	}
	return l, nil
}
