package features

import "errors"

// Sentinel kinds for feature extraction errors.
var (
	ErrInsufficientData = errors.New("insufficient samples for feature extraction")
	ErrUnknownFeature   = errors.New("unknown feature")
)
