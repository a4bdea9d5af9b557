package classifier

import "errors"

// Sentinel kinds for classifier errors.
var (
	ErrModelNotTrained    = errors.New("model not trained")
	ErrDegenerateTraining = errors.New("degenerate training set")
	ErrInvalidFeatures    = errors.New("invalid feature values")
	ErrUnknownLabel       = errors.New("unknown label")
	ErrNotFitted          = errors.New("component not fitted")
	ErrShapeMismatch      = errors.New("matrix shape mismatch")
	ErrSnapshotVersion    = errors.New("unsupported snapshot version")
)
