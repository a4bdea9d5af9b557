package metrics

import "errors"

// ErrUnknownMetric is returned by Value for a name the registry does not hold.
var ErrUnknownMetric = errors.New("unknown metric")
