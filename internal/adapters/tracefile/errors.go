package tracefile

import "errors"

var (
	// ErrMalformedTrace is returned for a bad header, row or number.
	ErrMalformedTrace = errors.New("malformed trace")
	// ErrUnorderedTrace is returned when timestamps do not strictly increase.
	ErrUnorderedTrace = errors.New("unordered trace")
)
