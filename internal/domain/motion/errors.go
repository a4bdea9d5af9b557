package motion

import "errors"

// Sentinel kinds for motion errors.
var (
	ErrSessionClosed = errors.New("session closed")
	ErrNonMonotonic  = errors.New("timestamp not strictly increasing")
	ErrUnknownSource = errors.New("unknown trace source")
)
