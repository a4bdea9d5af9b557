package watcher

import "errors"

var (
	// ErrNotDirectory is returned when the spool path is not a directory.
	ErrNotDirectory = errors.New("spool path is not a directory")
	// ErrStarted is returned when Start is called twice.
	ErrStarted = errors.New("watcher already started")
	// ErrRejected marks a submission that will never be accepted. Submitters wrap
	// it so the file moves to failed/ instead of being retried.
	ErrRejected = errors.New("submission rejected")
)
