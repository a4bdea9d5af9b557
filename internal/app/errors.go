package service

import (
	"errors"

	"github.com/okian/humancheck/internal/adapters/watcher"
)

var (
	// ErrNotStarted is returned by operations that need a running service.
	ErrNotStarted = errors.New("service not started")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("service stopped")
	// ErrInvalidSubmission is returned for a submission without an id or with an
	// unordered trace. It matches watcher.ErrRejected, so the spool parks such files.
	ErrInvalidSubmission error = rejectedError("invalid submission")
	// ErrInvalidExample is returned for a training example without usable data.
	ErrInvalidExample = errors.New("invalid training example")
	// ErrBackpressure is returned when the analysis queue cannot accept a session.
	ErrBackpressure = errors.New("backpressure")
)

type rejectedError string

func (e rejectedError) Error() string { return string(e) }

func (e rejectedError) Is(target error) bool { return target == watcher.ErrRejected }
