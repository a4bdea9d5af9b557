package repository

import "errors"

var (
	// ErrNotFound is returned when a session has no stored verdict.
	ErrNotFound = errors.New("verdict not found")
	// ErrInvalidLimit is returned when a ranking limit is not positive.
	ErrInvalidLimit = errors.New("invalid limit")
	// ErrInvalidVerdict is returned when a verdict has no session id.
	ErrInvalidVerdict = errors.New("invalid verdict")
	// ErrMigrate is returned when schema migrations fail.
	ErrMigrate = errors.New("migrate database")
)
