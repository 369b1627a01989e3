package domain

import "errors"

var (
	ErrParse             = errors.New("malformed feed message")
	ErrTransport         = errors.New("feed transport failure")
	ErrNoDataYet         = errors.New("no data yet")
	ErrInvalidParameters = errors.New("invalid simulation parameters")
	ErrAlreadyRunning    = errors.New("session already running")
	ErrNotRunning        = errors.New("session not running")
	ErrStopTimeout       = errors.New("stop timed out")
	ErrNotFound          = errors.New("not found")
)
