package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrMissingCredential = errors.New("missing credential")
	ErrNoData            = errors.New("no data")
	ErrLockHeld          = errors.New("lock already held")
)
