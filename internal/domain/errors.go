package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUpstream     = errors.New("upstream unavailable")
	ErrFetchFailed  = errors.New("quote fetch failed")
	ErrInvalidState = errors.New("invalid room state")
	ErrNotDue       = errors.New("room evaluation time not reached")
	ErrPickLocked   = errors.New("pick already locked")
	ErrInvalidPick  = errors.New("invalid pick")
	ErrLockHeld     = errors.New("lock already held")
)
