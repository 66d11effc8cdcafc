package service

import (
	"errors"

	"gorm.io/gorm"
)

// Error taxonomy surfaced to callers. Anything not wrapped in one of these is
// a transient store failure: retryable by the caller, never retried here,
// since replaying a non-idempotent send could duplicate a message.
var (
	// ErrUnauthorized: the actor is not an active participant or not the
	// owner of the resource. Distinct from ErrNotFound so the API boundary
	// can choose what to reveal.
	ErrUnauthorized = errors.New("not allowed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrInvalid      = errors.New("invalid request")
)

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
