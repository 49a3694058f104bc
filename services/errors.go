// Package services holds the domain operations behind the HTTP handlers:
// the attendance ledger, the challenge workflow, the friend protocol and
// the plainer CRUD around events, users, chat and notifications.
package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrInvalidResponse = fmt.Errorf("%w: unknown response type", ErrValidation)
	ErrForbidden       = errors.New("forbidden")

	ErrInvalidTransition = errors.New("invalid treasure point transition")
	ErrPointNotFound     = errors.New("treasure point not found")

	ErrSelfRequest      = fmt.Errorf("%w: cannot befriend yourself", ErrValidation)
	ErrAlreadyFriends   = errors.New("already friends")
	ErrRequestExists    = errors.New("friend request already pending")
	ErrNoPendingRequest = errors.New("no pending friend request")
)

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}
