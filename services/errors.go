package services

import "errors"

var (
	// ErrDuplicateEvent: a transaction with the same (userId, type, sourceId)
	// already exists. Benign — the caller gets the previously recorded outcome.
	ErrDuplicateEvent = errors.New("duplicate award event")

	// ErrOutOfOrderEvent: an activity date older than the last recorded one.
	// Points are still awarded; only the streak update is refused.
	ErrOutOfOrderEvent = errors.New("activity date precedes last activity")

	// ErrProgressionUnavailable: the per-user critical section could not be
	// acquired within the configured timeout. The triggering action must
	// still succeed; points are best-effort.
	ErrProgressionUnavailable = errors.New("progression subsystem unavailable")

	// ErrInvalidEvent: malformed event rejected before any mutation.
	ErrInvalidEvent = errors.New("invalid award event")

	// ErrNotFound: requested record does not exist.
	ErrNotFound = errors.New("record not found")
)
