package domain

import "errors"

var (
	// ErrUnauthenticated is returned when no identity is present where one is required.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the caller's role does not meet the contest's access level.
	ErrForbidden = errors.New("access to this contest is not allowed")
	// ErrContestNotFound indicates the contest content could not be loaded.
	ErrContestNotFound = errors.New("contest not found")
	// ErrParticipationNotFound is returned when a user acts on a contest before joining it.
	ErrParticipationNotFound = errors.New("participation not found")
	// ErrAlreadyCompleted is returned on join/submit against an already submitted attempt.
	ErrAlreadyCompleted = errors.New("contest attempt already submitted")
	// ErrContestNotOpen is returned when joining outside the contest's time window.
	ErrContestNotOpen = errors.New("contest is not open")
	// ErrCapacityExceeded is returned when a contest has reached maxParticipants.
	ErrCapacityExceeded = errors.New("contest has reached its participant capacity")
	// ErrInvalidAnswers indicates a malformed or empty answers payload.
	ErrInvalidAnswers = errors.New("answers payload is required")
)
