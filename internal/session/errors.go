package session

import "errors"

var (
	ErrOutOfSequence   = errors.New("session: response out of sequence")
	ErrSessionConflict = errors.New("session: learner already has an active session")
	ErrSessionNotFound = errors.New("session: not found")
	ErrInvalidScore    = errors.New("session: score out of range")
	ErrInvalidLearner  = errors.New("session: learner id is required")
	ErrLearnerNotFound = errors.New("session: learner not found")
)
