package core

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrSessionNotFound  = errors.New("session not found")
	ErrVersionConflict  = errors.New("session version conflict")
	ErrAgentUnavailable = errors.New("agent unavailable")
	ErrPersistence      = errors.New("persistence failure")
	ErrTurnTimeout      = errors.New("turn timeout")
	ErrDegradedInput    = errors.New("degraded input")
	ErrNotConfigured    = errors.New("not configured")
)
