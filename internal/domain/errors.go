package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. Callers match with
// errors.Is; infrastructure and transport layers wrap, never replace.

var (
	// Lookup errors
	ErrTaskNotFound    = errors.New("task not found")
	ErrProjectNotFound = errors.New("project not found")

	// Reservation errors
	ErrAlreadyReserved = errors.New("task is already reserved")
	ErrNotOwner        = errors.New("task is reserved by a different agent")
	ErrInvalidState    = errors.New("operation not valid for current task status")

	// Store errors
	ErrConflict         = errors.New("concurrent update conflict — re-read and retry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDuplicate        = errors.New("resource already exists")

	// Input errors
	ErrValidation = errors.New("validation failed")

	// Relationship errors
	ErrCycleDetected = errors.New("cycle detected in task hierarchy")
)
