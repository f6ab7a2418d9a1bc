package domain

import "errors"

// Sentinel errors returned by services. Handlers map these to HTTP status
// codes with errors.Is; repositories wrap them with context via fmt.Errorf.
var (
	// ErrNotFound indicates the requested portfolio or asset does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied indicates the requesting user does not own the
	// entity. Returned before any ledger data is read.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidInput indicates a write payload failed validation.
	ErrInvalidInput = errors.New("invalid input")
)
