package shared

import "errors"

// Error taxonomy shared across modules. Handlers map these to HTTP
// status codes in platform/httpx; services wrap them with context.
var (
	// ErrUnauthenticated indicates a missing, unknown, or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates an insufficient role or permission flag.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates malformed or empty input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a mutation attempt on a terminal request.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStoreUnavailable indicates a transient persistence failure; callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)
