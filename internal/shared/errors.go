package shared

import "errors"

// Error categories. Domain packages wrap one of these so the HTTP layer can
// map any failure to a response without knowing the domain.
var (
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized indicates there is no signed-in user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the resource belongs to another company.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates an invalid state transition for the resource.
	ErrConflict = errors.New("state conflict")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
