package shared

import "errors"

var (
	// ErrInvalidTicket indicates the CAS server refused a service ticket.
	ErrInvalidTicket = errors.New("invalid service ticket")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
