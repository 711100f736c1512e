package registry

import "errors"

// Error is a registry failure with a stable numeric code surfaced at the API
// boundary. Codes start at 6000 and are never renumbered.
type Error struct {
	Code uint32
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

var (
	ErrUriTooLong          = &Error{6000, "metadata URI exceeds maximum length of 200 characters"}
	ErrInvalidHourlyRate   = &Error{6001, "hourly rate must be greater than 0"}
	ErrInvalidAvailability = &Error{6002, "availability must be 0 (available), 1 (busy) or 2 (offline)"}
	ErrInvalidRating       = &Error{6003, "rating must be between 1 and 500"}
)

// Authorization and resource failures; these carry no stable code.
var (
	ErrUnauthorized      = errors.New("registry: caller is not authorized")
	ErrAlreadyRegistered = errors.New("registry: agent already registered for owner")
	ErrNotFound          = errors.New("registry: agent not found")
)
