package escrow

import "errors"

// Error is an escrow failure with a stable numeric code surfaced at the API
// boundary. Codes start at 6000 and are never renumbered.
type Error struct {
	Code uint32
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

var (
	ErrUriTooLong       = &Error{6000, "metadata URI exceeds maximum length"}
	ErrInvalidBudget    = &Error{6001, "budget must be greater than 0"}
	ErrDeadlinePassed   = &Error{6002, "deadline must be in the future"}
	ErrNotOpen          = &Error{6003, "bounty is not open"}
	ErrNotClaimed       = &Error{6004, "bounty is not in claimed state"}
	ErrNotDelivered     = &Error{6005, "bounty is not in delivered state"}
	ErrNotAssignedAgent = &Error{6006, "only the assigned agent can perform this action"}
	ErrUnauthorized     = &Error{6007, "unauthorized"}
	ErrCannotDispute    = &Error{6008, "cannot dispute bounty in current state"}
	ErrInvalidRating    = &Error{6009, "rating must be between 1 and 500"}
	ErrNotCompleted     = &Error{6010, "bounty is not in completed state"}
)

var (
	ErrBountyNotFound = errors.New("escrow: bounty not found")
	ErrReviewExists   = errors.New("escrow: review already exists for bounty")
)
