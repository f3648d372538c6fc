package service

import "errors"

// Failure taxonomy of the governance service. Callers compare with errors.Is;
// returned errors usually wrap one of these with the offending ids.
var (
	ErrInvalidAmount     = errors.New("amount must be positive with at most two decimal places")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidState      = errors.New("transaction does not allow this operation in its current state")
	ErrNotAMember        = errors.New("user is not an eligible member of the group")
	ErrDuplicateVote     = errors.New("user has already voted on this transaction")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("operation not permitted")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrMembershipUnavailable means the membership snapshot could not be
	// read. The transaction stays pending and is evaluated again later.
	ErrMembershipUnavailable = errors.New("membership unavailable")
)
