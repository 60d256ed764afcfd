package escrow

import "errors"

// Business-rule failures returned as typed outcomes. Callers map them to
// user-facing responses; they are never retried automatically.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidState       = errors.New("operation not valid in current state")
	ErrDeadlinePassed     = errors.New("response deadline has passed")
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrExternalDependency marks a recoverable failure of an external
	// collaborator (eligibility check, payment gateway). The caller may retry.
	ErrExternalDependency = errors.New("external dependency failure")

	// ErrInvariantViolation marks a ledger or balance inconsistency. This is a
	// defect, not a user error: the offending transaction is aborted and the
	// error must never be swallowed.
	ErrInvariantViolation = errors.New("invariant violation")
)
