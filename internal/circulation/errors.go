package circulation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an unknown book or loan identifier.
	ErrNotFound = errors.New("not found")
	// ErrBookNotFound indicates an unknown book identifier.
	ErrBookNotFound = fmt.Errorf("book %w", ErrNotFound)
	// ErrLoanNotFound indicates an unknown loan identifier.
	ErrLoanNotFound = fmt.Errorf("loan %w", ErrNotFound)
	// ErrAlreadyBorrowed indicates the book already has an active loan.
	ErrAlreadyBorrowed = errors.New("book already borrowed")
	// ErrDuplicateReturn indicates the loan was already returned.
	ErrDuplicateReturn = errors.New("loan already returned")
	// ErrRenewalLimitExceeded indicates the loan has used all of its renewals.
	ErrRenewalLimitExceeded = errors.New("renewal limit exceeded")
	// ErrInvalidState indicates the operation is not valid for the loan's status.
	ErrInvalidState = errors.New("invalid loan state")
	// ErrBusy indicates the book lock could not be acquired in time. Safe to retry.
	ErrBusy = errors.New("book is busy, retry later")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation error")
)

// IsRetryable reports whether the caller should retry the operation with backoff
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}

// Code returns a stable machine-readable name for a circulation error
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBookNotFound):
		return "book_not_found"
	case errors.Is(err, ErrLoanNotFound):
		return "loan_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyBorrowed):
		return "already_borrowed"
	case errors.Is(err, ErrDuplicateReturn):
		return "duplicate_return"
	case errors.Is(err, ErrRenewalLimitExceeded):
		return "renewal_limit_exceeded"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	default:
		return "internal"
	}
}
