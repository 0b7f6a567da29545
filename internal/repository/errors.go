package repository

import "errors"

var (
	// ErrDuplicateOTP is returned when the (number, otp) pair already
	// exists in history. Callers treat it as a no-op, not a failure.
	ErrDuplicateOTP = errors.New("duplicate otp")

	// ErrWithdrawalNotFound is returned when a withdrawal id does not
	// exist or is no longer pending.
	ErrWithdrawalNotFound = errors.New("withdrawal not found or not pending")

	// ErrInsufficientBalance is returned when an approval re-check finds
	// the balance below the requested amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUserNotFound is returned for lookups of unknown users.
	ErrUserNotFound = errors.New("user not found")
)
