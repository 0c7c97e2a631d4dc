package service

import (
	"errors"
	"fmt"

	"laikostar/internal/store"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrDuplicateIdentity      = errors.New("email or username already taken")
	ErrInvalidReferralCode    = errors.New("invalid referral code")
	ErrNotFound               = errors.New("not found")
	ErrLimitExceeded          = errors.New("daily task limit reached")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrWithdrawalsDisabled    = errors.New("withdrawals are disabled")
	ErrWithdrawalWindowClosed = errors.New("withdrawals are closed at this time")
	ErrInvalidCredential      = errors.New("invalid login or password")
	ErrDependencyFailure      = errors.New("dependency failure")
	ErrAlreadySettled         = errors.New("request was already settled")
	ErrBusy                   = errors.New("too many concurrent updates, try again")
)

// translate maps storage sentinels onto the service taxonomy. Unknown errors
// are returned unchanged so callers treat them as internal failures.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, store.ErrRequestNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrNotificationNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrDuplicateIdentity, err)
	case errors.Is(err, store.ErrPendingNotFound):
		return fmt.Errorf("%w: %w", ErrInvalidReferralCode, err)
	case errors.Is(err, store.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	case errors.Is(err, store.ErrAlreadySettled):
		return fmt.Errorf("%w: %w", ErrAlreadySettled, err)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return err
}
