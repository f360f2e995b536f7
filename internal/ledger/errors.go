package ledger

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidCode         = errors.New("invalid referral code")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrTransient           = errors.New("transient store error")
)

// IsTransient reports whether err is a store failure that is safe to retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
