package portfolio

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientHoldings is returned when a SELL exceeds the shares held at its date.
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	// ErrInconsistentSnapshot is returned when a sub-read observed a ledger older than the pinned version.
	ErrInconsistentSnapshot = errors.New("inconsistent snapshot")
	// ErrVersionConflict is returned by a Store when the portfolio moved past the expected version.
	ErrVersionConflict = errors.New("version conflict")
	ErrNotFound        = errors.New("not found")
	// ErrFXUnavailable is returned when an amount cannot be converted to the base currency.
	ErrFXUnavailable = errors.New("fx rate unavailable")
	// ErrNotReconciled is returned when total return does not match its components.
	ErrNotReconciled = errors.New("pnl does not reconcile")
	// ErrInsufficientCash is returned when a reinvestment costs more than the account holds.
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrPriceUnavailable is returned when no price is known on or before a date.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// ValidationError reports an invalid ledger record. Nothing was appended.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientHoldingsError details a SELL that would make a position negative.
type InsufficientHoldingsError struct {
	Asset     string
	Date      Date
	Requested Quantity
	Available Quantity
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings of %s on %s: selling %s, holding %s", e.Asset, e.Date, e.Requested, e.Available)
}

func (e *InsufficientHoldingsError) Is(target error) bool { return target == ErrInsufficientHoldings }

// InsufficientCashError details a reinvestment the account cannot pay for.
type InsufficientCashError struct {
	Account   string
	Date      Date
	Requested Money
	Available Money
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash in account %s on %s: paying %s, holding %s", e.Account, e.Date, e.Requested, e.Available)
}

func (e *InsufficientCashError) Is(target error) bool { return target == ErrInsufficientCash }

// RetryableError wraps a failure the caller can retry as is.
type RetryableError struct {
	Attempts int
	Err      error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err can be retried as is.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r) || errors.Is(err, ErrInconsistentSnapshot) || errors.Is(err, ErrVersionConflict)
}
