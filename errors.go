package streamlock

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("streamlock: not found")
	ErrAlreadyExists = errors.New("streamlock: already exists")
	ErrInvalidInput  = errors.New("streamlock: invalid input")
	ErrNoCaller      = errors.New("streamlock: no caller identity in context")

	// Validation errors (creation bounds and parameters)
	ErrAmountTooSmall      = errors.New("streamlock: amount below configured minimum")
	ErrDurationOutOfRange  = errors.New("streamlock: duration outside configured bounds")
	ErrInvalidRecipient    = errors.New("streamlock: recipient is empty or self-referential")
	ErrInvalidAsset        = errors.New("streamlock: invalid asset")
	ErrInvalidVestingTerms = errors.New("streamlock: invalid vesting parameters")
	ErrInvalidUsageTerms   = errors.New("streamlock: invalid usage pool parameters")
	ErrEmptyBatch          = errors.New("streamlock: empty batch")

	// Authorization errors
	ErrUnauthorized = errors.New("streamlock: caller not authorized")
	ErrNotAdmin     = errors.New("streamlock: caller is not the administrator")
	ErrNotRecipient = errors.New("streamlock: caller is not the lock recipient")
	ErrNotPayer     = errors.New("streamlock: caller is not the lock payer")

	// State errors
	ErrLockNotFound      = errors.New("streamlock: lock not found")
	ErrLockSettled       = errors.New("streamlock: lock already settled")
	ErrLockInactive      = errors.New("streamlock: lock is not active")
	ErrInsufficientQuota = errors.New("streamlock: insufficient usage quota")
	ErrNotUsagePool      = errors.New("streamlock: lock is not a usage pool")

	// Pause errors
	ErrPaused = errors.New("streamlock: engine is paused")

	// Treasury errors
	ErrTransferFailed    = errors.New("streamlock: asset transfer failed")
	ErrInsufficientFunds = errors.New("streamlock: insufficient funds for deposit")

	// Store errors
	ErrStoreNotReady     = errors.New("streamlock: store not ready")
	ErrStoreClosed       = errors.New("streamlock: store is closed")
	ErrTransactionFailed = errors.New("streamlock: transaction failed")
	ErrMigrationFailed   = errors.New("streamlock: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("streamlock: validation failed for %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrInvalidInput so that callers can
// classify without knowing the offending field.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// IsValidation returns true if the error is a creation-parameter rejection.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAmountTooSmall) ||
		errors.Is(err, ErrDurationOutOfRange) ||
		errors.Is(err, ErrInvalidRecipient) ||
		errors.Is(err, ErrInvalidAsset) ||
		errors.Is(err, ErrInvalidVestingTerms) ||
		errors.Is(err, ErrInvalidUsageTerms) ||
		errors.Is(err, ErrEmptyBatch)
}

// IsAuthorization returns true if the error is a caller-permission rejection.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotAdmin) ||
		errors.Is(err, ErrNotRecipient) ||
		errors.Is(err, ErrNotPayer) ||
		errors.Is(err, ErrNoCaller)
}

// IsState returns true if the error is a lock-lifecycle rejection.
func IsState(err error) bool {
	return errors.Is(err, ErrLockNotFound) ||
		errors.Is(err, ErrLockSettled) ||
		errors.Is(err, ErrLockInactive) ||
		errors.Is(err, ErrInsufficientQuota) ||
		errors.Is(err, ErrNotUsagePool)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrLockNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
