package reimburse

import (
	"errors"
	"fmt"

	"github.com/xraph/reimburse/types"
)

// Sentinel errors, one per failure condition. Callers match them with
// errors.Is; the class helpers below group them for transport mapping.
var (
	// General errors
	ErrAlreadyExists  = errors.New("reimburse: already exists")
	ErrInvalidAmount  = errors.New("reimburse: invalid amount")
	ErrAmountOverflow = types.ErrOverflow
	ErrInvalidAccount = types.ErrInvalidAccount

	// Subscription errors
	ErrInsufficientPayment  = errors.New("reimburse: insufficient payment")
	ErrInvalidCoverageTerms = errors.New("reimburse: coverage must exceed deductible")
	ErrSubscriptionNotFound = errors.New("reimburse: subscription not found")
	ErrNotSubscriptionOwner = errors.New("reimburse: not subscription owner")
	ErrAlreadyCancelled     = errors.New("reimburse: subscription already cancelled")
	ErrSubscriptionInactive = errors.New("reimburse: subscription inactive")

	// Claim errors
	ErrInsufficientProcessingFee  = errors.New("reimburse: insufficient processing fee")
	ErrAmountExceedsCoverageLimit = errors.New("reimburse: amount exceeds coverage limit")
	ErrAmountBelowDeductible      = errors.New("reimburse: amount below deductible")
	ErrNotClaimOwner              = errors.New("reimburse: not claim owner")
	ErrClaimNotFound              = errors.New("reimburse: claim not found")

	// Verification errors
	ErrNotAuthorizedVerifier      = errors.New("reimburse: not authorized verifier")
	ErrClaimNotPending            = errors.New("reimburse: claim not pending")
	ErrVerifiedAmountExceedsClaim = errors.New("reimburse: verified amount exceeds claim")
	ErrVerificationNotFound       = errors.New("reimburse: verification not found")

	// Payment errors
	ErrClaimNotApproved        = errors.New("reimburse: claim not approved")
	ErrInsufficientLedgerFunds = errors.New("reimburse: insufficient ledger funds")
	ErrPayoutTransferFailed    = errors.New("reimburse: payout transfer failed")

	// Custody errors
	ErrNotOwner                 = errors.New("reimburse: caller is not the owner")
	ErrInvalidOwner             = errors.New("reimburse: owner cannot be the zero account")
	ErrWithdrawalTransferFailed = errors.New("reimburse: withdrawal transfer failed")

	// Store errors
	ErrStoreNotReady     = errors.New("reimburse: store not ready")
	ErrTransactionFailed = errors.New("reimburse: transaction failed")
	ErrMigrationFailed   = errors.New("reimburse: migration failed")
)

// ValidationError reports a malformed input field. It unwraps to Err so
// class checks still work.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("reimburse: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return e.Err }

func invalidAmount(field string, a types.Amount) error {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%d exceeds the maximum amount", a),
		Err:     ErrInvalidAmount,
	}
}

func invalidAccount(field string) error {
	return ValidationError{Field: field, Message: "zero account", Err: ErrInvalidAccount}
}

// IsValidation returns true for malformed or out-of-range inputs.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInsufficientPayment) ||
		errors.Is(err, ErrInvalidCoverageTerms) ||
		errors.Is(err, ErrInsufficientProcessingFee) ||
		errors.Is(err, ErrAmountExceedsCoverageLimit) ||
		errors.Is(err, ErrAmountBelowDeductible) ||
		errors.Is(err, ErrVerifiedAmountExceedsClaim) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAmountOverflow) ||
		errors.Is(err, ErrInvalidAccount) ||
		errors.Is(err, ErrInvalidOwner)
}

// IsAuthorization returns true when the caller lacks the required role.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotSubscriptionOwner) ||
		errors.Is(err, ErrNotClaimOwner) ||
		errors.Is(err, ErrNotAuthorizedVerifier) ||
		errors.Is(err, ErrNotOwner)
}

// IsState returns true when the entity's current status disallows the operation.
func IsState(err error) bool {
	return errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrSubscriptionInactive) ||
		errors.Is(err, ErrClaimNotPending) ||
		errors.Is(err, ErrClaimNotApproved) ||
		errors.Is(err, ErrInsufficientLedgerFunds)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrClaimNotFound) ||
		errors.Is(err, ErrVerificationNotFound)
}

// IsTransferFailure returns true when moving funds out of the pool failed.
// No ledger state was committed.
func IsTransferFailure(err error) bool {
	return errors.Is(err, ErrPayoutTransferFailed) ||
		errors.Is(err, ErrWithdrawalTransferFailed)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return IsTransferFailure(err) ||
		errors.Is(err, ErrInsufficientLedgerFunds) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
