package audithook

// Action constants for audit events.
const (
	// Subscription actions
	ActionSubscriptionCreated  = "subscription.created"
	ActionSubscriptionRenewed  = "subscription.renewed"
	ActionSubscriptionCanceled = "subscription.canceled"

	// Claim actions
	ActionClaimSubmitted = "claim.submitted"
	ActionClaimApproved  = "claim.approved"
	ActionClaimRejected  = "claim.rejected"
	ActionClaimPaid      = "claim.paid"
	ActionPayoutFailed   = "payout.failed"

	// Fund actions
	ActionFundsDeposited = "funds.deposited"
	ActionFundsWithdrawn = "funds.withdrawn"

	// Settings actions
	ActionProcessingFeeUpdated = "settings.processing_fee_updated"
	ActionOwnershipTransferred = "settings.ownership_transferred"
)

// Resource constants for audit events.
const (
	ResourceSubscription = "subscription"
	ResourceClaim        = "claim"
	ResourceFunds        = "funds"
	ResourceSettings     = "settings"
)

// Category constants for audit events.
const (
	CategorySubscription = "subscription"
	CategoryClaims       = "claims"
	CategoryPayment      = "payment"
	CategoryCustody      = "custody"
	CategoryAccess       = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
