package audithook

import (
	"log/slog"
	"slices"
)

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithEnabledActions sets which actions to audit.
// If not called, all actions are audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool)
		for _, action := range actions {
			e.enabled[action] = true
		}
	}
}

// WithDisabledActions sets which actions to skip.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = make(map[string]bool)
			for _, action := range allActions() {
				e.enabled[action] = true
			}
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

// WithCategories audits only the actions of the given categories, e.g.
// CategoryPayment and CategoryCustody for a money-movement trail.
func WithCategories(categories ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool)
		for _, action := range allActions() {
			if slices.Contains(categories, actionCategories[action]) {
				e.enabled[action] = true
			}
		}
	}
}

// actionCategories groups every action under the category it is recorded with.
var actionCategories = map[string]string{
	ActionSubscriptionCreated:  CategorySubscription,
	ActionSubscriptionRenewed:  CategorySubscription,
	ActionSubscriptionCanceled: CategorySubscription,
	ActionClaimSubmitted:       CategoryClaims,
	ActionClaimApproved:        CategoryClaims,
	ActionClaimRejected:        CategoryClaims,
	ActionClaimPaid:            CategoryPayment,
	ActionPayoutFailed:         CategoryPayment,
	ActionFundsDeposited:       CategoryCustody,
	ActionFundsWithdrawn:       CategoryCustody,
	ActionProcessingFeeUpdated: CategoryAccess,
	ActionOwnershipTransferred: CategoryAccess,
}

// allActions returns all known audit actions.
func allActions() []string {
	return []string{
		ActionSubscriptionCreated,
		ActionSubscriptionRenewed,
		ActionSubscriptionCanceled,
		ActionClaimSubmitted,
		ActionClaimApproved,
		ActionClaimRejected,
		ActionClaimPaid,
		ActionPayoutFailed,
		ActionFundsDeposited,
		ActionFundsWithdrawn,
		ActionProcessingFeeUpdated,
		ActionOwnershipTransferred,
	}
}
