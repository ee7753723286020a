// Package plugin provides an extensible plugin system for the reimbursement
// ledger. Plugins opt into lifecycle events by implementing hook interfaces;
// hooks run after the triggering operation has committed.
package plugin

import (
	"context"

	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/payout"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the ledger starts. l is the *reimburse.Ledger.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the ledger stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionRenewed receives the subscription with its extended end date.
type OnSubscriptionRenewed interface {
	Plugin
	OnSubscriptionRenewed(ctx context.Context, sub *subscription.Subscription, payment types.Amount) error
}

type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

type OnClaimSubmitted interface {
	Plugin
	OnClaimSubmitted(ctx context.Context, c *claim.Claim) error
}

type OnClaimApproved interface {
	Plugin
	OnClaimApproved(ctx context.Context, c *claim.Claim, v *verification.Verification) error
}

type OnClaimRejected interface {
	Plugin
	OnClaimRejected(ctx context.Context, c *claim.Claim) error
}

// OnClaimPaid receives the paid claim and the payout movement.
type OnClaimPaid interface {
	Plugin
	OnClaimPaid(ctx context.Context, c *claim.Claim, m *fund.Movement) error
}

// OnPayoutFailed is called when the transfer for an approved claim failed.
// The claim is still Approved.
type OnPayoutFailed interface {
	Plugin
	OnPayoutFailed(ctx context.Context, c *claim.Claim, amount types.Amount, err error) error
}

// ──────────────────────────────────────────────────
// Fund hooks
// ──────────────────────────────────────────────────

type OnFundsDeposited interface {
	Plugin
	OnFundsDeposited(ctx context.Context, m *fund.Movement) error
}

type OnFundsWithdrawn interface {
	Plugin
	OnFundsWithdrawn(ctx context.Context, m *fund.Movement) error
}

type OnProcessingFeeUpdated interface {
	Plugin
	OnProcessingFeeUpdated(ctx context.Context, oldFee, newFee types.Amount) error
}

type OnOwnershipTransferred interface {
	Plugin
	OnOwnershipTransferred(ctx context.Context, previous, next types.Account) error
}

// ──────────────────────────────────────────────────
// Payout providers
// ──────────────────────────────────────────────────

// PayoutProvider supplies the Transferer used for payouts and withdrawals
// when none is configured on the ledger directly.
type PayoutProvider interface {
	Plugin
	Transferer() payout.Transferer
}
