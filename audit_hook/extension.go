// Package audithook bridges reimbursement lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on any
// particular audit system. Callers inject a RecorderFunc adapter, or use
// SlogRecorder to write events to a structured logger.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/plugin"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated  = (*Extension)(nil)
	_ plugin.OnSubscriptionRenewed  = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled = (*Extension)(nil)
	_ plugin.OnClaimSubmitted       = (*Extension)(nil)
	_ plugin.OnClaimApproved        = (*Extension)(nil)
	_ plugin.OnClaimRejected        = (*Extension)(nil)
	_ plugin.OnClaimPaid            = (*Extension)(nil)
	_ plugin.OnPayoutFailed         = (*Extension)(nil)
	_ plugin.OnFundsDeposited       = (*Extension)(nil)
	_ plugin.OnFundsWithdrawn       = (*Extension)(nil)
	_ plugin.OnProcessingFeeUpdated = (*Extension)(nil)
	_ plugin.OnOwnershipTransferred = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges reimbursement lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, sub.Subscriber, nil,
		"monthly_fee", sub.MonthlyFee,
		"coverage_limit", sub.CoverageLimit,
		"deductible", sub.Deductible,
		"end_date", sub.EndDate,
	)
}

// OnSubscriptionRenewed implements plugin.OnSubscriptionRenewed.
func (e *Extension) OnSubscriptionRenewed(ctx context.Context, sub *subscription.Subscription, payment types.Amount) error {
	return e.record(ctx, ActionSubscriptionRenewed, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, sub.Subscriber, nil,
		"payment", payment,
		"end_date", sub.EndDate,
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, sub.Subscriber, nil,
	)
}

// ──────────────────────────────────────────────────
// Claim lifecycle hooks
// ──────────────────────────────────────────────────

// OnClaimSubmitted implements plugin.OnClaimSubmitted.
func (e *Extension) OnClaimSubmitted(ctx context.Context, c *claim.Claim) error {
	return e.record(ctx, ActionClaimSubmitted, SeverityInfo, OutcomeSuccess,
		ResourceClaim, c.ID.String(), CategoryClaims, c.Claimant, nil,
		"subscription_id", c.SubscriptionID,
		"amount", c.Amount,
		"processing_fee", c.ProcessingFee,
		"document_reference", c.DocumentReference,
	)
}

// OnClaimApproved implements plugin.OnClaimApproved. Partial approvals are
// recorded with a partial outcome.
func (e *Extension) OnClaimApproved(ctx context.Context, c *claim.Claim, v *verification.Verification) error {
	outcome := OutcomeSuccess
	if v.Partial(c) {
		outcome = OutcomePartial
	}
	return e.record(ctx, ActionClaimApproved, SeverityInfo, outcome,
		ResourceClaim, c.ID.String(), CategoryClaims, v.Verifier, nil,
		"claimant", c.Claimant,
		"amount", c.Amount,
		"verified_amount", v.VerifiedAmount,
	)
}

// OnClaimRejected implements plugin.OnClaimRejected.
func (e *Extension) OnClaimRejected(ctx context.Context, c *claim.Claim) error {
	return e.record(ctx, ActionClaimRejected, SeverityInfo, OutcomeSuccess,
		ResourceClaim, c.ID.String(), CategoryClaims, types.ZeroAccount, nil,
		"claimant", c.Claimant,
		"amount", c.Amount,
		"rejection_reason", c.RejectionReason,
	)
}

// OnClaimPaid implements plugin.OnClaimPaid.
func (e *Extension) OnClaimPaid(ctx context.Context, c *claim.Claim, m *fund.Movement) error {
	return e.record(ctx, ActionClaimPaid, SeverityInfo, OutcomeSuccess,
		ResourceClaim, c.ID.String(), CategoryPayment, c.Claimant, nil,
		"amount", m.Amount,
		"movement_id", m.ID.String(),
		"reference", m.Reference,
		"balance_after", m.BalanceAfter,
	)
}

// OnPayoutFailed implements plugin.OnPayoutFailed.
func (e *Extension) OnPayoutFailed(ctx context.Context, c *claim.Claim, amount types.Amount, err error) error {
	return e.record(ctx, ActionPayoutFailed, SeverityCritical, OutcomeFailure,
		ResourceClaim, c.ID.String(), CategoryPayment, c.Claimant, err,
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Fund custody hooks
// ──────────────────────────────────────────────────

// OnFundsDeposited implements plugin.OnFundsDeposited.
func (e *Extension) OnFundsDeposited(ctx context.Context, m *fund.Movement) error {
	return e.record(ctx, ActionFundsDeposited, SeverityInfo, OutcomeSuccess,
		ResourceFunds, m.ID.String(), CategoryCustody, m.Account, nil,
		"amount", m.Amount,
		"balance_after", m.BalanceAfter,
	)
}

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (e *Extension) OnFundsWithdrawn(ctx context.Context, m *fund.Movement) error {
	return e.record(ctx, ActionFundsWithdrawn, SeverityWarning, OutcomeSuccess,
		ResourceFunds, m.ID.String(), CategoryCustody, m.Account, nil,
		"amount", m.Amount,
		"balance_after", m.BalanceAfter,
		"reference", m.Reference,
	)
}

// OnProcessingFeeUpdated implements plugin.OnProcessingFeeUpdated.
func (e *Extension) OnProcessingFeeUpdated(ctx context.Context, oldFee, newFee types.Amount) error {
	return e.record(ctx, ActionProcessingFeeUpdated, SeverityInfo, OutcomeSuccess,
		ResourceSettings, "claim_processing_fee", CategoryAccess, types.ZeroAccount, nil,
		"old_fee", oldFee,
		"new_fee", newFee,
	)
}

// OnOwnershipTransferred implements plugin.OnOwnershipTransferred.
func (e *Extension) OnOwnershipTransferred(ctx context.Context, previous, next types.Account) error {
	return e.record(ctx, ActionOwnershipTransferred, SeverityWarning, OutcomeSuccess,
		ResourceSettings, "owner", CategoryAccess, previous, nil,
		"previous_owner", previous,
		"new_owner", next,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled. A zero
// actor is left out of the event.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	actor types.Account,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}
	if !actor.IsZero() {
		evt.Actor = actor.String()
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
