// Package observability provides a metrics extension for the reimbursement
// ledger that records lifecycle event counts and amounts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/plugin"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionRenewed  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled = (*MetricsExtension)(nil)
	_ plugin.OnClaimSubmitted       = (*MetricsExtension)(nil)
	_ plugin.OnClaimApproved        = (*MetricsExtension)(nil)
	_ plugin.OnClaimRejected        = (*MetricsExtension)(nil)
	_ plugin.OnClaimPaid            = (*MetricsExtension)(nil)
	_ plugin.OnPayoutFailed         = (*MetricsExtension)(nil)
	_ plugin.OnFundsDeposited       = (*MetricsExtension)(nil)
	_ plugin.OnFundsWithdrawn       = (*MetricsExtension)(nil)
	_ plugin.OnProcessingFeeUpdated = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics. Names are dot-separated.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Ledger plugin to automatically track claim and fund metrics.
// Amounts are observed in smallest units.
type MetricsExtension struct {
	factory MetricFactory

	// Subscription metrics
	SubscriptionCreated  Counter
	SubscriptionRenewed  Counter
	SubscriptionCanceled Counter
	PremiumsCollected    Counter

	// Claim metrics
	ClaimSubmitted       Counter
	ClaimApproved        Counter
	ClaimPartialApproved Counter
	ClaimRejected        Counter
	ClaimPaid            Counter
	ClaimAmount          Histogram
	FeesCollected        Counter

	// Payout metrics
	PayoutAmount   Histogram
	PayoutFailures Counter

	// Fund metrics
	FundsDeposited       Counter
	FundsWithdrawn       Counter
	ProcessingFeeUpdates Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Subscription metrics
		SubscriptionCreated:  factory.Counter("reimburse.subscription.created"),
		SubscriptionRenewed:  factory.Counter("reimburse.subscription.renewed"),
		SubscriptionCanceled: factory.Counter("reimburse.subscription.canceled"),
		PremiumsCollected:    factory.Counter("reimburse.subscription.premiums"),

		// Claim metrics
		ClaimSubmitted:       factory.Counter("reimburse.claim.submitted"),
		ClaimApproved:        factory.Counter("reimburse.claim.approved"),
		ClaimPartialApproved: factory.Counter("reimburse.claim.partially_approved"),
		ClaimRejected:        factory.Counter("reimburse.claim.rejected"),
		ClaimPaid:            factory.Counter("reimburse.claim.paid"),
		ClaimAmount:          factory.Histogram("reimburse.claim.amount"),
		FeesCollected:        factory.Counter("reimburse.claim.fees"),

		// Payout metrics
		PayoutAmount:   factory.Histogram("reimburse.payout.amount"),
		PayoutFailures: factory.Counter("reimburse.payout.failures"),

		// Fund metrics
		FundsDeposited:       factory.Counter("reimburse.funds.deposited"),
		FundsWithdrawn:       factory.Counter("reimburse.funds.withdrawn"),
		ProcessingFeeUpdates: factory.Counter("reimburse.settings.processing_fee_updates"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, sub *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	m.PremiumsCollected.Add(float64(sub.MonthlyFee))
	return nil
}

// OnSubscriptionRenewed implements plugin.OnSubscriptionRenewed.
func (m *MetricsExtension) OnSubscriptionRenewed(_ context.Context, _ *subscription.Subscription, payment types.Amount) error {
	m.SubscriptionRenewed.Inc()
	m.PremiumsCollected.Add(float64(payment))
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Claim lifecycle hooks
// ──────────────────────────────────────────────────

// OnClaimSubmitted implements plugin.OnClaimSubmitted.
func (m *MetricsExtension) OnClaimSubmitted(_ context.Context, c *claim.Claim) error {
	m.ClaimSubmitted.Inc()
	m.ClaimAmount.Observe(float64(c.Amount))
	m.FeesCollected.Add(float64(c.ProcessingFee))
	return nil
}

// OnClaimApproved implements plugin.OnClaimApproved.
func (m *MetricsExtension) OnClaimApproved(_ context.Context, c *claim.Claim, v *verification.Verification) error {
	m.ClaimApproved.Inc()
	if v.Partial(c) {
		m.ClaimPartialApproved.Inc()
	}
	return nil
}

// OnClaimRejected implements plugin.OnClaimRejected.
func (m *MetricsExtension) OnClaimRejected(_ context.Context, _ *claim.Claim) error {
	m.ClaimRejected.Inc()
	return nil
}

// OnClaimPaid implements plugin.OnClaimPaid.
func (m *MetricsExtension) OnClaimPaid(_ context.Context, _ *claim.Claim, mv *fund.Movement) error {
	m.ClaimPaid.Inc()
	m.PayoutAmount.Observe(float64(mv.Amount))
	return nil
}

// OnPayoutFailed implements plugin.OnPayoutFailed.
func (m *MetricsExtension) OnPayoutFailed(_ context.Context, _ *claim.Claim, _ types.Amount, _ error) error {
	m.PayoutFailures.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Fund custody hooks
// ──────────────────────────────────────────────────

// OnFundsDeposited implements plugin.OnFundsDeposited.
func (m *MetricsExtension) OnFundsDeposited(_ context.Context, mv *fund.Movement) error {
	m.FundsDeposited.Add(float64(mv.Amount))
	return nil
}

// OnFundsWithdrawn implements plugin.OnFundsWithdrawn.
func (m *MetricsExtension) OnFundsWithdrawn(_ context.Context, mv *fund.Movement) error {
	m.FundsWithdrawn.Add(float64(mv.Amount))
	return nil
}

// OnProcessingFeeUpdated implements plugin.OnProcessingFeeUpdated.
func (m *MetricsExtension) OnProcessingFeeUpdated(_ context.Context, _, _ types.Amount) error {
	m.ProcessingFeeUpdates.Inc()
	return nil
}
