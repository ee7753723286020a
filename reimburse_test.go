package reimburse_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	reimburse "github.com/xraph/reimburse"
	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/payout"
	"github.com/xraph/reimburse/store/memory"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

var (
	owner = types.MustParseAccount("0x0000000000000000000000000000000000000abc")
	alice = types.MustParseAccount("0xa11ce00000000000000000000000000000000001")
	bob   = types.MustParseAccount("0xb0b0000000000000000000000000000000000002")
	carol = types.MustParseAccount("0xca401000000000000000000000000000000000c3")
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	l      *reimburse.Ledger
	wallet *payout.Wallet
	clock  *testClock
}

// newFixture starts a ledger on a memory store with a claim processing fee
// of 1 and a fixed clock.
func newFixture(t *testing.T, opts ...reimburse.Option) *fixture {
	t.Helper()

	f := &fixture{
		wallet: payout.NewWallet(),
		clock:  &testClock{now: epoch},
	}
	base := []reimburse.Option{
		reimburse.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		reimburse.WithOwner(owner),
		reimburse.WithClaimProcessingFee(1),
		reimburse.WithTransferer(f.wallet),
		reimburse.WithClock(f.clock.Now),
	}
	f.l = reimburse.New(memory.New(), append(base, opts...)...)
	if err := f.l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.l.Stop() })
	return f
}

// subscribe creates the standard subscription: fee 10, coverage 1000,
// deductible 100.
func (f *fixture) subscribe(t *testing.T, who types.Account) *subscription.Subscription {
	t.Helper()
	sub, err := f.l.CreateSubscription(context.Background(), who, 10, 1000, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func (f *fixture) totalFunds(t *testing.T) types.Amount {
	t.Helper()
	total, err := f.l.TotalFunds(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return total
}

func (f *fixture) claimStatus(t *testing.T, claimID claim.ID) claim.Status {
	t.Helper()
	c, err := f.l.GetClaim(context.Background(), claimID)
	if err != nil {
		t.Fatal(err)
	}
	return c.Status
}

func TestExampleScenarios(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// 1. Create subscription.
	sub, err := f.l.CreateSubscription(ctx, alice, 10, 1000, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	if sub.ID != 1 {
		t.Errorf("subscription id: got %d, want 1", sub.ID)
	}
	if !sub.IsActive {
		t.Error("subscription should be active")
	}
	if want := epoch.Add(30 * 24 * time.Hour); !sub.EndDate.Equal(want) {
		t.Errorf("end date: got %v, want %v", sub.EndDate, want)
	}

	// 2. Submit claim.
	c, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "ipfs://QmReceipt", 1)
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != 1 {
		t.Errorf("claim id: got %d, want 1", c.ID)
	}
	if c.Status != claim.StatusPending {
		t.Errorf("claim status: got %s, want pending", c.Status)
	}

	// 3. Approve a partial amount.
	c, v, err := f.l.ApproveClaim(ctx, owner, c.ID, 400)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != claim.StatusApproved {
		t.Errorf("claim status: got %s, want approved", c.Status)
	}
	if v.VerifiedAmount != 400 {
		t.Errorf("verified amount: got %d, want 400", v.VerifiedAmount)
	}

	// 4. Fund the pool and pay.
	if _, err := f.l.AddFunds(ctx, carol, 1000); err != nil {
		t.Fatal(err)
	}
	before := f.totalFunds(t)
	receipt, err := f.l.ProcessPayment(ctx, owner, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.wallet.Balance(alice); got != 400 {
		t.Errorf("claimant balance: got %d, want 400", got)
	}
	if got := f.totalFunds(t); got != before-400 {
		t.Errorf("total funds: got %d, want %d", got, before-400)
	}
	if got := f.claimStatus(t, c.ID); got != claim.StatusPaid {
		t.Errorf("claim status: got %s, want paid", got)
	}
	if receipt.Amount != 400 || receipt.Reference == "" || receipt.MovementID.IsNil() {
		t.Errorf("receipt: got %+v", receipt)
	}

	// 5. Below deductible.
	_, err = f.l.SubmitClaim(ctx, alice, sub.ID, 50, "ipfs://QmSmall", 1)
	if !errors.Is(err, reimburse.ErrAmountBelowDeductible) {
		t.Errorf("below deductible: got %v, want %v", err, reimburse.ErrAmountBelowDeductible)
	}
	ids, err := f.l.GetUserClaims(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Errorf("claims after rejection: got %v, want [1]", ids)
	}

	// 6. Non-verifier approval.
	c2, err := f.l.SubmitClaim(ctx, alice, sub.ID, 200, "ipfs://QmOther", 1)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = f.l.ApproveClaim(ctx, bob, c2.ID, 200)
	if !errors.Is(err, reimburse.ErrNotAuthorizedVerifier) {
		t.Errorf("non-verifier approve: got %v, want %v", err, reimburse.ErrNotAuthorizedVerifier)
	}
	if got := f.claimStatus(t, c2.ID); got != claim.StatusPending {
		t.Errorf("claim status: got %s, want pending", got)
	}
}

func TestCreateSubscriptionValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name                               string
		caller                             types.Account
		fee, coverage, deductible, payment types.Amount
		want                               error
	}{
		{"underpaid", alice, 10, 1000, 100, 9, reimburse.ErrInsufficientPayment},
		{"coverage equals deductible", alice, 10, 100, 100, 10, reimburse.ErrInvalidCoverageTerms},
		{"coverage below deductible", alice, 10, 50, 100, 10, reimburse.ErrInvalidCoverageTerms},
		{"payment checked first", alice, 10, 50, 100, 9, reimburse.ErrInsufficientPayment},
		{"zero caller", types.ZeroAccount, 10, 1000, 100, 10, reimburse.ErrInvalidAccount},
		{"amount out of range", alice, types.MaxAmount + 1, 1000, 100, 10, reimburse.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.l.CreateSubscription(context.Background(), tt.caller, tt.fee, tt.coverage, tt.deductible, tt.payment)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if got := f.totalFunds(t); got != 0 {
		t.Errorf("total funds after failures: got %d, want 0", got)
	}
	ids, _ := f.l.GetUserSubscriptions(context.Background(), alice)
	if len(ids) != 0 {
		t.Errorf("subscriptions after failures: got %v, want none", ids)
	}
}

func TestExcessPaymentRetained(t *testing.T) {
	f := newFixture(t)

	if _, err := f.l.CreateSubscription(context.Background(), alice, 10, 1000, 100, 25); err != nil {
		t.Fatal(err)
	}
	if got := f.totalFunds(t); got != 25 {
		t.Errorf("total funds: got %d, want 25", got)
	}
}

func TestRenewAndCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscribe(t, alice)

	if _, err := f.l.RenewSubscription(ctx, bob, sub.ID, 10); !errors.Is(err, reimburse.ErrNotSubscriptionOwner) {
		t.Errorf("renew by other: got %v, want %v", err, reimburse.ErrNotSubscriptionOwner)
	}
	if _, err := f.l.RenewSubscription(ctx, alice, sub.ID, 9); !errors.Is(err, reimburse.ErrInsufficientPayment) {
		t.Errorf("renew underpaid: got %v, want %v", err, reimburse.ErrInsufficientPayment)
	}
	if _, err := f.l.RenewSubscription(ctx, alice, 99, 10); !errors.Is(err, reimburse.ErrSubscriptionNotFound) {
		t.Errorf("renew missing: got %v, want %v", err, reimburse.ErrSubscriptionNotFound)
	}

	renewed, err := f.l.RenewSubscription(ctx, alice, sub.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if want := sub.EndDate.Add(subscription.Period); !renewed.EndDate.Equal(want) {
		t.Errorf("renewed end date: got %v, want %v", renewed.EndDate, want)
	}
	if got := f.totalFunds(t); got != 20 {
		t.Errorf("total funds: got %d, want 20", got)
	}

	if _, err := f.l.CancelSubscription(ctx, bob, sub.ID); !errors.Is(err, reimburse.ErrNotSubscriptionOwner) {
		t.Errorf("cancel by other: got %v, want %v", err, reimburse.ErrNotSubscriptionOwner)
	}
	canceled, err := f.l.CancelSubscription(ctx, alice, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if canceled.IsActive || canceled.CanceledAt == nil {
		t.Errorf("canceled subscription: got active=%v canceled_at=%v", canceled.IsActive, canceled.CanceledAt)
	}
	if got := f.totalFunds(t); got != 20 {
		t.Errorf("total funds after cancel: got %d, want 20 (no refund)", got)
	}

	if _, err := f.l.CancelSubscription(ctx, alice, sub.ID); !errors.Is(err, reimburse.ErrAlreadyCancelled) {
		t.Errorf("second cancel: got %v, want %v", err, reimburse.ErrAlreadyCancelled)
	}
	if _, err := f.l.RenewSubscription(ctx, alice, sub.ID, 10); !errors.Is(err, reimburse.ErrSubscriptionInactive) {
		t.Errorf("renew canceled: got %v, want %v", err, reimburse.ErrSubscriptionInactive)
	}
	if _, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1); !errors.Is(err, reimburse.ErrSubscriptionInactive) {
		t.Errorf("claim on canceled: got %v, want %v", err, reimburse.ErrSubscriptionInactive)
	}
}

func TestLapsedSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscribe(t, alice)

	f.clock.Advance(31 * 24 * time.Hour)

	if _, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1); !errors.Is(err, reimburse.ErrSubscriptionInactive) {
		t.Errorf("claim on lapsed: got %v, want %v", err, reimburse.ErrSubscriptionInactive)
	}

	renewed, err := f.l.RenewSubscription(ctx, alice, sub.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if want := epoch.Add(2 * subscription.Period); !renewed.EndDate.Equal(want) {
		t.Errorf("end date: got %v, want %v", renewed.EndDate, want)
	}

	if _, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1); err != nil {
		t.Errorf("claim after renewal: %v", err)
	}
}

func TestSubmitClaimCheckOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscribe(t, alice)
	canceled := f.subscribe(t, alice)
	if _, err := f.l.CancelSubscription(ctx, alice, canceled.ID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		caller types.Account
		subID  subscription.ID
		amount types.Amount
		fee    types.Amount
		want   error
	}{
		{"missing subscription", bob, 42, 5000, 0, reimburse.ErrSubscriptionNotFound},
		{"not owner before inactive", bob, canceled.ID, 5000, 0, reimburse.ErrNotClaimOwner},
		{"inactive before fee", alice, canceled.ID, 5000, 0, reimburse.ErrSubscriptionInactive},
		{"fee before coverage", alice, sub.ID, 5000, 0, reimburse.ErrInsufficientProcessingFee},
		{"exceeds coverage", alice, sub.ID, 1001, 1, reimburse.ErrAmountExceedsCoverageLimit},
		{"below deductible", alice, sub.ID, 99, 1, reimburse.ErrAmountBelowDeductible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.l.SubmitClaim(ctx, tt.caller, tt.subID, tt.amount, "doc", tt.fee)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	// Bounds are inclusive.
	for _, amount := range []types.Amount{100, 1000} {
		if _, err := f.l.SubmitClaim(ctx, alice, sub.ID, amount, "doc", 1); err != nil {
			t.Errorf("amount %d: %v", amount, err)
		}
	}
	if got := f.totalFunds(t); got != 22 {
		t.Errorf("total funds: got %d, want 22", got)
	}
}

func TestClaimsAreNotCappedInAggregate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscribe(t, alice)

	for i := range 3 {
		if _, err := f.l.SubmitClaim(ctx, alice, sub.ID, 1000, "doc", 1); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
	}
}

func TestVerification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscribe(t, alice)

	c, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := f.l.ApproveClaim(ctx, owner, c.ID, 501); !errors.Is(err, reimburse.ErrVerifiedAmountExceedsClaim) {
		t.Errorf("over-approve: got %v, want %v", err, reimburse.ErrVerifiedAmountExceedsClaim)
	}
	if _, _, err := f.l.ApproveClaim(ctx, owner, 99, 1); !errors.Is(err, reimburse.ErrClaimNotFound) {
		t.Errorf("approve missing: got %v, want %v", err, reimburse.ErrClaimNotFound)
	}

	reviewed, err := f.l.BeginReview(ctx, owner, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reviewed.Status != claim.StatusUnderReview {
		t.Errorf("status: got %s, want under_review", reviewed.Status)
	}
	if _, err := f.l.BeginReview(ctx, owner, c.ID); !errors.Is(err, reimburse.ErrClaimNotPending) {
		t.Errorf("second review: got %v, want %v", err, reimburse.ErrClaimNotPending)
	}

	if _, _, err := f.l.ApproveClaim(ctx, owner, c.ID, 500); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.l.ApproveClaim(ctx, owner, c.ID, 500); !errors.Is(err, reimburse.ErrClaimNotPending) {
		t.Errorf("re-approve: got %v, want %v", err, reimburse.ErrClaimNotPending)
	}
	if _, err := f.l.RejectClaim(ctx, owner, c.ID, "late"); !errors.Is(err, reimburse.ErrClaimNotPending) {
		t.Errorf("reject approved: got %v, want %v", err, reimburse.ErrClaimNotPending)
	}

	v, err := f.l.GetVerification(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsVerified || v.Verifier != owner || v.VerifiedAmount != 500 {
		t.Errorf("verification: got %+v", v)
	}
}

func TestRejectClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscribe(t, alice)

	c, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.l.RejectClaim(ctx, alice, c.ID, "self-review"); !errors.Is(err, reimburse.ErrNotAuthorizedVerifier) {
		t.Errorf("reject by claimant: got %v, want %v", err, reimburse.ErrNotAuthorizedVerifier)
	}

	rejected, err := f.l.RejectClaim(ctx, owner, c.ID, "missing invoice")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != claim.StatusRejected || rejected.RejectionReason != "missing invoice" {
		t.Errorf("rejected claim: got status=%s reason=%q", rejected.Status, rejected.RejectionReason)
	}

	if _, _, err := f.l.ApproveClaim(ctx, owner, c.ID, 100); !errors.Is(err, reimburse.ErrClaimNotPending) {
		t.Errorf("approve rejected: got %v, want %v", err, reimburse.ErrClaimNotPending)
	}
	if _, err := f.l.ProcessPayment(ctx, owner, c.ID); !errors.Is(err, reimburse.ErrClaimNotApproved) {
		t.Errorf("pay rejected: got %v, want %v", err, reimburse.ErrClaimNotApproved)
	}
	if _, err := f.l.GetVerification(ctx, c.ID); !errors.Is(err, reimburse.ErrVerificationNotFound) {
		t.Errorf("verification of rejected: got %v, want %v", err, reimburse.ErrVerificationNotFound)
	}
	if _, err := f.l.GetVerification(ctx, 99); !errors.Is(err, reimburse.ErrClaimNotFound) {
		t.Errorf("verification of missing: got %v, want %v", err, reimburse.ErrClaimNotFound)
	}
	// The fee stays in the pool.
	if got := f.totalFunds(t); got != 11 {
		t.Errorf("total funds: got %d, want 11", got)
	}
}

func TestProcessPayment(t *testing.T) {
	ctx := context.Background()

	approved := func(t *testing.T, f *fixture) claim.ID {
		t.Helper()
		sub := f.subscribe(t, alice)
		c, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1)
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := f.l.ApproveClaim(ctx, owner, c.ID, 400); err != nil {
			t.Fatal(err)
		}
		return c.ID
	}

	t.Run("insufficient funds", func(t *testing.T) {
		f := newFixture(t)
		claimID := approved(t, f)

		if _, err := f.l.ProcessPayment(ctx, owner, claimID); !errors.Is(err, reimburse.ErrInsufficientLedgerFunds) {
			t.Errorf("got %v, want %v", err, reimburse.ErrInsufficientLedgerFunds)
		}
		if got := f.claimStatus(t, claimID); got != claim.StatusApproved {
			t.Errorf("status: got %s, want approved", got)
		}
	})

	t.Run("not verifier", func(t *testing.T) {
		f := newFixture(t)
		claimID := approved(t, f)

		if _, err := f.l.ProcessPayment(ctx, alice, claimID); !errors.Is(err, reimburse.ErrNotAuthorizedVerifier) {
			t.Errorf("got %v, want %v", err, reimburse.ErrNotAuthorizedVerifier)
		}
	})

	t.Run("transfer failure commits nothing", func(t *testing.T) {
		f := newFixture(t)
		claimID := approved(t, f)
		if _, err := f.l.AddFunds(ctx, owner, 1000); err != nil {
			t.Fatal(err)
		}
		before := f.totalFunds(t)

		f.wallet.FailNext(errors.New("network unreachable"))
		_, err := f.l.ProcessPayment(ctx, owner, claimID)
		if !errors.Is(err, reimburse.ErrPayoutTransferFailed) {
			t.Fatalf("got %v, want %v", err, reimburse.ErrPayoutTransferFailed)
		}
		if !reimburse.IsRetryable(err) {
			t.Error("transfer failure should be retryable")
		}
		if got := f.claimStatus(t, claimID); got != claim.StatusApproved {
			t.Errorf("status: got %s, want approved", got)
		}
		if got := f.totalFunds(t); got != before {
			t.Errorf("total funds: got %d, want %d", got, before)
		}
		payouts, err := f.l.Movements(ctx, fund.ListOpts{Kind: fund.KindPayout})
		if err != nil {
			t.Fatal(err)
		}
		if len(payouts) != 0 {
			t.Errorf("payout movements: got %d, want 0", len(payouts))
		}

		// Retry succeeds.
		if _, err := f.l.ProcessPayment(ctx, owner, claimID); err != nil {
			t.Fatal(err)
		}
		if got := f.wallet.Balance(alice); got != 400 {
			t.Errorf("claimant balance: got %d, want 400", got)
		}
		if _, err := f.l.ProcessPayment(ctx, owner, claimID); !errors.Is(err, reimburse.ErrClaimNotApproved) {
			t.Errorf("second payment: got %v, want %v", err, reimburse.ErrClaimNotApproved)
		}
	})
}

func TestDelegatedVerifiers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reimburse.WithVerifiers(bob))
	sub := f.subscribe(t, alice)

	c, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.l.ApproveClaim(ctx, carol, c.ID, 500); !errors.Is(err, reimburse.ErrNotAuthorizedVerifier) {
		t.Errorf("carol: got %v, want %v", err, reimburse.ErrNotAuthorizedVerifier)
	}
	_, v, err := f.l.ApproveClaim(ctx, bob, c.ID, 500)
	if err != nil {
		t.Fatal(err)
	}
	if v.Verifier != bob {
		t.Errorf("verifier: got %s, want %s", v.Verifier, bob)
	}

	// Delegated verifiers cannot manage funds.
	if _, err := f.l.WithdrawFunds(ctx, bob, 1, bob); !errors.Is(err, reimburse.ErrNotOwner) {
		t.Errorf("withdraw by verifier: got %v, want %v", err, reimburse.ErrNotOwner)
	}
}

func TestFundCustody(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.l.AddFunds(ctx, alice, 500); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		caller    types.Account
		amount    types.Amount
		recipient types.Account
		want      error
	}{
		{"not owner", alice, 100, alice, reimburse.ErrNotOwner},
		{"zero recipient", owner, 100, types.ZeroAccount, reimburse.ErrInvalidAccount},
		{"more than pool", owner, 501, carol, reimburse.ErrInsufficientLedgerFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.l.WithdrawFunds(ctx, tt.caller, tt.amount, tt.recipient); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	f.wallet.FailNext(errors.New("rejected by bank"))
	if _, err := f.l.WithdrawFunds(ctx, owner, 100, carol); !errors.Is(err, reimburse.ErrWithdrawalTransferFailed) {
		t.Errorf("failed transfer: got %v, want %v", err, reimburse.ErrWithdrawalTransferFailed)
	}
	if got := f.totalFunds(t); got != 500 {
		t.Errorf("total funds after failed withdrawal: got %d, want 500", got)
	}

	m, err := f.l.WithdrawFunds(ctx, owner, 500, carol)
	if err != nil {
		t.Fatal(err)
	}
	if m.BalanceAfter != 0 || m.Reference == "" {
		t.Errorf("withdrawal movement: got %+v", m)
	}
	if got := f.wallet.Balance(carol); got != 500 {
		t.Errorf("recipient balance: got %d, want 500", got)
	}
}

// A transferer may read ledger state while a payout or withdrawal is in
// flight. It sees the balance from before the debit.
func TestTransfererReadsLedger(t *testing.T) {
	ctx := context.Background()

	var (
		l    *reimburse.Ledger
		seen []types.Amount
	)
	reader := payout.Func(func(ctx context.Context, to types.Account, _ types.Amount, memo string) (string, error) {
		total, err := l.TotalFunds(ctx)
		if err != nil {
			return "", err
		}
		if _, err := l.Movements(ctx, fund.ListOpts{Account: to}); err != nil {
			return "", err
		}
		seen = append(seen, total)
		return "ref-" + memo, nil
	})
	f := newFixture(t, reimburse.WithTransferer(reader))
	l = f.l

	sub := f.subscribe(t, alice)
	c, err := l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.ApproveClaim(ctx, owner, c.ID, 400); err != nil {
		t.Fatal(err)
	}
	if _, err := l.AddFunds(ctx, owner, 1000); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		if _, err := l.WithdrawFunds(ctx, owner, 100, carol); err != nil {
			done <- err
			return
		}
		_, err := l.ProcessPayment(ctx, owner, c.ID)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("transferer blocked on a ledger read")
	}

	// 10 premium + 1 fee + 1000 deposit.
	want := []types.Amount{1011, 911}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Errorf("balances seen by transferer: got %v, want %v", seen, want)
	}
	if got := f.totalFunds(t); got != 511 {
		t.Errorf("total funds: got %d, want 511", got)
	}
}

func TestTransferTimeoutIsWrapped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscribe(t, alice)
	c, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.l.ApproveClaim(ctx, owner, c.ID, 400); err != nil {
		t.Fatal(err)
	}
	if _, err := f.l.AddFunds(ctx, owner, 1000); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		sentinel error
		call     func() error
	}{
		{"payout", reimburse.ErrPayoutTransferFailed, func() error {
			_, err := f.l.ProcessPayment(ctx, owner, c.ID)
			return err
		}},
		{"withdrawal", reimburse.ErrWithdrawalTransferFailed, func() error {
			_, err := f.l.WithdrawFunds(ctx, owner, 100, carol)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.wallet.FailNext(context.DeadlineExceeded)
			err := tt.call()
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("got %v, want %v", err, tt.sentinel)
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("got %v, want it to wrap %v", err, context.DeadlineExceeded)
			}
		})
	}
}

func TestClaimStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscribe(t, alice)
	if _, err := f.l.AddFunds(ctx, owner, 1000); err != nil {
		t.Fatal(err)
	}

	submit := func() claim.ID {
		t.Helper()
		c, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1)
		if err != nil {
			t.Fatal(err)
		}
		return c.ID
	}

	paid := submit()
	if _, _, err := f.l.ApproveClaim(ctx, owner, paid, 400); err != nil {
		t.Fatal(err)
	}
	if _, err := f.l.ProcessPayment(ctx, owner, paid); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.l.ApproveClaim(ctx, owner, submit(), 300); err != nil {
		t.Fatal(err)
	}
	if _, err := f.l.RejectClaim(ctx, owner, submit(), "duplicate"); err != nil {
		t.Fatal(err)
	}
	submit()

	got, err := f.l.ClaimStats(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	want := claim.Stats{Total: 4, Pending: 1, Approved: 1, Rejected: 1, Paid: 1, AmountPaid: 400, ApprovalRate: 2.0 / 3.0}
	if *got != want {
		t.Errorf("alice: got %+v, want %+v", *got, want)
	}

	none, err := f.l.ClaimStats(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if *none != (claim.Stats{}) {
		t.Errorf("bob: got %+v, want zero stats", *none)
	}
}

func TestProcessingFeeAndOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscribe(t, alice)

	if err := f.l.UpdateClaimProcessingFee(ctx, alice, 5); !errors.Is(err, reimburse.ErrNotOwner) {
		t.Errorf("fee by non-owner: got %v, want %v", err, reimburse.ErrNotOwner)
	}
	if err := f.l.UpdateClaimProcessingFee(ctx, owner, 5); err != nil {
		t.Fatal(err)
	}
	if fee, _ := f.l.ClaimProcessingFee(ctx); fee != 5 {
		t.Errorf("fee: got %d, want 5", fee)
	}
	if _, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 4); !errors.Is(err, reimburse.ErrInsufficientProcessingFee) {
		t.Errorf("old fee: got %v, want %v", err, reimburse.ErrInsufficientProcessingFee)
	}

	if err := f.l.TransferOwnership(ctx, owner, types.ZeroAccount); !errors.Is(err, reimburse.ErrInvalidOwner) {
		t.Errorf("zero owner: got %v, want %v", err, reimburse.ErrInvalidOwner)
	}
	if err := f.l.TransferOwnership(ctx, bob, carol); !errors.Is(err, reimburse.ErrNotOwner) {
		t.Errorf("transfer by non-owner: got %v, want %v", err, reimburse.ErrNotOwner)
	}
	if err := f.l.TransferOwnership(ctx, owner, carol); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.l.Owner(ctx); got != carol {
		t.Errorf("owner: got %s, want %s", got, carol)
	}
	if err := f.l.UpdateClaimProcessingFee(ctx, owner, 1); !errors.Is(err, reimburse.ErrNotOwner) {
		t.Errorf("fee by previous owner: got %v, want %v", err, reimburse.ErrNotOwner)
	}
}

func TestMovementsJournal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sub := f.subscribe(t, alice)
	if _, err := f.l.RenewSubscription(ctx, alice, sub.ID, 10); err != nil {
		t.Fatal(err)
	}
	c, err := f.l.SubmitClaim(ctx, alice, sub.ID, 200, "doc", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.l.AddFunds(ctx, bob, 300); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.l.ApproveClaim(ctx, owner, c.ID, 200); err != nil {
		t.Fatal(err)
	}
	if _, err := f.l.ProcessPayment(ctx, owner, c.ID); err != nil {
		t.Fatal(err)
	}

	movements, err := f.l.Movements(ctx, fund.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		kind    fund.Kind
		balance types.Amount
	}{
		{fund.KindPremium, 10},
		{fund.KindRenewal, 20},
		{fund.KindClaimFee, 21},
		{fund.KindDeposit, 321},
		{fund.KindPayout, 121},
	}
	if len(movements) != len(want) {
		t.Fatalf("movements: got %d, want %d", len(movements), len(want))
	}
	for i, w := range want {
		if movements[i].Kind != w.kind || movements[i].BalanceAfter != w.balance {
			t.Errorf("movement %d: got %s/%d, want %s/%d", i, movements[i].Kind, movements[i].BalanceAfter, w.kind, w.balance)
		}
	}
	if movements[4].ClaimID != c.ID || movements[4].Account != alice {
		t.Errorf("payout movement: got claim=%d account=%s", movements[4].ClaimID, movements[4].Account)
	}
	if got := f.totalFunds(t); got != 121 {
		t.Errorf("total funds: got %d, want 121", got)
	}
}

func TestSequentialIDsUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const workers = 25
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[subscription.ID]bool)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := f.l.CreateSubscription(ctx, alice, 10, 1000, 100, 10)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[sub.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	for i := 1; i <= workers; i++ {
		if !seen[subscription.ID(i)] {
			t.Errorf("subscription id %d was not assigned", i)
		}
	}
	if got := f.totalFunds(t); got != workers*10 {
		t.Errorf("total funds: got %d, want %d", got, workers*10)
	}
	ids, err := f.l.GetUserSubscriptions(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	for i, id := range ids {
		if id != subscription.ID(i+1) {
			t.Errorf("ids[%d]: got %d, want %d", i, id, i+1)
		}
	}
}

func TestStartRequiresOwner(t *testing.T) {
	l := reimburse.New(memory.New(), reimburse.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := l.Start(context.Background()); !errors.Is(err, reimburse.ErrInvalidOwner) {
		t.Errorf("got %v, want %v", err, reimburse.ErrInvalidOwner)
	}
}

func TestStartKeepsExistingState(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	quiet := reimburse.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	first := reimburse.New(s, quiet, reimburse.WithOwner(owner), reimburse.WithClaimProcessingFee(7))
	if err := first.Start(ctx); err != nil {
		t.Fatal(err)
	}

	second := reimburse.New(s, quiet, reimburse.WithOwner(bob), reimburse.WithClaimProcessingFee(9))
	if err := second.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if got, _ := second.Owner(ctx); got != owner {
		t.Errorf("owner: got %s, want %s", got, owner)
	}
	if got, _ := second.ClaimProcessingFee(ctx); got != 7 {
		t.Errorf("fee: got %d, want 7", got)
	}
}

// recorder counts the hooks the engine fires.
type recorder struct {
	mu     sync.Mutex
	events []string
	failed error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) record(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnClaimSubmitted(_ context.Context, _ *claim.Claim) error {
	r.record("submitted")
	return nil
}

func (r *recorder) OnClaimApproved(_ context.Context, _ *claim.Claim, _ *verification.Verification) error {
	r.record("approved")
	return nil
}

func (r *recorder) OnClaimPaid(_ context.Context, _ *claim.Claim, _ *fund.Movement) error {
	r.record("paid")
	return nil
}

func (r *recorder) OnPayoutFailed(_ context.Context, c *claim.Claim, _ types.Amount, err error) error {
	r.record("payout_failed:" + c.Status.String())
	r.mu.Lock()
	r.failed = err
	r.mu.Unlock()
	return nil
}

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := newFixture(t, reimburse.WithPlugin(rec))
	sub := f.subscribe(t, alice)

	c, err := f.l.SubmitClaim(ctx, alice, sub.ID, 500, "doc", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.l.ApproveClaim(ctx, owner, c.ID, 500); err != nil {
		t.Fatal(err)
	}
	if _, err := f.l.AddFunds(ctx, owner, 1000); err != nil {
		t.Fatal(err)
	}
	cause := errors.New("down")
	f.wallet.FailNext(cause)
	_, _ = f.l.ProcessPayment(ctx, owner, c.ID)
	if _, err := f.l.ProcessPayment(ctx, owner, c.ID); err != nil {
		t.Fatal(err)
	}

	want := []string{"submitted", "approved", "payout_failed:approved", "paid"}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != len(want) {
		t.Fatalf("events: got %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, rec.events[i], want[i])
		}
	}
	if !errors.Is(rec.failed, cause) {
		t.Errorf("failure cause: got %v, want %v", rec.failed, cause)
	}
}
