// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	reimburse "github.com/xraph/reimburse"
	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

var (
	Alice = types.MustParseAccount("0xa11ce00000000000000000000000000000000001")
	Bob   = types.MustParseAccount("0xb0b0000000000000000000000000000000000002")
	Owner = types.MustParseAccount("0x0000000000000000000000000000000000000abc")
)

// epoch is truncated to microseconds so backends with coarser timestamp
// precision still round-trip exactly.
var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the suite. newStore must return a migrated, empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"State", testState},
		{"Subscriptions", testSubscriptions},
		{"Claims", testClaims},
		{"ListClaims", testListClaims},
		{"Verifications", testVerifications},
		{"Movements", testMovements},
		{"NegativePage", testNegativePage},
		{"AtomicCommit", testAtomicCommit},
		{"AtomicRollback", testAtomicRollback},
		{"ReturnsCopies", testReturnsCopies},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func newSubscription(subID subscription.ID, owner types.Account) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:        types.NewEntity(epoch),
		ID:            subID,
		Subscriber:    owner,
		MonthlyFee:    10,
		CoverageLimit: 1000,
		Deductible:    100,
		StartDate:     epoch,
		EndDate:       epoch.Add(subscription.Period),
		IsActive:      true,
	}
}

func newClaim(claimID claim.ID, subID subscription.ID, owner types.Account) *claim.Claim {
	return &claim.Claim{
		Entity:            types.NewEntity(epoch),
		ID:                claimID,
		Claimant:          owner,
		SubscriptionID:    subID,
		Amount:            500,
		DocumentReference: "QmHash123456789",
		Status:            claim.StatusPending,
		ProcessingFee:     1,
	}
}

func testState(t *testing.T, s store.Store) {
	ctx := context.Background()

	if _, err := s.GetState(ctx); !errors.Is(err, reimburse.ErrStoreNotReady) {
		t.Fatalf("GetState on empty store: got %v, want %v", err, reimburse.ErrStoreNotReady)
	}

	want := &fund.State{
		Entity:             types.NewEntity(epoch),
		Owner:              Owner,
		TotalFunds:         1234,
		ClaimProcessingFee: 1000,
		LastSubscriptionID: 7,
		LastClaimID:        3,
	}
	if err := s.PutState(ctx, want); err != nil {
		t.Fatalf("PutState: %v", err)
	}

	got, err := s.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !got.Owner.Equal(want.Owner) {
		t.Errorf("Owner: got %s, want %s", got.Owner, want.Owner)
	}
	if got.TotalFunds != want.TotalFunds || got.ClaimProcessingFee != want.ClaimProcessingFee {
		t.Errorf("funds/fee: got %d/%d, want %d/%d", got.TotalFunds, got.ClaimProcessingFee, want.TotalFunds, want.ClaimProcessingFee)
	}
	if got.LastSubscriptionID != 7 || got.LastClaimID != 3 {
		t.Errorf("counters: got %d/%d, want 7/3", got.LastSubscriptionID, got.LastClaimID)
	}

	want.TotalFunds = 99
	if err := s.PutState(ctx, want); err != nil {
		t.Fatalf("PutState overwrite: %v", err)
	}
	got, err = s.GetState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalFunds != 99 {
		t.Errorf("TotalFunds after overwrite: got %d, want 99", got.TotalFunds)
	}
}

func testSubscriptions(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i, owner := range []types.Account{Alice, Bob, Alice} {
		if err := s.CreateSubscription(ctx, newSubscription(subscription.ID(i+1), owner)); err != nil {
			t.Fatalf("CreateSubscription %d: %v", i+1, err)
		}
	}

	if err := s.CreateSubscription(ctx, newSubscription(1, Alice)); !errors.Is(err, reimburse.ErrAlreadyExists) {
		t.Errorf("duplicate: got %v, want %v", err, reimburse.ErrAlreadyExists)
	}

	got, err := s.GetSubscription(ctx, 1)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	want := newSubscription(1, Alice)
	if !got.Subscriber.Equal(Alice) {
		t.Errorf("Subscriber: got %s, want %s", got.Subscriber, Alice)
	}
	if got.MonthlyFee != want.MonthlyFee || got.CoverageLimit != want.CoverageLimit || got.Deductible != want.Deductible {
		t.Errorf("terms: got %d/%d/%d", got.MonthlyFee, got.CoverageLimit, got.Deductible)
	}
	if !got.StartDate.Equal(want.StartDate) || !got.EndDate.Equal(want.EndDate) {
		t.Errorf("dates: got %v..%v, want %v..%v", got.StartDate, got.EndDate, want.StartDate, want.EndDate)
	}
	if !got.IsActive || got.CanceledAt != nil {
		t.Errorf("IsActive/CanceledAt: got %v/%v", got.IsActive, got.CanceledAt)
	}

	canceled := epoch.Add(time.Hour)
	got.IsActive = false
	got.CanceledAt = &canceled
	got.EndDate = got.EndDate.Add(subscription.Period)
	if err := s.UpdateSubscription(ctx, got); err != nil {
		t.Fatalf("UpdateSubscription: %v", err)
	}
	updated, err := s.GetSubscription(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if updated.IsActive || updated.CanceledAt == nil || !updated.CanceledAt.Equal(canceled) {
		t.Errorf("after update: IsActive=%v CanceledAt=%v", updated.IsActive, updated.CanceledAt)
	}
	if !updated.EndDate.Equal(epoch.Add(2 * subscription.Period)) {
		t.Errorf("EndDate after update: got %v", updated.EndDate)
	}

	if _, err := s.GetSubscription(ctx, 99); !errors.Is(err, reimburse.ErrSubscriptionNotFound) {
		t.Errorf("missing: got %v, want %v", err, reimburse.ErrSubscriptionNotFound)
	}
	if err := s.UpdateSubscription(ctx, newSubscription(99, Alice)); !errors.Is(err, reimburse.ErrSubscriptionNotFound) {
		t.Errorf("update missing: got %v, want %v", err, reimburse.ErrSubscriptionNotFound)
	}

	ids, err := s.ListSubscriptionIDs(ctx, Alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("Alice ids: got %v, want [1 3]", ids)
	}
	ids, err = s.ListSubscriptionIDs(ctx, Owner)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("Owner ids: got %v, want []", ids)
	}
}

func testClaims(t *testing.T, s store.Store) {
	ctx := context.Background()

	if err := s.CreateClaim(ctx, newClaim(1, 1, Alice)); err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	if err := s.CreateClaim(ctx, newClaim(2, 1, Alice)); err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	if err := s.CreateClaim(ctx, newClaim(1, 1, Alice)); !errors.Is(err, reimburse.ErrAlreadyExists) {
		t.Errorf("duplicate: got %v, want %v", err, reimburse.ErrAlreadyExists)
	}

	got, err := s.GetClaim(ctx, 1)
	if err != nil {
		t.Fatalf("GetClaim: %v", err)
	}
	if got.Amount != 500 || got.DocumentReference != "QmHash123456789" || got.Status != claim.StatusPending {
		t.Errorf("claim: got amount=%d doc=%q status=%s", got.Amount, got.DocumentReference, got.Status)
	}
	if got.SubscriptionID != 1 || got.ProcessingFee != 1 || !got.Claimant.Equal(Alice) {
		t.Errorf("claim refs: got sub=%d fee=%d claimant=%s", got.SubscriptionID, got.ProcessingFee, got.Claimant)
	}

	decided := epoch.Add(time.Minute)
	got.Status = claim.StatusRejected
	got.RejectionReason = "Insufficient documentation"
	got.DecidedAt = &decided
	if err := s.UpdateClaim(ctx, got); err != nil {
		t.Fatalf("UpdateClaim: %v", err)
	}
	updated, err := s.GetClaim(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != claim.StatusRejected || updated.RejectionReason != "Insufficient documentation" {
		t.Errorf("after update: status=%s reason=%q", updated.Status, updated.RejectionReason)
	}
	if updated.DecidedAt == nil || !updated.DecidedAt.Equal(decided) || updated.PaidAt != nil {
		t.Errorf("after update: DecidedAt=%v PaidAt=%v", updated.DecidedAt, updated.PaidAt)
	}

	if _, err := s.GetClaim(ctx, 42); !errors.Is(err, reimburse.ErrClaimNotFound) {
		t.Errorf("missing: got %v, want %v", err, reimburse.ErrClaimNotFound)
	}
	if err := s.UpdateClaim(ctx, newClaim(42, 1, Alice)); !errors.Is(err, reimburse.ErrClaimNotFound) {
		t.Errorf("update missing: got %v, want %v", err, reimburse.ErrClaimNotFound)
	}

	ids, err := s.ListClaimIDs(ctx, Alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Errorf("Alice claim ids: got %v, want [1 2]", ids)
	}
}

func testListClaims(t *testing.T, s store.Store) {
	ctx := context.Background()

	statuses := []claim.Status{claim.StatusPending, claim.StatusApproved, claim.StatusPending, claim.StatusPaid, claim.StatusPending}
	for i, st := range statuses {
		c := newClaim(claim.ID(i+1), 1, Alice)
		c.Status = st
		if err := s.CreateClaim(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListClaims(ctx, claim.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("all: got %d claims, want 5", len(all))
	}
	for i, c := range all {
		if c.ID != claim.ID(i+1) {
			t.Errorf("order: position %d has claim %d", i, c.ID)
		}
	}

	pending := claim.StatusPending
	got, err := s.ListClaims(ctx, claim.ListOpts{Status: &pending})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != 1 || got[1].ID != 3 || got[2].ID != 5 {
		t.Errorf("pending: got %d claims", len(got))
	}

	page, err := s.ListClaims(ctx, claim.ListOpts{Status: &pending, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].ID != 3 {
		t.Errorf("page: got %v", page)
	}
}

func testVerifications(t *testing.T, s store.Store) {
	ctx := context.Background()

	v := &verification.Verification{
		ClaimID:        1,
		IsVerified:     true,
		VerifiedAmount: 400,
		Verifier:       Owner,
		VerifiedAt:     epoch,
	}
	if err := s.CreateVerification(ctx, v); err != nil {
		t.Fatalf("CreateVerification: %v", err)
	}
	if err := s.CreateVerification(ctx, v); !errors.Is(err, reimburse.ErrAlreadyExists) {
		t.Errorf("duplicate: got %v, want %v", err, reimburse.ErrAlreadyExists)
	}

	got, err := s.GetVerification(ctx, 1)
	if err != nil {
		t.Fatalf("GetVerification: %v", err)
	}
	if !got.IsVerified || got.VerifiedAmount != 400 || !got.Verifier.Equal(Owner) || !got.VerifiedAt.Equal(epoch) {
		t.Errorf("verification: got %+v", got)
	}

	if _, err := s.GetVerification(ctx, 2); !errors.Is(err, reimburse.ErrVerificationNotFound) {
		t.Errorf("missing: got %v, want %v", err, reimburse.ErrVerificationNotFound)
	}
}

func testMovements(t *testing.T, s store.Store) {
	ctx := context.Background()

	deposit := fund.NewMovement(fund.KindDeposit, Owner, 1000, 1000, epoch)
	premium := fund.NewMovement(fund.KindPremium, Alice, 10, 1010, epoch.Add(time.Second))
	premium.SubscriptionID = 1
	payout := fund.NewMovement(fund.KindPayout, Alice, 400, 610, epoch.Add(2*time.Second))
	payout.ClaimID = 1
	payout.Reference = "wallet-1"

	for _, m := range []*fund.Movement{deposit, premium, payout} {
		if err := s.RecordMovement(ctx, m); err != nil {
			t.Fatalf("RecordMovement %s: %v", m.Kind, err)
		}
	}
	if err := s.RecordMovement(ctx, deposit); !errors.Is(err, reimburse.ErrAlreadyExists) {
		t.Errorf("duplicate: got %v, want %v", err, reimburse.ErrAlreadyExists)
	}

	all, err := s.ListMovements(ctx, fund.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all: got %d, want 3", len(all))
	}
	if all[0].ID.String() != deposit.ID.String() || all[2].ID.String() != payout.ID.String() {
		t.Errorf("order: got %s, %s, %s", all[0].Kind, all[1].Kind, all[2].Kind)
	}
	if all[2].Reference != "wallet-1" || all[2].ClaimID != 1 || all[2].BalanceAfter != 610 {
		t.Errorf("payout: got %+v", all[2])
	}
	if all[1].SubscriptionID != 1 || !all[1].CreatedAt.Equal(epoch.Add(time.Second)) {
		t.Errorf("premium: got %+v", all[1])
	}

	mine, err := s.ListMovements(ctx, fund.ListOpts{Account: Alice})
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 {
		t.Errorf("Alice: got %d, want 2", len(mine))
	}

	payouts, err := s.ListMovements(ctx, fund.ListOpts{Kind: fund.KindPayout})
	if err != nil {
		t.Fatal(err)
	}
	if len(payouts) != 1 || payouts[0].Amount != 400 {
		t.Errorf("payouts: got %v", payouts)
	}

	page, err := s.ListMovements(ctx, fund.ListOpts{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Errorf("limit: got %d, want 2", len(page))
	}
}

// Negative limits and offsets are treated as unset.
func testNegativePage(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := s.CreateClaim(ctx, newClaim(claim.ID(i), 1, Alice)); err != nil {
			t.Fatal(err)
		}
		m := fund.NewMovement(fund.KindDeposit, Owner, 100, types.Amount(100*i), epoch.Add(time.Duration(i)*time.Second))
		if err := s.RecordMovement(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name          string
		limit, offset int
		want          int
	}{
		{"negative offset", 0, -1, 3},
		{"negative limit", -1, 0, 3},
		{"both negative", -5, -5, 3},
		{"negative limit with offset", -1, 2, 1},
	}
	for _, tt := range tests {
		claims, err := s.ListClaims(ctx, claim.ListOpts{Limit: tt.limit, Offset: tt.offset})
		if err != nil {
			t.Fatalf("%s: ListClaims: %v", tt.name, err)
		}
		if len(claims) != tt.want {
			t.Errorf("%s: got %d claims, want %d", tt.name, len(claims), tt.want)
		}
		movements, err := s.ListMovements(ctx, fund.ListOpts{Limit: tt.limit, Offset: tt.offset})
		if err != nil {
			t.Fatalf("%s: ListMovements: %v", tt.name, err)
		}
		if len(movements) != tt.want {
			t.Errorf("%s: got %d movements, want %d", tt.name, len(movements), tt.want)
		}
	}
}

func testAtomicCommit(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		st := &fund.State{Entity: types.NewEntity(epoch), Owner: Owner}
		subID := st.NextSubscriptionID()
		if err := tx.CreateSubscription(ctx, newSubscription(subID, Alice)); err != nil {
			return err
		}
		if err := st.Credit(10); err != nil {
			return err
		}
		return tx.PutState(ctx, st)
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	st, err := s.GetState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalFunds != 10 || st.LastSubscriptionID != 1 {
		t.Errorf("state: got funds=%d last=%d", st.TotalFunds, st.LastSubscriptionID)
	}
	if _, err := s.GetSubscription(ctx, 1); err != nil {
		t.Errorf("subscription not committed: %v", err)
	}
}

func testAtomicRollback(t *testing.T, s store.Store) {
	ctx := context.Background()

	if err := s.PutState(ctx, &fund.State{Entity: types.NewEntity(epoch), Owner: Owner, TotalFunds: 500}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		st, err := tx.GetState(ctx)
		if err != nil {
			return err
		}
		if err := st.Debit(400); err != nil {
			return err
		}
		if err := tx.PutState(ctx, st); err != nil {
			return err
		}
		if err := tx.CreateClaim(ctx, newClaim(1, 1, Alice)); err != nil {
			return err
		}
		if err := tx.RecordMovement(ctx, fund.NewMovement(fund.KindPayout, Alice, 400, 100, epoch)); err != nil {
			return err
		}

		// Writes are visible inside the unit of work.
		inner, err := tx.GetState(ctx)
		if err != nil {
			return err
		}
		if inner.TotalFunds != 100 {
			t.Errorf("inside tx: got funds=%d, want 100", inner.TotalFunds)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Atomic: got %v, want %v", err, boom)
	}

	st, err := s.GetState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalFunds != 500 {
		t.Errorf("TotalFunds after rollback: got %d, want 500", st.TotalFunds)
	}
	if _, err := s.GetClaim(ctx, 1); !errors.Is(err, reimburse.ErrClaimNotFound) {
		t.Errorf("claim after rollback: got %v, want %v", err, reimburse.ErrClaimNotFound)
	}
	ids, err := s.ListClaimIDs(ctx, Alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("claim ids after rollback: got %v", ids)
	}
	movements, err := s.ListMovements(ctx, fund.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(movements) != 0 {
		t.Errorf("movements after rollback: got %d", len(movements))
	}
}

func testReturnsCopies(t *testing.T, s store.Store) {
	ctx := context.Background()

	if err := s.CreateSubscription(ctx, newSubscription(1, Alice)); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetSubscription(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	got.IsActive = false
	got.CoverageLimit = 1

	again, err := s.GetSubscription(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !again.IsActive || again.CoverageLimit != 1000 {
		t.Errorf("stored subscription changed through returned copy: %+v", again)
	}
}
