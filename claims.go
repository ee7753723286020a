package reimburse

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/id"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

// Payout is the receipt of a paid claim.
type Payout struct {
	ClaimID    claim.ID      `json:"claim_id"`
	Claimant   types.Account `json:"claimant"`
	Amount     types.Amount  `json:"amount"`
	Reference  string        `json:"reference"`
	MovementID id.ID         `json:"movement_id"`
}

// ──────────────────────────────────────────────────
// Claim Submission
// ──────────────────────────────────────────────────

// SubmitClaim files a claim against one of caller's subscriptions. The
// processing fee is kept by the pool whatever the outcome of the claim.
func (l *Ledger) SubmitClaim(ctx context.Context, caller types.Account, subID subscription.ID, amount types.Amount, documentReference string, fee types.Amount) (*claim.Claim, error) {
	if err := checkAmounts(
		namedAmount{"amount", amount},
		namedAmount{"fee", fee},
	); err != nil {
		return nil, err
	}

	var c *claim.Claim
	err := l.atomic(ctx, func(ctx context.Context, tx store.Tx, st *fund.State) error {
		sub, err := tx.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		if !sub.Subscriber.Equal(caller) {
			return ErrNotClaimOwner
		}

		now := l.now()
		if !sub.Covering(now) {
			return ErrSubscriptionInactive
		}
		if fee < st.ClaimProcessingFee {
			return ErrInsufficientProcessingFee
		}
		if sub.ExceedsCoverage(amount) {
			return ErrAmountExceedsCoverageLimit
		}
		if sub.BelowDeductible(amount) {
			return ErrAmountBelowDeductible
		}

		c = &claim.Claim{
			Entity:            types.NewEntity(now),
			ID:                st.NextClaimID(),
			Claimant:          caller,
			SubscriptionID:    sub.ID,
			Amount:            amount,
			DocumentReference: documentReference,
			Status:            claim.StatusPending,
			ProcessingFee:     fee,
		}
		if err := tx.CreateClaim(ctx, c); err != nil {
			return fmt.Errorf("create claim %s: %w", c.ID, err)
		}

		m, err := l.credit(st, fund.KindClaimFee, caller, fee)
		if err != nil {
			return err
		}
		m.SubscriptionID = sub.ID
		m.ClaimID = c.ID
		return tx.RecordMovement(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("claim submitted",
		"claim_id", c.ID,
		"subscription_id", subID,
		"claimant", caller,
		"amount", amount,
		"fee", fee,
	)
	l.plugins.EmitClaimSubmitted(ctx, c)
	return c, nil
}

// ──────────────────────────────────────────────────
// Claim Verification
// ──────────────────────────────────────────────────

// BeginReview marks a pending claim as under review. Approval and rejection
// work from either state, so this step is optional.
func (l *Ledger) BeginReview(ctx context.Context, caller types.Account, claimID claim.ID) (*claim.Claim, error) {
	var c *claim.Claim
	err := l.atomic(ctx, func(ctx context.Context, tx store.Tx, st *fund.State) error {
		if err := l.requireVerifier(st.Owner, caller); err != nil {
			return err
		}
		var err error
		c, err = tx.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if c.Status != claim.StatusPending {
			return ErrClaimNotPending
		}

		c.Status = claim.StatusUnderReview
		c.Touch(l.now())
		return tx.UpdateClaim(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("claim under review", "claim_id", c.ID, "verifier", caller)
	return c, nil
}

// ApproveClaim approves a claim for verifiedAmount, which may be less than
// the amount claimed.
func (l *Ledger) ApproveClaim(ctx context.Context, caller types.Account, claimID claim.ID, verifiedAmount types.Amount) (*claim.Claim, *verification.Verification, error) {
	if !verifiedAmount.Valid() {
		return nil, nil, invalidAmount("verified_amount", verifiedAmount)
	}

	var (
		c *claim.Claim
		v *verification.Verification
	)
	err := l.atomic(ctx, func(ctx context.Context, tx store.Tx, st *fund.State) error {
		if err := l.requireVerifier(st.Owner, caller); err != nil {
			return err
		}
		var err error
		c, err = tx.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if !c.Status.CanTransition(claim.StatusApproved) {
			return ErrClaimNotPending
		}
		if verifiedAmount > c.Amount {
			return ErrVerifiedAmountExceedsClaim
		}

		now := l.now()
		v = &verification.Verification{
			ClaimID:        c.ID,
			IsVerified:     true,
			VerifiedAmount: verifiedAmount,
			Verifier:       caller,
			VerifiedAt:     now,
		}
		if err := tx.CreateVerification(ctx, v); err != nil {
			return fmt.Errorf("create verification for claim %s: %w", c.ID, err)
		}

		c.Status = claim.StatusApproved
		c.DecidedAt = &now
		c.Touch(now)
		return tx.UpdateClaim(ctx, c)
	})
	if err != nil {
		return nil, nil, err
	}

	l.logger.Info("claim approved",
		"claim_id", c.ID,
		"verifier", caller,
		"amount", c.Amount,
		"verified_amount", verifiedAmount,
		"partial", v.Partial(c),
	)
	l.plugins.EmitClaimApproved(ctx, c, v)
	return c, v, nil
}

// RejectClaim closes a claim without payment. The processing fee is not
// refunded.
func (l *Ledger) RejectClaim(ctx context.Context, caller types.Account, claimID claim.ID, reason string) (*claim.Claim, error) {
	var c *claim.Claim
	err := l.atomic(ctx, func(ctx context.Context, tx store.Tx, st *fund.State) error {
		if err := l.requireVerifier(st.Owner, caller); err != nil {
			return err
		}
		var err error
		c, err = tx.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if !c.Status.CanTransition(claim.StatusRejected) {
			return ErrClaimNotPending
		}

		now := l.now()
		c.Status = claim.StatusRejected
		c.RejectionReason = reason
		c.DecidedAt = &now
		c.Touch(now)
		return tx.UpdateClaim(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("claim rejected",
		"claim_id", c.ID,
		"verifier", caller,
		"reason", reason,
	)
	l.plugins.EmitClaimRejected(ctx, c)
	return c, nil
}

// ──────────────────────────────────────────────────
// Payment Processing
// ──────────────────────────────────────────────────

// ProcessPayment pays the verified amount of an approved claim to the
// claimant. The transfer is the last step of the unit of work: if it fails
// nothing is committed and the claim stays approved, so the payment can be
// retried.
func (l *Ledger) ProcessPayment(ctx context.Context, caller types.Account, claimID claim.ID) (*Payout, error) {
	var (
		c           *claim.Claim
		m           *fund.Movement
		amount      types.Amount
		transferred bool
		transferErr error
	)
	err := l.atomic(ctx, func(ctx context.Context, tx store.Tx, st *fund.State) error {
		if err := l.requireVerifier(st.Owner, caller); err != nil {
			return err
		}
		var err error
		c, err = tx.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if c.Status != claim.StatusApproved {
			return ErrClaimNotApproved
		}
		v, err := tx.GetVerification(ctx, c.ID)
		if err != nil {
			return err
		}
		amount = v.VerifiedAmount

		t, err := l.payoutTransferer()
		if err != nil {
			return err
		}

		m, err = l.debit(st, fund.KindPayout, c.Claimant, amount)
		if err != nil {
			return err
		}
		m.SubscriptionID = c.SubscriptionID
		m.ClaimID = c.ID

		now := l.now()
		c.Status = claim.StatusPaid
		c.PaidAt = &now
		c.Touch(now)
		if err := tx.UpdateClaim(ctx, c); err != nil {
			return err
		}

		ref, err := t.Transfer(ctx, c.Claimant, amount, "claim "+c.ID.String())
		if err != nil {
			transferErr = err
			return fmt.Errorf("%w: %w", ErrPayoutTransferFailed, err)
		}
		transferred = true
		m.Reference = ref
		return tx.RecordMovement(ctx, m)
	})
	if err != nil {
		switch {
		case transferErr != nil:
			l.logger.Warn("payout transfer failed",
				"claim_id", claimID,
				"amount", amount,
				"error", transferErr,
			)
			c.Status = claim.StatusApproved
			c.PaidAt = nil
			l.plugins.EmitPayoutFailed(ctx, c, amount, transferErr)
		case transferred:
			l.logger.Error("payout transferred but not recorded",
				"claim_id", claimID,
				"amount", amount,
				"reference", m.Reference,
				"error", err,
			)
		}
		return nil, err
	}

	l.logger.Info("claim paid",
		"claim_id", c.ID,
		"claimant", c.Claimant,
		"amount", amount,
		"reference", m.Reference,
	)
	l.plugins.EmitClaimPaid(ctx, c, m)

	return &Payout{
		ClaimID:    c.ID,
		Claimant:   c.Claimant,
		Amount:     amount,
		Reference:  m.Reference,
		MovementID: m.ID,
	}, nil
}

// ──────────────────────────────────────────────────
// Claim Queries
// ──────────────────────────────────────────────────

// GetClaim retrieves a claim by ID.
func (l *Ledger) GetClaim(ctx context.Context, claimID claim.ID) (*claim.Claim, error) {
	return l.store.GetClaim(ctx, claimID)
}

// GetVerification retrieves the verification of an approved or paid claim.
// Claims that were never approved have none.
func (l *Ledger) GetVerification(ctx context.Context, claimID claim.ID) (*verification.Verification, error) {
	v, err := l.store.GetVerification(ctx, claimID)
	if errors.Is(err, ErrVerificationNotFound) {
		if _, cerr := l.store.GetClaim(ctx, claimID); cerr != nil {
			return nil, cerr
		}
	}
	return v, err
}

// GetUserClaims returns the ids of every claim the account filed, oldest
// first.
func (l *Ledger) GetUserClaims(ctx context.Context, account types.Account) ([]claim.ID, error) {
	return l.store.ListClaimIDs(ctx, account)
}

// ListClaims returns claims in id order, optionally filtered by status.
func (l *Ledger) ListClaims(ctx context.Context, opts claim.ListOpts) ([]*claim.Claim, error) {
	return l.store.ListClaims(ctx, opts)
}

// ClaimStats summarizes the claims filed by account: how many are open,
// decided and paid, the total reimbursed, and the share of decided claims
// that were approved.
func (l *Ledger) ClaimStats(ctx context.Context, account types.Account) (*claim.Stats, error) {
	ids, err := l.store.ListClaimIDs(ctx, account)
	if err != nil {
		return nil, err
	}

	stats := &claim.Stats{}
	for _, claimID := range ids {
		c, err := l.store.GetClaim(ctx, claimID)
		if err != nil {
			return nil, err
		}
		var paid types.Amount
		if c.Status == claim.StatusPaid {
			v, err := l.store.GetVerification(ctx, claimID)
			if err != nil {
				return nil, err
			}
			paid = v.VerifiedAmount
		}
		if err := stats.Add(c, paid); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
