package postgres

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/id"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

// Table models mirror the columns one to one; their field order is the
// SELECT column order. Amounts travel as BIGINT.

// ==================== State models ====================

type stateModel struct {
	grove.BaseModel `grove:"table:reimburse_state"`

	ID                 int16     `grove:"id,pk"`
	Owner              string    `grove:"owner"`
	TotalFunds         int64     `grove:"total_funds"`
	ClaimProcessingFee int64     `grove:"claim_processing_fee"`
	LastSubscriptionID int64     `grove:"last_subscription_id"`
	LastClaimID        int64     `grove:"last_claim_id"`
	CreatedAt          time.Time `grove:"created_at"`
	UpdatedAt          time.Time `grove:"updated_at"`
}

func toStateModel(st *fund.State) *stateModel {
	return &stateModel{
		ID:                 1,
		Owner:              st.Owner.String(),
		TotalFunds:         st.TotalFunds.Int64(),
		ClaimProcessingFee: st.ClaimProcessingFee.Int64(),
		LastSubscriptionID: int64(st.LastSubscriptionID),
		LastClaimID:        int64(st.LastClaimID),
		CreatedAt:          st.CreatedAt,
		UpdatedAt:          st.UpdatedAt,
	}
}

func fromStateModel(m *stateModel) (*fund.State, error) {
	owner, err := types.ParseAccount(m.Owner)
	if err != nil {
		return nil, err
	}
	total, err := types.AmountFromInt64(m.TotalFunds)
	if err != nil {
		return nil, err
	}
	fee, err := types.AmountFromInt64(m.ClaimProcessingFee)
	if err != nil {
		return nil, err
	}
	return &fund.State{
		Entity:             types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		Owner:              owner,
		TotalFunds:         total,
		ClaimProcessingFee: fee,
		LastSubscriptionID: subscription.ID(m.LastSubscriptionID),
		LastClaimID:        claim.ID(m.LastClaimID),
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:reimburse_subscriptions"`

	ID            int64      `grove:"id,pk"`
	Subscriber    string     `grove:"subscriber"`
	MonthlyFee    int64      `grove:"monthly_fee"`
	CoverageLimit int64      `grove:"coverage_limit"`
	Deductible    int64      `grove:"deductible"`
	StartDate     time.Time  `grove:"start_date"`
	EndDate       time.Time  `grove:"end_date"`
	IsActive      bool       `grove:"is_active"`
	CanceledAt    *time.Time `grove:"canceled_at"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:            int64(s.ID),
		Subscriber:    s.Subscriber.String(),
		MonthlyFee:    s.MonthlyFee.Int64(),
		CoverageLimit: s.CoverageLimit.Int64(),
		Deductible:    s.Deductible.Int64(),
		StartDate:     s.StartDate,
		EndDate:       s.EndDate,
		IsActive:      s.IsActive,
		CanceledAt:    s.CanceledAt,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subscriber, err := types.ParseAccount(m.Subscriber)
	if err != nil {
		return nil, err
	}
	amounts, err := amountsFromInt64(m.MonthlyFee, m.CoverageLimit, m.Deductible)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity:        types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:            subscription.ID(m.ID),
		Subscriber:    subscriber,
		MonthlyFee:    amounts[0],
		CoverageLimit: amounts[1],
		Deductible:    amounts[2],
		StartDate:     m.StartDate.UTC(),
		EndDate:       m.EndDate.UTC(),
		IsActive:      m.IsActive,
		CanceledAt:    utcPtr(m.CanceledAt),
	}, nil
}

// ==================== Claim models ====================

type claimModel struct {
	grove.BaseModel `grove:"table:reimburse_claims"`

	ID                int64      `grove:"id,pk"`
	Claimant          string     `grove:"claimant"`
	SubscriptionID    int64      `grove:"subscription_id"`
	Amount            int64      `grove:"amount"`
	DocumentReference string     `grove:"document_reference"`
	Status            int16      `grove:"status"`
	RejectionReason   string     `grove:"rejection_reason"`
	ProcessingFee     int64      `grove:"processing_fee"`
	DecidedAt         *time.Time `grove:"decided_at"`
	PaidAt            *time.Time `grove:"paid_at"`
	CreatedAt         time.Time  `grove:"created_at"`
	UpdatedAt         time.Time  `grove:"updated_at"`
}

func toClaimModel(c *claim.Claim) *claimModel {
	return &claimModel{
		ID:                int64(c.ID),
		Claimant:          c.Claimant.String(),
		SubscriptionID:    int64(c.SubscriptionID),
		Amount:            c.Amount.Int64(),
		DocumentReference: c.DocumentReference,
		Status:            int16(c.Status),
		RejectionReason:   c.RejectionReason,
		ProcessingFee:     c.ProcessingFee.Int64(),
		DecidedAt:         c.DecidedAt,
		PaidAt:            c.PaidAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func fromClaimModel(m *claimModel) (*claim.Claim, error) {
	claimant, err := types.ParseAccount(m.Claimant)
	if err != nil {
		return nil, err
	}
	amounts, err := amountsFromInt64(m.Amount, m.ProcessingFee)
	if err != nil {
		return nil, err
	}
	status := claim.Status(m.Status) //nolint:gosec // status column is CHECK-constrained to 0..4
	if m.Status < 0 || !status.Valid() {
		return nil, fmt.Errorf("reimburse/postgres: claim %d has unknown status %d", m.ID, m.Status)
	}
	return &claim.Claim{
		Entity:            types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                claim.ID(m.ID),
		Claimant:          claimant,
		SubscriptionID:    subscription.ID(m.SubscriptionID),
		Amount:            amounts[0],
		DocumentReference: m.DocumentReference,
		Status:            status,
		RejectionReason:   m.RejectionReason,
		ProcessingFee:     amounts[1],
		DecidedAt:         utcPtr(m.DecidedAt),
		PaidAt:            utcPtr(m.PaidAt),
	}, nil
}

// ==================== Verification models ====================

type verificationModel struct {
	grove.BaseModel `grove:"table:reimburse_verifications"`

	ClaimID        int64     `grove:"claim_id,pk"`
	IsVerified     bool      `grove:"is_verified"`
	VerifiedAmount int64     `grove:"verified_amount"`
	Verifier       string    `grove:"verifier"`
	VerifiedAt     time.Time `grove:"verified_at"`
}

func toVerificationModel(v *verification.Verification) *verificationModel {
	return &verificationModel{
		ClaimID:        int64(v.ClaimID),
		IsVerified:     v.IsVerified,
		VerifiedAmount: v.VerifiedAmount.Int64(),
		Verifier:       v.Verifier.String(),
		VerifiedAt:     v.VerifiedAt,
	}
}

func fromVerificationModel(m *verificationModel) (*verification.Verification, error) {
	verifier, err := types.ParseAccount(m.Verifier)
	if err != nil {
		return nil, err
	}
	amount, err := types.AmountFromInt64(m.VerifiedAmount)
	if err != nil {
		return nil, err
	}
	return &verification.Verification{
		ClaimID:        claim.ID(m.ClaimID),
		IsVerified:     m.IsVerified,
		VerifiedAmount: amount,
		Verifier:       verifier,
		VerifiedAt:     m.VerifiedAt.UTC(),
	}, nil
}

// ==================== Movement models ====================

type movementModel struct {
	grove.BaseModel `grove:"table:reimburse_movements"`

	Seq            int64     `grove:"seq,pk,autoincrement"`
	ID             string    `grove:"id"`
	Kind           string    `grove:"kind"`
	Account        string    `grove:"account"`
	Amount         int64     `grove:"amount"`
	BalanceAfter   int64     `grove:"balance_after"`
	SubscriptionID int64     `grove:"subscription_id"`
	ClaimID        int64     `grove:"claim_id"`
	Reference      string    `grove:"reference"`
	CreatedAt      time.Time `grove:"created_at"`
}

func toMovementModel(mv *fund.Movement) *movementModel {
	return &movementModel{
		ID:             mv.ID.String(),
		Kind:           string(mv.Kind),
		Account:        mv.Account.String(),
		Amount:         mv.Amount.Int64(),
		BalanceAfter:   mv.BalanceAfter.Int64(),
		SubscriptionID: int64(mv.SubscriptionID),
		ClaimID:        int64(mv.ClaimID),
		Reference:      mv.Reference,
		CreatedAt:      mv.CreatedAt,
	}
}

func fromMovementModel(m *movementModel) (*fund.Movement, error) {
	movementID, err := id.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	account, err := types.ParseAccount(m.Account)
	if err != nil {
		return nil, err
	}
	amounts, err := amountsFromInt64(m.Amount, m.BalanceAfter)
	if err != nil {
		return nil, err
	}
	return &fund.Movement{
		ID:             movementID,
		Kind:           fund.Kind(m.Kind),
		Account:        account,
		Amount:         amounts[0],
		BalanceAfter:   amounts[1],
		SubscriptionID: subscription.ID(m.SubscriptionID),
		ClaimID:        claim.ID(m.ClaimID),
		Reference:      m.Reference,
		CreatedAt:      m.CreatedAt.UTC(),
	}, nil
}

// ==================== Helpers ====================

func amountsFromInt64(vs ...int64) ([]types.Amount, error) {
	out := make([]types.Amount, len(vs))
	for i, v := range vs {
		a, err := types.AmountFromInt64(v)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
