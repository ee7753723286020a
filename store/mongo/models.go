package mongo

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

// stateDocID is the _id of the single ledger state document.
const stateDocID = "state"

// ==================== State models ====================

type stateModel struct {
	grove.BaseModel `grove:"table:reimburse_state"`

	ID                 string    `grove:"id,pk"                bson:"_id"`
	Owner              string    `grove:"owner"                bson:"owner"`
	TotalFunds         int64     `grove:"total_funds"          bson:"total_funds"`
	ClaimProcessingFee int64     `grove:"claim_processing_fee" bson:"claim_processing_fee"`
	LastSubscriptionID int64     `grove:"last_subscription_id" bson:"last_subscription_id"`
	LastClaimID        int64     `grove:"last_claim_id"        bson:"last_claim_id"`
	CreatedAt          time.Time `grove:"created_at"           bson:"created_at"`
	UpdatedAt          time.Time `grove:"updated_at"           bson:"updated_at"`
}

func toStateModel(s *fund.State) *stateModel {
	return &stateModel{
		ID:                 stateDocID,
		Owner:              s.Owner.String(),
		TotalFunds:         s.TotalFunds.Int64(),
		ClaimProcessingFee: s.ClaimProcessingFee.Int64(),
		LastSubscriptionID: int64(s.LastSubscriptionID),
		LastClaimID:        int64(s.LastClaimID),
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
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

	ID            int64      `grove:"id,pk"          bson:"_id"`
	Subscriber    string     `grove:"subscriber"     bson:"subscriber"`
	MonthlyFee    int64      `grove:"monthly_fee"    bson:"monthly_fee"`
	CoverageLimit int64      `grove:"coverage_limit" bson:"coverage_limit"`
	Deductible    int64      `grove:"deductible"     bson:"deductible"`
	StartDate     time.Time  `grove:"start_date"     bson:"start_date"`
	EndDate       time.Time  `grove:"end_date"       bson:"end_date"`
	IsActive      bool       `grove:"is_active"      bson:"is_active"`
	CanceledAt    *time.Time `grove:"canceled_at"    bson:"canceled_at,omitempty"`
	CreatedAt     time.Time  `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"     bson:"updated_at"`
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
	fee, err := types.AmountFromInt64(m.MonthlyFee)
	if err != nil {
		return nil, err
	}
	limit, err := types.AmountFromInt64(m.CoverageLimit)
	if err != nil {
		return nil, err
	}
	deductible, err := types.AmountFromInt64(m.Deductible)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity:        types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:            subscription.ID(m.ID),
		Subscriber:    subscriber,
		MonthlyFee:    fee,
		CoverageLimit: limit,
		Deductible:    deductible,
		StartDate:     m.StartDate.UTC(),
		EndDate:       m.EndDate.UTC(),
		IsActive:      m.IsActive,
		CanceledAt:    utcPtr(m.CanceledAt),
	}, nil
}

// ==================== Claim models ====================

type claimModel struct {
	grove.BaseModel `grove:"table:reimburse_claims"`

	ID                int64      `grove:"id,pk"              bson:"_id"`
	Claimant          string     `grove:"claimant"           bson:"claimant"`
	SubscriptionID    int64      `grove:"subscription_id"    bson:"subscription_id"`
	Amount            int64      `grove:"amount"             bson:"amount"`
	DocumentReference string     `grove:"document_reference" bson:"document_reference"`
	Status            int32      `grove:"status"             bson:"status"`
	RejectionReason   string     `grove:"rejection_reason"   bson:"rejection_reason,omitempty"`
	ProcessingFee     int64      `grove:"processing_fee"     bson:"processing_fee"`
	DecidedAt         *time.Time `grove:"decided_at"         bson:"decided_at,omitempty"`
	PaidAt            *time.Time `grove:"paid_at"            bson:"paid_at,omitempty"`
	CreatedAt         time.Time  `grove:"created_at"         bson:"created_at"`
	UpdatedAt         time.Time  `grove:"updated_at"         bson:"updated_at"`
}

func toClaimModel(c *claim.Claim) *claimModel {
	return &claimModel{
		ID:                int64(c.ID),
		Claimant:          c.Claimant.String(),
		SubscriptionID:    int64(c.SubscriptionID),
		Amount:            c.Amount.Int64(),
		DocumentReference: c.DocumentReference,
		Status:            int32(c.Status),
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
	amount, err := types.AmountFromInt64(m.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := types.AmountFromInt64(m.ProcessingFee)
	if err != nil {
		return nil, err
	}
	if m.Status < 0 || !claim.Status(m.Status).Valid() { //nolint:gosec // range checked
		return nil, fmt.Errorf("reimburse/mongo: claim %d has unknown status %d", m.ID, m.Status)
	}
	return &claim.Claim{
		Entity:            types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                claim.ID(m.ID),
		Claimant:          claimant,
		SubscriptionID:    subscription.ID(m.SubscriptionID),
		Amount:            amount,
		DocumentReference: m.DocumentReference,
		Status:            claim.Status(m.Status), //nolint:gosec // range checked above
		RejectionReason:   m.RejectionReason,
		ProcessingFee:     fee,
		DecidedAt:         utcPtr(m.DecidedAt),
		PaidAt:            utcPtr(m.PaidAt),
	}, nil
}

// ==================== Verification models ====================

type verificationModel struct {
	grove.BaseModel `grove:"table:reimburse_verifications"`

	ClaimID        int64     `grove:"claim_id,pk"     bson:"_id"`
	IsVerified     bool      `grove:"is_verified"     bson:"is_verified"`
	VerifiedAmount int64     `grove:"verified_amount" bson:"verified_amount"`
	Verifier       string    `grove:"verifier"        bson:"verifier"`
	VerifiedAt     time.Time `grove:"verified_at"     bson:"verified_at"`
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

	ID             string    `grove:"id,pk"           bson:"_id"`
	Seq            int64     `grove:"seq"             bson:"seq"`
	Kind           string    `grove:"kind"            bson:"kind"`
	Account        string    `grove:"account"         bson:"account"`
	Amount         int64     `grove:"amount"          bson:"amount"`
	BalanceAfter   int64     `grove:"balance_after"   bson:"balance_after"`
	SubscriptionID int64     `grove:"subscription_id" bson:"subscription_id,omitempty"`
	ClaimID        int64     `grove:"claim_id"        bson:"claim_id,omitempty"`
	Reference      string    `grove:"reference"       bson:"reference,omitempty"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
}

func toMovementModel(m *fund.Movement, seq int64) *movementModel {
	return &movementModel{
		ID:             m.ID.String(),
		Seq:            seq,
		Kind:           string(m.Kind),
		Account:        m.Account.String(),
		Amount:         m.Amount.Int64(),
		BalanceAfter:   m.BalanceAfter.Int64(),
		SubscriptionID: int64(m.SubscriptionID),
		ClaimID:        int64(m.ClaimID),
		Reference:      m.Reference,
		CreatedAt:      m.CreatedAt,
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
	amount, err := types.AmountFromInt64(m.Amount)
	if err != nil {
		return nil, err
	}
	balance, err := types.AmountFromInt64(m.BalanceAfter)
	if err != nil {
		return nil, err
	}
	return &fund.Movement{
		ID:             movementID,
		Kind:           fund.Kind(m.Kind),
		Account:        account,
		Amount:         amount,
		BalanceAfter:   balance,
		SubscriptionID: subscription.ID(m.SubscriptionID),
		ClaimID:        claim.ID(m.ClaimID),
		Reference:      m.Reference,
		CreatedAt:      m.CreatedAt.UTC(),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
