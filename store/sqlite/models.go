package sqlite

import (
	"database/sql"
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

// Timestamps are stored as RFC 3339 TEXT so they round-trip through the
// driver without relying on declared column types.

type stateModel struct {
	grove.BaseModel    `grove:"table:reimburse_state"`
	ID                 int64         `grove:"id,pk"`
	Owner              types.Account `grove:"owner,notnull"`
	TotalFunds         int64         `grove:"total_funds,notnull"`
	ClaimProcessingFee int64         `grove:"claim_processing_fee,notnull"`
	LastSubscriptionID int64         `grove:"last_subscription_id,notnull"`
	LastClaimID        int64         `grove:"last_claim_id,notnull"`
	CreatedAt          string        `grove:"created_at,notnull"`
	UpdatedAt          string        `grove:"updated_at,notnull"`
}

type subscriptionModel struct {
	grove.BaseModel `grove:"table:reimburse_subscriptions"`
	ID              int64          `grove:"id,pk"`
	Subscriber      types.Account  `grove:"subscriber,notnull"`
	MonthlyFee      int64          `grove:"monthly_fee,notnull"`
	CoverageLimit   int64          `grove:"coverage_limit,notnull"`
	Deductible      int64          `grove:"deductible,notnull"`
	StartDate       string         `grove:"start_date,notnull"`
	EndDate         string         `grove:"end_date,notnull"`
	IsActive        bool           `grove:"is_active,notnull"`
	CanceledAt      sql.NullString `grove:"canceled_at"`
	CreatedAt       string         `grove:"created_at,notnull"`
	UpdatedAt       string         `grove:"updated_at,notnull"`
}

type claimModel struct {
	grove.BaseModel   `grove:"table:reimburse_claims"`
	ID                int64          `grove:"id,pk"`
	Claimant          types.Account  `grove:"claimant,notnull"`
	SubscriptionID    int64          `grove:"subscription_id,notnull"`
	Amount            int64          `grove:"amount,notnull"`
	DocumentReference string         `grove:"document_reference,notnull"`
	Status            int64          `grove:"status,notnull"`
	RejectionReason   string         `grove:"rejection_reason,notnull"`
	ProcessingFee     int64          `grove:"processing_fee,notnull"`
	DecidedAt         sql.NullString `grove:"decided_at"`
	PaidAt            sql.NullString `grove:"paid_at"`
	CreatedAt         string         `grove:"created_at,notnull"`
	UpdatedAt         string         `grove:"updated_at,notnull"`
}

type verificationModel struct {
	grove.BaseModel `grove:"table:reimburse_verifications"`
	ClaimID         int64         `grove:"claim_id,pk"`
	IsVerified      bool          `grove:"is_verified,notnull"`
	VerifiedAmount  int64         `grove:"verified_amount,notnull"`
	Verifier        types.Account `grove:"verifier,notnull"`
	VerifiedAt      string        `grove:"verified_at,notnull"`
}

type movementModel struct {
	grove.BaseModel `grove:"table:reimburse_movements"`
	Seq             int64         `grove:"seq,pk,autoincrement"`
	ID              string        `grove:"id,notnull,unique"`
	Kind            string        `grove:"kind,notnull"`
	Account         types.Account `grove:"account,notnull"`
	Amount          int64         `grove:"amount,notnull"`
	BalanceAfter    int64         `grove:"balance_after,notnull"`
	SubscriptionID  int64         `grove:"subscription_id,notnull"`
	ClaimID         int64         `grove:"claim_id,notnull"`
	Reference       string        `grove:"reference,notnull"`
	CreatedAt       string        `grove:"created_at,notnull"`
}

// ==================== State ====================

func toStateModel(st *fund.State) *stateModel {
	return &stateModel{
		ID:                 1,
		Owner:              st.Owner,
		TotalFunds:         st.TotalFunds.Int64(),
		ClaimProcessingFee: st.ClaimProcessingFee.Int64(),
		LastSubscriptionID: int64(st.LastSubscriptionID),
		LastClaimID:        int64(st.LastClaimID),
		CreatedAt:          formatTime(st.CreatedAt),
		UpdatedAt:          formatTime(st.UpdatedAt),
	}
}

func fromStateModel(m *stateModel) (*fund.State, error) {
	st := &fund.State{
		Owner:              m.Owner,
		LastSubscriptionID: subscription.ID(m.LastSubscriptionID),
		LastClaimID:        claim.ID(m.LastClaimID),
	}
	var err error
	if st.TotalFunds, err = types.AmountFromInt64(m.TotalFunds); err != nil {
		return nil, err
	}
	if st.ClaimProcessingFee, err = types.AmountFromInt64(m.ClaimProcessingFee); err != nil {
		return nil, err
	}
	if st.CreatedAt, err = parseTime(m.CreatedAt); err != nil {
		return nil, err
	}
	if st.UpdatedAt, err = parseTime(m.UpdatedAt); err != nil {
		return nil, err
	}
	return st, nil
}

// ==================== Subscription ====================

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:            int64(s.ID),
		Subscriber:    s.Subscriber,
		MonthlyFee:    s.MonthlyFee.Int64(),
		CoverageLimit: s.CoverageLimit.Int64(),
		Deductible:    s.Deductible.Int64(),
		StartDate:     formatTime(s.StartDate),
		EndDate:       formatTime(s.EndDate),
		IsActive:      s.IsActive,
		CanceledAt:    formatNullTime(s.CanceledAt),
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	s := &subscription.Subscription{
		ID:         subscription.ID(m.ID),
		Subscriber: m.Subscriber,
		IsActive:   m.IsActive,
	}
	var err error
	if s.MonthlyFee, err = types.AmountFromInt64(m.MonthlyFee); err != nil {
		return nil, err
	}
	if s.CoverageLimit, err = types.AmountFromInt64(m.CoverageLimit); err != nil {
		return nil, err
	}
	if s.Deductible, err = types.AmountFromInt64(m.Deductible); err != nil {
		return nil, err
	}
	if s.StartDate, err = parseTime(m.StartDate); err != nil {
		return nil, err
	}
	if s.EndDate, err = parseTime(m.EndDate); err != nil {
		return nil, err
	}
	if s.CanceledAt, err = parseNullTime(m.CanceledAt); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(m.CreatedAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(m.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// ==================== Claim ====================

func toClaimModel(c *claim.Claim) *claimModel {
	return &claimModel{
		ID:                int64(c.ID),
		Claimant:          c.Claimant,
		SubscriptionID:    int64(c.SubscriptionID),
		Amount:            c.Amount.Int64(),
		DocumentReference: c.DocumentReference,
		Status:            int64(c.Status),
		RejectionReason:   c.RejectionReason,
		ProcessingFee:     c.ProcessingFee.Int64(),
		DecidedAt:         formatNullTime(c.DecidedAt),
		PaidAt:            formatNullTime(c.PaidAt),
		CreatedAt:         formatTime(c.CreatedAt),
		UpdatedAt:         formatTime(c.UpdatedAt),
	}
}

func fromClaimModel(m *claimModel) (*claim.Claim, error) {
	c := &claim.Claim{
		ID:                claim.ID(m.ID),
		Claimant:          m.Claimant,
		SubscriptionID:    subscription.ID(m.SubscriptionID),
		DocumentReference: m.DocumentReference,
		Status:            claim.Status(m.Status),
		RejectionReason:   m.RejectionReason,
	}
	if !c.Status.Valid() {
		return nil, fmt.Errorf("reimburse/sqlite: claim %d has unknown status %d", m.ID, m.Status)
	}
	var err error
	if c.Amount, err = types.AmountFromInt64(m.Amount); err != nil {
		return nil, err
	}
	if c.ProcessingFee, err = types.AmountFromInt64(m.ProcessingFee); err != nil {
		return nil, err
	}
	if c.DecidedAt, err = parseNullTime(m.DecidedAt); err != nil {
		return nil, err
	}
	if c.PaidAt, err = parseNullTime(m.PaidAt); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(m.CreatedAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(m.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// ==================== Verification ====================

func toVerificationModel(v *verification.Verification) *verificationModel {
	return &verificationModel{
		ClaimID:        int64(v.ClaimID),
		IsVerified:     v.IsVerified,
		VerifiedAmount: v.VerifiedAmount.Int64(),
		Verifier:       v.Verifier,
		VerifiedAt:     formatTime(v.VerifiedAt),
	}
}

func fromVerificationModel(m *verificationModel) (*verification.Verification, error) {
	v := &verification.Verification{
		ClaimID:    claim.ID(m.ClaimID),
		IsVerified: m.IsVerified,
		Verifier:   m.Verifier,
	}
	var err error
	if v.VerifiedAmount, err = types.AmountFromInt64(m.VerifiedAmount); err != nil {
		return nil, err
	}
	if v.VerifiedAt, err = parseTime(m.VerifiedAt); err != nil {
		return nil, err
	}
	return v, nil
}

// ==================== Movement ====================

func toMovementModel(mv *fund.Movement) *movementModel {
	return &movementModel{
		ID:             mv.ID.String(),
		Kind:           string(mv.Kind),
		Account:        mv.Account,
		Amount:         mv.Amount.Int64(),
		BalanceAfter:   mv.BalanceAfter.Int64(),
		SubscriptionID: int64(mv.SubscriptionID),
		ClaimID:        int64(mv.ClaimID),
		Reference:      mv.Reference,
		CreatedAt:      formatTime(mv.CreatedAt),
	}
}

func fromMovementModel(m *movementModel) (*fund.Movement, error) {
	movementID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("reimburse/sqlite: movement id %q: %w", m.ID, err)
	}
	mv := &fund.Movement{
		ID:             movementID,
		Kind:           fund.Kind(m.Kind),
		Account:        m.Account,
		SubscriptionID: subscription.ID(m.SubscriptionID),
		ClaimID:        claim.ID(m.ClaimID),
		Reference:      m.Reference,
	}
	if mv.Amount, err = types.AmountFromInt64(m.Amount); err != nil {
		return nil, err
	}
	if mv.BalanceAfter, err = types.AmountFromInt64(m.BalanceAfter); err != nil {
		return nil, err
	}
	if mv.CreatedAt, err = parseTime(m.CreatedAt); err != nil {
		return nil, err
	}
	return mv, nil
}

// ==================== Helpers ====================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("reimburse/sqlite: parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil //nolint:nilnil // NULL column maps to a nil pointer
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
