// Package fund models the pooled funds held by the ledger: the ledger-wide
// state row and the journal of every movement in and out of the pool.
package fund

import (
	"time"

	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/id"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
)

// State is the single ledger-wide record. The sequence counters live here so
// that allocating an id and committing the entity happen in one unit of work.
type State struct {
	types.Entity
	Owner              types.Account   `json:"owner"`
	TotalFunds         types.Amount    `json:"total_funds"`
	ClaimProcessingFee types.Amount    `json:"claim_processing_fee"`
	LastSubscriptionID subscription.ID `json:"last_subscription_id"`
	LastClaimID        claim.ID        `json:"last_claim_id"`
}

// NextSubscriptionID advances and returns the subscription counter.
func (s *State) NextSubscriptionID() subscription.ID {
	s.LastSubscriptionID++
	return s.LastSubscriptionID
}

// NextClaimID advances and returns the claim counter.
func (s *State) NextClaimID() claim.ID {
	s.LastClaimID++
	return s.LastClaimID
}

// Credit adds amount to the pool.
func (s *State) Credit(amount types.Amount) error {
	total, err := s.TotalFunds.CheckedAdd(amount)
	if err != nil {
		return err
	}
	s.TotalFunds = total
	return nil
}

// Debit removes amount from the pool. The caller checks sufficiency first so
// it can report the domain error; Debit still refuses to go negative.
func (s *State) Debit(amount types.Amount) error {
	total, err := s.TotalFunds.CheckedSub(amount)
	if err != nil {
		return err
	}
	s.TotalFunds = total
	return nil
}

type Kind string

const (
	KindPremium    Kind = "premium"
	KindRenewal    Kind = "renewal"
	KindClaimFee   Kind = "claim_fee"
	KindDeposit    Kind = "deposit"
	KindPayout     Kind = "payout"
	KindWithdrawal Kind = "withdrawal"
)

// Inflow reports whether the kind increases the pool.
func (k Kind) Inflow() bool {
	switch k {
	case KindPremium, KindRenewal, KindClaimFee, KindDeposit:
		return true
	}
	return false
}

// Prefix returns the id prefix used for movements of this kind.
func (k Kind) Prefix() id.Prefix {
	switch k {
	case KindPremium:
		return id.PrefixPremium
	case KindRenewal:
		return id.PrefixRenewal
	case KindClaimFee:
		return id.PrefixClaimFee
	case KindDeposit:
		return id.PrefixDeposit
	case KindPayout:
		return id.PrefixPayout
	case KindWithdrawal:
		return id.PrefixWithdrawal
	}
	return ""
}

// Movement is one journal entry. BalanceAfter is TotalFunds once the movement
// was applied.
type Movement struct {
	ID             id.ID           `json:"id"`
	Kind           Kind            `json:"kind"`
	Account        types.Account   `json:"account"`
	Amount         types.Amount    `json:"amount"`
	BalanceAfter   types.Amount    `json:"balance_after"`
	SubscriptionID subscription.ID `json:"subscription_id,omitempty"`
	ClaimID        claim.ID        `json:"claim_id,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewMovement stamps a movement of kind with a fresh id.
func NewMovement(kind Kind, account types.Account, amount, balanceAfter types.Amount, now time.Time) *Movement {
	return &Movement{
		ID:           id.New(kind.Prefix()),
		Kind:         kind,
		Account:      account,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		CreatedAt:    now.UTC(),
	}
}

// ListOpts filters the journal. Zero values mean "any".
type ListOpts struct {
	Account types.Account
	Kind    Kind
	Limit   int
	Offset  int
}

// Matches reports whether m passes the filter.
func (o ListOpts) Matches(m *Movement) bool {
	if !o.Account.IsZero() && !o.Account.Equal(m.Account) {
		return false
	}
	return o.Kind == "" || o.Kind == m.Kind
}
