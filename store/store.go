package store

import (
	"context"

	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

// Tx is the set of entity operations available both directly on a Store and
// inside an Atomic unit of work. Methods are declared explicitly instead of
// embedding per-entity interfaces to avoid naming conflicts.
//
// Entities returned by a Tx are copies; mutating them has no effect until
// they are written back.
type Tx interface {
	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error
	ListSubscriptionIDs(ctx context.Context, subscriber types.Account) ([]subscription.ID, error)

	// Claim methods
	CreateClaim(ctx context.Context, c *claim.Claim) error
	GetClaim(ctx context.Context, claimID claim.ID) (*claim.Claim, error)
	UpdateClaim(ctx context.Context, c *claim.Claim) error
	ListClaimIDs(ctx context.Context, claimant types.Account) ([]claim.ID, error)
	ListClaims(ctx context.Context, opts claim.ListOpts) ([]*claim.Claim, error)

	// Verification methods
	CreateVerification(ctx context.Context, v *verification.Verification) error
	GetVerification(ctx context.Context, claimID claim.ID) (*verification.Verification, error)

	// Fund methods
	GetState(ctx context.Context) (*fund.State, error)
	PutState(ctx context.Context, s *fund.State) error
	RecordMovement(ctx context.Context, m *fund.Movement) error
	ListMovements(ctx context.Context, opts fund.ListOpts) ([]*fund.Movement, error)
}

// Store is the unified storage interface for the reimbursement ledger.
type Store interface {
	Tx

	// Atomic runs fn as a single unit of work. Every write fn makes through
	// tx is committed together when fn returns nil, and discarded otherwise.
	// fn must use the context it is given, not the outer one.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
