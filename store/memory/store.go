// Package memory is an in-process store.Store. Units of work run against a
// copy-on-write fork of the data which replaces the live snapshot only on
// success.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	reimburse "github.com/xraph/reimburse"
	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

// compile-time interface checks
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*data)(nil)
)

type Store struct {
	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[data]
}

func New() *Store {
	s := &Store{}
	s.cur.Store(newData())
	return s
}

// Atomic runs fn against a fork of the current snapshot and publishes the
// fork only if fn succeeds. Writers are serialized; readers never block, so
// fn may read through the Store while it runs and sees the last published
// snapshot.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.cur.Load().fork()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.cur.Store(work)
	return nil
}

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) read() *data {
	return s.cur.Load()
}

func (s *Store) write(ctx context.Context, fn func(d *data) error) error {
	return s.Atomic(ctx, func(_ context.Context, tx store.Tx) error {
		return fn(tx.(*data)) //nolint:forcetypeassert // Atomic always passes *data
	})
}

// Published snapshots are never mutated, so reads load the current pointer
// and need no lock.

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	return s.write(ctx, func(d *data) error { return d.CreateSubscription(ctx, sub) })
}

func (s *Store) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	return s.read().GetSubscription(ctx, subID)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	return s.write(ctx, func(d *data) error { return d.UpdateSubscription(ctx, sub) })
}

func (s *Store) ListSubscriptionIDs(ctx context.Context, subscriber types.Account) ([]subscription.ID, error) {
	return s.read().ListSubscriptionIDs(ctx, subscriber)
}

func (s *Store) CreateClaim(ctx context.Context, c *claim.Claim) error {
	return s.write(ctx, func(d *data) error { return d.CreateClaim(ctx, c) })
}

func (s *Store) GetClaim(ctx context.Context, claimID claim.ID) (*claim.Claim, error) {
	return s.read().GetClaim(ctx, claimID)
}

func (s *Store) UpdateClaim(ctx context.Context, c *claim.Claim) error {
	return s.write(ctx, func(d *data) error { return d.UpdateClaim(ctx, c) })
}

func (s *Store) ListClaimIDs(ctx context.Context, claimant types.Account) ([]claim.ID, error) {
	return s.read().ListClaimIDs(ctx, claimant)
}

func (s *Store) ListClaims(ctx context.Context, opts claim.ListOpts) ([]*claim.Claim, error) {
	return s.read().ListClaims(ctx, opts)
}

func (s *Store) CreateVerification(ctx context.Context, v *verification.Verification) error {
	return s.write(ctx, func(d *data) error { return d.CreateVerification(ctx, v) })
}

func (s *Store) GetVerification(ctx context.Context, claimID claim.ID) (*verification.Verification, error) {
	return s.read().GetVerification(ctx, claimID)
}

func (s *Store) GetState(ctx context.Context) (*fund.State, error) {
	return s.read().GetState(ctx)
}

func (s *Store) PutState(ctx context.Context, st *fund.State) error {
	return s.write(ctx, func(d *data) error { return d.PutState(ctx, st) })
}

func (s *Store) RecordMovement(ctx context.Context, m *fund.Movement) error {
	return s.write(ctx, func(d *data) error { return d.RecordMovement(ctx, m) })
}

func (s *Store) ListMovements(ctx context.Context, opts fund.ListOpts) ([]*fund.Movement, error) {
	return s.read().ListMovements(ctx, opts)
}

// ──────────────────────────────────────────────────
// Snapshot data
// ──────────────────────────────────────────────────

type data struct {
	subscriptions map[subscription.ID]subscription.Subscription
	subsByOwner   map[types.Account][]subscription.ID

	claims        map[claim.ID]claim.Claim
	claimsByOwner map[types.Account][]claim.ID
	verifications map[claim.ID]verification.Verification
	state         *fund.State

	// movements is append-only. Forks share its backing array: writers are
	// serialized and a snapshot never reads past its own length.
	movements []fund.Movement
	// movementIdx maps movement ids to positions in movements. It is shared
	// by every snapshot and only touched by writers; entries left behind by
	// a discarded fork are checked against movements before use.
	movementIdx map[string]int

	owned owned
}

// owned marks the collections a fork has already copied.
type owned uint8

const (
	ownSubscriptions owned = 1 << iota
	ownClaims
	ownVerifications
)

func newData() *data {
	return &data{
		subscriptions: make(map[subscription.ID]subscription.Subscription),
		subsByOwner:   make(map[types.Account][]subscription.ID),
		claims:        make(map[claim.ID]claim.Claim),
		claimsByOwner: make(map[types.Account][]claim.ID),
		verifications: make(map[claim.ID]verification.Verification),
		movementIdx:   make(map[string]int),
		owned:         ownSubscriptions | ownClaims | ownVerifications,
	}
}

// fork returns a snapshot that shares every collection with d. Collections
// are copied on first write. Entity values are stored by value and their
// pointer fields are replaced, never mutated in place, so sharing them is safe.
func (d *data) fork() *data {
	c := *d
	c.owned = 0
	return &c
}

func (d *data) own(o owned) {
	if d.owned&o != 0 {
		return
	}
	switch o {
	case ownSubscriptions:
		d.subscriptions = maps.Clone(d.subscriptions)
		d.subsByOwner = cloneIndex(d.subsByOwner)
	case ownClaims:
		d.claims = maps.Clone(d.claims)
		d.claimsByOwner = cloneIndex(d.claimsByOwner)
	case ownVerifications:
		d.verifications = maps.Clone(d.verifications)
	}
	d.owned |= o
}

// cloneIndex copies the map and clips every id list, so an append in the
// fork never writes into an array a published snapshot can still see.
func cloneIndex[K comparable, V any](m map[K][]V) map[K][]V {
	c := make(map[K][]V, len(m))
	for k, v := range m {
		c[k] = slices.Clip(v)
	}
	return c
}

func (d *data) CreateSubscription(_ context.Context, s *subscription.Subscription) error {
	if _, exists := d.subscriptions[s.ID]; exists {
		return reimburse.ErrAlreadyExists
	}
	d.own(ownSubscriptions)
	d.subscriptions[s.ID] = copySubscription(*s)
	d.subsByOwner[s.Subscriber] = append(d.subsByOwner[s.Subscriber], s.ID)
	return nil
}

func (d *data) GetSubscription(_ context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	s, ok := d.subscriptions[subID]
	if !ok {
		return nil, reimburse.ErrSubscriptionNotFound
	}
	out := copySubscription(s)
	return &out, nil
}

func (d *data) UpdateSubscription(_ context.Context, s *subscription.Subscription) error {
	if _, ok := d.subscriptions[s.ID]; !ok {
		return reimburse.ErrSubscriptionNotFound
	}
	d.own(ownSubscriptions)
	d.subscriptions[s.ID] = copySubscription(*s)
	return nil
}

func (d *data) ListSubscriptionIDs(_ context.Context, subscriber types.Account) ([]subscription.ID, error) {
	return append([]subscription.ID{}, d.subsByOwner[subscriber]...), nil
}

func (d *data) CreateClaim(_ context.Context, c *claim.Claim) error {
	if _, exists := d.claims[c.ID]; exists {
		return reimburse.ErrAlreadyExists
	}
	d.own(ownClaims)
	d.claims[c.ID] = copyClaim(*c)
	d.claimsByOwner[c.Claimant] = append(d.claimsByOwner[c.Claimant], c.ID)
	return nil
}

func (d *data) GetClaim(_ context.Context, claimID claim.ID) (*claim.Claim, error) {
	c, ok := d.claims[claimID]
	if !ok {
		return nil, reimburse.ErrClaimNotFound
	}
	out := copyClaim(c)
	return &out, nil
}

func (d *data) UpdateClaim(_ context.Context, c *claim.Claim) error {
	if _, ok := d.claims[c.ID]; !ok {
		return reimburse.ErrClaimNotFound
	}
	d.own(ownClaims)
	d.claims[c.ID] = copyClaim(*c)
	return nil
}

func (d *data) ListClaimIDs(_ context.Context, claimant types.Account) ([]claim.ID, error) {
	return append([]claim.ID{}, d.claimsByOwner[claimant]...), nil
}

func (d *data) ListClaims(_ context.Context, opts claim.ListOpts) ([]*claim.Claim, error) {
	ids := make([]claim.ID, 0, len(d.claims))
	for cid, c := range d.claims {
		if opts.Matches(&c) {
			ids = append(ids, cid)
		}
	}
	slices.Sort(ids)

	ids = paginate(ids, opts.Offset, opts.Limit)
	result := make([]*claim.Claim, len(ids))
	for i, cid := range ids {
		c := copyClaim(d.claims[cid])
		result[i] = &c
	}
	return result, nil
}

func (d *data) CreateVerification(_ context.Context, v *verification.Verification) error {
	if _, exists := d.verifications[v.ClaimID]; exists {
		return reimburse.ErrAlreadyExists
	}
	d.own(ownVerifications)
	d.verifications[v.ClaimID] = *v
	return nil
}

func (d *data) GetVerification(_ context.Context, claimID claim.ID) (*verification.Verification, error) {
	v, ok := d.verifications[claimID]
	if !ok {
		return nil, reimburse.ErrVerificationNotFound
	}
	return &v, nil
}

func (d *data) GetState(_ context.Context) (*fund.State, error) {
	if d.state == nil {
		return nil, reimburse.ErrStoreNotReady
	}
	st := *d.state
	return &st, nil
}

func (d *data) PutState(_ context.Context, s *fund.State) error {
	st := *s
	d.state = &st
	return nil
}

func (d *data) RecordMovement(_ context.Context, m *fund.Movement) error {
	key := m.ID.String()
	if i, ok := d.movementIdx[key]; ok && i < len(d.movements) && d.movements[i].ID.String() == key {
		return reimburse.ErrAlreadyExists
	}
	d.movementIdx[key] = len(d.movements)
	d.movements = append(d.movements, *m)
	return nil
}

func (d *data) ListMovements(_ context.Context, opts fund.ListOpts) ([]*fund.Movement, error) {
	matched := make([]*fund.Movement, 0)
	for i := range d.movements {
		if opts.Matches(&d.movements[i]) {
			m := d.movements[i]
			matched = append(matched, &m)
		}
	}
	return paginate(matched, opts.Offset, opts.Limit), nil
}

// paginate applies offset/limit. A limit of zero or less means no limit and
// a negative offset counts as zero.
func paginate[T any](items []T, offset, limit int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && limit < end-start {
		end = start + limit
	}
	return items[start:end]
}

func copySubscription(s subscription.Subscription) subscription.Subscription {
	s.CanceledAt = copyTime(s.CanceledAt)
	return s
}

func copyClaim(c claim.Claim) claim.Claim {
	c.DecidedAt = copyTime(c.DecidedAt)
	c.PaidAt = copyTime(c.PaidAt)
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
