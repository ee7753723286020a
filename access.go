package reimburse

import (
	"slices"
	"sync"

	"github.com/xraph/reimburse/types"
)

// AccessPolicy decides who may act as a claim verifier. Verifiers approve,
// reject and pay claims. Custody operations (withdrawals, fee changes,
// ownership transfer) stay with the owner regardless of policy.
type AccessPolicy interface {
	CanVerify(owner, caller types.Account) bool
}

// OwnerPolicy lets only the owner verify.
type OwnerPolicy struct{}

func (OwnerPolicy) CanVerify(owner, caller types.Account) bool {
	return !caller.IsZero() && caller.Equal(owner)
}

// VerifierSet lets the owner and a mutable set of delegated accounts verify.
type VerifierSet struct {
	mu        sync.RWMutex
	verifiers map[types.Account]struct{}
}

var _ AccessPolicy = (*VerifierSet)(nil)

func NewVerifierSet(verifiers ...types.Account) *VerifierSet {
	s := &VerifierSet{verifiers: make(map[types.Account]struct{}, len(verifiers))}
	for _, v := range verifiers {
		s.Add(v)
	}
	return s
}

func (s *VerifierSet) CanVerify(owner, caller types.Account) bool {
	if (OwnerPolicy{}).CanVerify(owner, caller) {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.verifiers[caller]
	return ok
}

// Add delegates verification to account. The zero account is ignored.
func (s *VerifierSet) Add(account types.Account) {
	if account.IsZero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifiers[account] = struct{}{}
}

func (s *VerifierSet) Remove(account types.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.verifiers, account)
}

// List returns the delegated verifiers in address order.
func (s *VerifierSet) List() []types.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Account, 0, len(s.verifiers))
	for v := range s.verifiers {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b types.Account) int { return a.Address().Cmp(b.Address()) })
	return out
}

func (l *Ledger) requireVerifier(owner, caller types.Account) error {
	if !l.access.CanVerify(owner, caller) {
		return ErrNotAuthorizedVerifier
	}
	return nil
}

func requireOwner(owner, caller types.Account) error {
	if caller.IsZero() || !caller.Equal(owner) {
		return ErrNotOwner
	}
	return nil
}
