// Package payout moves funds out of the ledger pool to an external account.
//
// The ledger calls a Transferer as the last step of a unit of work: if the
// transfer fails nothing is committed, so a Transferer must not report an
// error after value has left.
package payout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/xraph/reimburse/types"
)

// Transferer sends amount to an account and returns a reference that
// identifies the transfer in the external system.
//
// Transfer may read ledger state; reads see the state from before the unit
// of work that is paying out. It must not call ledger operations that
// mutate state, which wait for the unit of work to finish.
type Transferer interface {
	Transfer(ctx context.Context, to types.Account, amount types.Amount, memo string) (reference string, err error)
}

// Func adapts an ordinary function to a Transferer.
type Func func(ctx context.Context, to types.Account, amount types.Amount, memo string) (string, error)

// Transfer calls f.
func (f Func) Transfer(ctx context.Context, to types.Account, amount types.Amount, memo string) (string, error) {
	return f(ctx, to, amount, memo)
}

// ErrRejected is returned by Wallet when a recipient has been blocked.
var ErrRejected = errors.New("payout: recipient rejected transfer")

// Record is one completed Wallet transfer.
type Record struct {
	Reference string
	To        types.Account
	Amount    types.Amount
	Memo      string
}

// Wallet is an in-process Transferer that credits recipient balances in
// memory. It backs the development server and tests.
type Wallet struct {
	mu       sync.Mutex
	balances map[types.Account]types.Amount
	history  []Record
	blocked  map[types.Account]bool
	failNext error
}

var _ Transferer = (*Wallet)(nil)

func NewWallet() *Wallet {
	return &Wallet{
		balances: make(map[types.Account]types.Amount),
		blocked:  make(map[types.Account]bool),
	}
}

// Transfer credits to with amount.
func (w *Wallet) Transfer(ctx context.Context, to types.Account, amount types.Amount, memo string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.failNext; err != nil {
		w.failNext = nil
		return "", err
	}
	if to.IsZero() {
		return "", fmt.Errorf("payout: %w", types.ErrInvalidAccount)
	}
	if w.blocked[to] {
		return "", fmt.Errorf("%w: %s", ErrRejected, to)
	}

	balance, err := w.balances[to].CheckedAdd(amount)
	if err != nil {
		return "", fmt.Errorf("payout: credit %s: %w", to, err)
	}
	w.balances[to] = balance

	ref := "wallet-" + uuid.NewString()
	w.history = append(w.history, Record{Reference: ref, To: to, Amount: amount, Memo: memo})
	return ref, nil
}

// Balance returns everything transferred to account so far.
func (w *Wallet) Balance(account types.Account) types.Amount {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[account]
}

// History returns the completed transfers in order.
func (w *Wallet) History() []Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Record(nil), w.history...)
}

// FailNext makes the next Transfer return err without moving anything.
func (w *Wallet) FailNext(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failNext = err
}

// Block makes every transfer to account fail with ErrRejected until
// Unblock is called.
func (w *Wallet) Block(account types.Account) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocked[account] = true
}

func (w *Wallet) Unblock(account types.Account) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.blocked, account)
}
