package reimburse

import (
	"context"
	"fmt"

	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/types"
)

// ──────────────────────────────────────────────────
// Fund Custody
// ──────────────────────────────────────────────────

// AddFunds deposits amount into the pool. Anyone may contribute.
func (l *Ledger) AddFunds(ctx context.Context, caller types.Account, amount types.Amount) (*fund.Movement, error) {
	if !amount.Valid() {
		return nil, invalidAmount("amount", amount)
	}

	var m *fund.Movement
	err := l.atomic(ctx, func(ctx context.Context, tx store.Tx, st *fund.State) error {
		var err error
		m, err = l.credit(st, fund.KindDeposit, caller, amount)
		if err != nil {
			return err
		}
		return tx.RecordMovement(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("funds deposited",
		"account", caller,
		"amount", amount,
		"total_funds", m.BalanceAfter,
	)
	l.plugins.EmitFundsDeposited(ctx, m)
	return m, nil
}

// WithdrawFunds sends amount from the pool to recipient. Only the owner may
// withdraw, and nothing is committed unless the transfer succeeds.
func (l *Ledger) WithdrawFunds(ctx context.Context, caller types.Account, amount types.Amount, recipient types.Account) (*fund.Movement, error) {
	if !amount.Valid() {
		return nil, invalidAmount("amount", amount)
	}

	var (
		m           *fund.Movement
		transferred bool
	)
	err := l.atomic(ctx, func(ctx context.Context, tx store.Tx, st *fund.State) error {
		if err := requireOwner(st.Owner, caller); err != nil {
			return err
		}
		if recipient.IsZero() {
			return invalidAccount("recipient")
		}
		t, err := l.payoutTransferer()
		if err != nil {
			return err
		}

		m, err = l.debit(st, fund.KindWithdrawal, recipient, amount)
		if err != nil {
			return err
		}

		ref, err := t.Transfer(ctx, recipient, amount, "withdrawal")
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWithdrawalTransferFailed, err)
		}
		transferred = true
		m.Reference = ref
		return tx.RecordMovement(ctx, m)
	})
	if err != nil {
		if transferred {
			l.logger.Error("withdrawal transferred but not recorded",
				"recipient", recipient,
				"amount", amount,
				"reference", m.Reference,
				"error", err,
			)
		}
		return nil, err
	}

	l.logger.Info("funds withdrawn",
		"recipient", recipient,
		"amount", amount,
		"total_funds", m.BalanceAfter,
		"reference", m.Reference,
	)
	l.plugins.EmitFundsWithdrawn(ctx, m)
	return m, nil
}

// UpdateClaimProcessingFee sets the fee charged on claims submitted from now
// on. Existing claims keep the fee they paid.
func (l *Ledger) UpdateClaimProcessingFee(ctx context.Context, caller types.Account, fee types.Amount) error {
	if !fee.Valid() {
		return invalidAmount("fee", fee)
	}

	var old types.Amount
	err := l.atomic(ctx, func(_ context.Context, _ store.Tx, st *fund.State) error {
		if err := requireOwner(st.Owner, caller); err != nil {
			return err
		}
		old = st.ClaimProcessingFee
		st.ClaimProcessingFee = fee
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("claim processing fee updated", "old_fee", old, "new_fee", fee)
	l.plugins.EmitProcessingFeeUpdated(ctx, old, fee)
	return nil
}

// TransferOwnership hands the owner role to next.
func (l *Ledger) TransferOwnership(ctx context.Context, caller, next types.Account) error {
	if next.IsZero() {
		return ErrInvalidOwner
	}

	var previous types.Account
	err := l.atomic(ctx, func(_ context.Context, _ store.Tx, st *fund.State) error {
		if err := requireOwner(st.Owner, caller); err != nil {
			return err
		}
		previous = st.Owner
		st.Owner = next
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("ownership transferred", "previous", previous, "owner", next)
	l.plugins.EmitOwnershipTransferred(ctx, previous, next)
	return nil
}

// ──────────────────────────────────────────────────
// Fund Queries
// ──────────────────────────────────────────────────

// TotalFunds returns the pool balance.
func (l *Ledger) TotalFunds(ctx context.Context) (types.Amount, error) {
	st, err := l.store.GetState(ctx)
	if err != nil {
		return 0, err
	}
	return st.TotalFunds, nil
}

// ClaimProcessingFee returns the fee a new claim must carry.
func (l *Ledger) ClaimProcessingFee(ctx context.Context) (types.Amount, error) {
	st, err := l.store.GetState(ctx)
	if err != nil {
		return 0, err
	}
	return st.ClaimProcessingFee, nil
}

// Owner returns the account holding the owner role.
func (l *Ledger) Owner(ctx context.Context) (types.Account, error) {
	st, err := l.store.GetState(ctx)
	if err != nil {
		return types.ZeroAccount, err
	}
	return st.Owner, nil
}

// Movements lists the fund journal in the order movements were recorded.
func (l *Ledger) Movements(ctx context.Context, opts fund.ListOpts) ([]*fund.Movement, error) {
	return l.store.ListMovements(ctx, opts)
}
