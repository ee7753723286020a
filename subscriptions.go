package reimburse

import (
	"context"
	"fmt"

	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
)

// ──────────────────────────────────────────────────
// Subscription Management
// ──────────────────────────────────────────────────

// CreateSubscription buys one period of coverage for caller. The whole
// payment, including anything above monthlyFee, goes into the pool.
func (l *Ledger) CreateSubscription(ctx context.Context, caller types.Account, monthlyFee, coverageLimit, deductible, payment types.Amount) (*subscription.Subscription, error) {
	if caller.IsZero() {
		return nil, invalidAccount("caller")
	}
	if err := checkAmounts(
		namedAmount{"monthly_fee", monthlyFee},
		namedAmount{"coverage_limit", coverageLimit},
		namedAmount{"deductible", deductible},
		namedAmount{"payment", payment},
	); err != nil {
		return nil, err
	}
	if payment < monthlyFee {
		return nil, ErrInsufficientPayment
	}
	if !subscription.ValidTerms(coverageLimit, deductible) {
		return nil, ErrInvalidCoverageTerms
	}

	var sub *subscription.Subscription
	err := l.atomic(ctx, func(ctx context.Context, tx store.Tx, st *fund.State) error {
		now := l.now()
		sub = &subscription.Subscription{
			Entity:        types.NewEntity(now),
			ID:            st.NextSubscriptionID(),
			Subscriber:    caller,
			MonthlyFee:    monthlyFee,
			CoverageLimit: coverageLimit,
			Deductible:    deductible,
			StartDate:     now,
			EndDate:       now.Add(subscription.Period),
			IsActive:      true,
		}
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("create subscription %s: %w", sub.ID, err)
		}

		m, err := l.credit(st, fund.KindPremium, caller, payment)
		if err != nil {
			return err
		}
		m.SubscriptionID = sub.ID
		return tx.RecordMovement(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("subscription created",
		"subscription_id", sub.ID,
		"subscriber", caller,
		"monthly_fee", monthlyFee,
		"payment", payment,
		"end_date", sub.EndDate,
	)
	l.plugins.EmitSubscriptionCreated(ctx, sub)
	return sub, nil
}

// RenewSubscription extends the subscription by one period from its
// current end date, even if that date has already passed.
func (l *Ledger) RenewSubscription(ctx context.Context, caller types.Account, subID subscription.ID, payment types.Amount) (*subscription.Subscription, error) {
	if !payment.Valid() {
		return nil, invalidAmount("payment", payment)
	}

	var sub *subscription.Subscription
	err := l.atomic(ctx, func(ctx context.Context, tx store.Tx, st *fund.State) error {
		var err error
		sub, err = tx.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		if !sub.Subscriber.Equal(caller) {
			return ErrNotSubscriptionOwner
		}
		if !sub.IsActive {
			return ErrSubscriptionInactive
		}
		if payment < sub.MonthlyFee {
			return ErrInsufficientPayment
		}

		sub.Extend()
		sub.Touch(l.now())
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return err
		}

		m, err := l.credit(st, fund.KindRenewal, caller, payment)
		if err != nil {
			return err
		}
		m.SubscriptionID = sub.ID
		return tx.RecordMovement(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("subscription renewed",
		"subscription_id", sub.ID,
		"subscriber", caller,
		"payment", payment,
		"end_date", sub.EndDate,
	)
	l.plugins.EmitSubscriptionRenewed(ctx, sub, payment)
	return sub, nil
}

// CancelSubscription deactivates the subscription. Nothing is refunded.
func (l *Ledger) CancelSubscription(ctx context.Context, caller types.Account, subID subscription.ID) (*subscription.Subscription, error) {
	var sub *subscription.Subscription
	err := l.atomic(ctx, func(ctx context.Context, tx store.Tx, _ *fund.State) error {
		var err error
		sub, err = tx.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		if !sub.Subscriber.Equal(caller) {
			return ErrNotSubscriptionOwner
		}
		if !sub.IsActive {
			return ErrAlreadyCancelled
		}

		now := l.now()
		sub.IsActive = false
		sub.CanceledAt = &now
		sub.Touch(now)
		return tx.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("subscription canceled",
		"subscription_id", sub.ID,
		"subscriber", caller,
	)
	l.plugins.EmitSubscriptionCanceled(ctx, sub)
	return sub, nil
}

// GetSubscription retrieves a subscription by ID.
func (l *Ledger) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	return l.store.GetSubscription(ctx, subID)
}

// GetUserSubscriptions returns the ids of every subscription the account
// created, oldest first.
func (l *Ledger) GetUserSubscriptions(ctx context.Context, account types.Account) ([]subscription.ID, error) {
	return l.store.ListSubscriptionIDs(ctx, account)
}
