package reimburse

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/payout"
	"github.com/xraph/reimburse/plugin"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
)

// DefaultClaimProcessingFee is 0.001 in DefaultDecimals units.
const DefaultClaimProcessingFee types.Amount = 1_000

// Ledger is the reimbursement engine: subscriptions, claims, verification,
// payment and custody of the pooled funds.
//
// Every mutating operation runs as one atomic unit of work against the
// store and is serialized by the engine, so concurrent callers observe a
// single total order. Reads go straight to the store.
type Ledger struct {
	store      store.Store
	plugins    *plugin.Registry
	logger     *slog.Logger
	access     AccessPolicy
	transferer payout.Transferer
	clock      func() time.Time

	mu sync.Mutex

	// Applied by Start only when the store holds no state yet.
	owner              types.Account
	claimProcessingFee types.Amount
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:              s,
		plugins:            plugin.NewRegistry(),
		logger:             slog.Default(),
		access:             OwnerPolicy{},
		clock:              time.Now,
		claimProcessingFee: DefaultClaimProcessingFee,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithOwner sets the owner recorded when the ledger is first started.
// An existing ledger keeps its owner; use TransferOwnership to change it.
func WithOwner(owner types.Account) Option {
	return func(l *Ledger) {
		l.owner = owner
	}
}

// WithClaimProcessingFee sets the fee recorded when the ledger is first
// started. An existing ledger keeps its fee.
func WithClaimProcessingFee(fee types.Amount) Option {
	return func(l *Ledger) {
		l.claimProcessingFee = fee
	}
}

// WithAccessPolicy replaces the verifier policy.
func WithAccessPolicy(p AccessPolicy) Option {
	return func(l *Ledger) {
		l.access = p
	}
}

// WithVerifiers delegates verification to the given accounts in addition
// to the owner.
func WithVerifiers(verifiers ...types.Account) Option {
	return func(l *Ledger) {
		l.access = NewVerifierSet(verifiers...)
	}
}

// WithTransferer sets how payouts and withdrawals leave the pool.
func WithTransferer(t payout.Transferer) Option {
	return func(l *Ledger) {
		l.transferer = t
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = now
	}
}

// Start migrates the store, records the initial state on first run and
// initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	st, err := l.bootstrap(ctx)
	if err != nil {
		return err
	}

	if l.transferer == nil {
		if providers := l.plugins.PayoutProviders(); len(providers) > 0 {
			l.transferer = providers[0].Transferer()
		}
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("reimburse ledger started",
		"owner", st.Owner,
		"total_funds", st.TotalFunds,
		"claim_processing_fee", st.ClaimProcessingFee,
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop notifies plugins and closes the store.
func (l *Ledger) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.plugins.EmitShutdown(context.Background())
	l.logger.Info("reimburse ledger stopped")

	return l.store.Close()
}

// bootstrap returns the stored state, creating it from the configured
// owner and fee if the store is empty.
func (l *Ledger) bootstrap(ctx context.Context) (*fund.State, error) {
	var st *fund.State
	err := l.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetState(ctx)
		if err == nil {
			st = existing
			return nil
		}
		if !errors.Is(err, ErrStoreNotReady) {
			return err
		}

		if l.owner.IsZero() {
			return ErrInvalidOwner
		}
		if !l.claimProcessingFee.Valid() {
			return invalidAmount("claim_processing_fee", l.claimProcessingFee)
		}
		st = &fund.State{
			Entity:             types.NewEntity(l.now()),
			Owner:              l.owner,
			ClaimProcessingFee: l.claimProcessingFee,
		}
		return tx.PutState(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Store returns the underlying store.
func (l *Ledger) Store() store.Store { return l.store }

// MinimumSubscriptionDuration is the coverage bought by one payment.
func (l *Ledger) MinimumSubscriptionDuration() time.Duration { return subscription.Period }

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (l *Ledger) now() time.Time { return l.clock().UTC() }

// atomic serializes fn with every other mutating operation and runs it as
// one unit of work. fn receives the current state; a state it modifies is
// written back before commit.
func (l *Ledger) atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx, st *fund.State) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		st, err := tx.GetState(ctx)
		if err != nil {
			return err
		}
		before := *st

		if err := fn(ctx, tx, st); err != nil {
			return err
		}

		if *st != before {
			st.Touch(l.now())
			return tx.PutState(ctx, st)
		}
		return nil
	})
}

// credit adds amount to the pool and returns the journal entry for it.
func (l *Ledger) credit(st *fund.State, kind fund.Kind, account types.Account, amount types.Amount) (*fund.Movement, error) {
	if err := st.Credit(amount); err != nil {
		return nil, err
	}
	return fund.NewMovement(kind, account, amount, st.TotalFunds, l.now()), nil
}

// debit removes amount from the pool after the sufficiency check.
func (l *Ledger) debit(st *fund.State, kind fund.Kind, account types.Account, amount types.Amount) (*fund.Movement, error) {
	if st.TotalFunds < amount {
		return nil, ErrInsufficientLedgerFunds
	}
	if err := st.Debit(amount); err != nil {
		return nil, err
	}
	return fund.NewMovement(kind, account, amount, st.TotalFunds, l.now()), nil
}

type namedAmount struct {
	field  string
	amount types.Amount
}

// checkAmounts rejects the first amount above MaxAmount.
func checkAmounts(amounts ...namedAmount) error {
	for _, a := range amounts {
		if !a.amount.Valid() {
			return invalidAmount(a.field, a.amount)
		}
	}
	return nil
}

func (l *Ledger) payoutTransferer() (payout.Transferer, error) {
	if l.transferer == nil {
		return nil, errNoTransferer
	}
	return l.transferer, nil
}

var errNoTransferer = errors.New("reimburse: no payout transferer configured")
