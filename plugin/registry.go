package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting an event never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onSubscriptionCreated  []OnSubscriptionCreated
	onSubscriptionRenewed  []OnSubscriptionRenewed
	onSubscriptionCanceled []OnSubscriptionCanceled
	onClaimSubmitted       []OnClaimSubmitted
	onClaimApproved        []OnClaimApproved
	onClaimRejected        []OnClaimRejected
	onClaimPaid            []OnClaimPaid
	onPayoutFailed         []OnPayoutFailed
	onFundsDeposited       []OnFundsDeposited
	onFundsWithdrawn       []OnFundsWithdrawn
	onProcessingFeeUpdated []OnProcessingFeeUpdated
	onOwnershipTransferred []OnOwnershipTransferred
	payoutProviders        []PayoutProvider
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionRenewed); ok {
		r.onSubscriptionRenewed = append(r.onSubscriptionRenewed, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnClaimSubmitted); ok {
		r.onClaimSubmitted = append(r.onClaimSubmitted, v)
	}
	if v, ok := p.(OnClaimApproved); ok {
		r.onClaimApproved = append(r.onClaimApproved, v)
	}
	if v, ok := p.(OnClaimRejected); ok {
		r.onClaimRejected = append(r.onClaimRejected, v)
	}
	if v, ok := p.(OnClaimPaid); ok {
		r.onClaimPaid = append(r.onClaimPaid, v)
	}
	if v, ok := p.(OnPayoutFailed); ok {
		r.onPayoutFailed = append(r.onPayoutFailed, v)
	}
	if v, ok := p.(OnFundsDeposited); ok {
		r.onFundsDeposited = append(r.onFundsDeposited, v)
	}
	if v, ok := p.(OnFundsWithdrawn); ok {
		r.onFundsWithdrawn = append(r.onFundsWithdrawn, v)
	}
	if v, ok := p.(OnProcessingFeeUpdated); ok {
		r.onProcessingFeeUpdated = append(r.onProcessingFeeUpdated, v)
	}
	if v, ok := p.(OnOwnershipTransferred); ok {
		r.onOwnershipTransferred = append(r.onOwnershipTransferred, v)
	}
	if v, ok := p.(PayoutProvider); ok {
		r.payoutProviders = append(r.payoutProviders, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnSubscriptionCreated", reflect.TypeFor[OnSubscriptionCreated]()},
	{"OnSubscriptionRenewed", reflect.TypeFor[OnSubscriptionRenewed]()},
	{"OnSubscriptionCanceled", reflect.TypeFor[OnSubscriptionCanceled]()},
	{"OnClaimSubmitted", reflect.TypeFor[OnClaimSubmitted]()},
	{"OnClaimApproved", reflect.TypeFor[OnClaimApproved]()},
	{"OnClaimRejected", reflect.TypeFor[OnClaimRejected]()},
	{"OnClaimPaid", reflect.TypeFor[OnClaimPaid]()},
	{"OnPayoutFailed", reflect.TypeFor[OnPayoutFailed]()},
	{"OnFundsDeposited", reflect.TypeFor[OnFundsDeposited]()},
	{"OnFundsWithdrawn", reflect.TypeFor[OnFundsWithdrawn]()},
	{"OnProcessingFeeUpdated", reflect.TypeFor[OnProcessingFeeUpdated]()},
	{"OnOwnershipTransferred", reflect.TypeFor[OnOwnershipTransferred]()},
	{"PayoutProvider", reflect.TypeFor[PayoutProvider]()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// PayoutProviders returns all registered payout providers.
func (r *Registry) PayoutProviders() []PayoutProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]PayoutProvider, len(r.payoutProviders))
	copy(result, r.payoutProviders)
	return result
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every cached hook. A failing or slow plugin is logged
// and skipped; it never fails the operation that triggered it.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks func() []T, fn func(p T) error) {
	r.mu.RLock()
	plugins := hooks()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, ledger any) {
	emit(ctx, r, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error {
		return p.OnInit(ctx, ledger)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionCreated", func() []OnSubscriptionCreated { return r.onSubscriptionCreated }, func(p OnSubscriptionCreated) error {
		return p.OnSubscriptionCreated(ctx, sub)
	})
}

func (r *Registry) EmitSubscriptionRenewed(ctx context.Context, sub *subscription.Subscription, payment types.Amount) {
	emit(ctx, r, "OnSubscriptionRenewed", func() []OnSubscriptionRenewed { return r.onSubscriptionRenewed }, func(p OnSubscriptionRenewed) error {
		return p.OnSubscriptionRenewed(ctx, sub, payment)
	})
}

func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionCanceled", func() []OnSubscriptionCanceled { return r.onSubscriptionCanceled }, func(p OnSubscriptionCanceled) error {
		return p.OnSubscriptionCanceled(ctx, sub)
	})
}

func (r *Registry) EmitClaimSubmitted(ctx context.Context, c *claim.Claim) {
	emit(ctx, r, "OnClaimSubmitted", func() []OnClaimSubmitted { return r.onClaimSubmitted }, func(p OnClaimSubmitted) error {
		return p.OnClaimSubmitted(ctx, c)
	})
}

func (r *Registry) EmitClaimApproved(ctx context.Context, c *claim.Claim, v *verification.Verification) {
	emit(ctx, r, "OnClaimApproved", func() []OnClaimApproved { return r.onClaimApproved }, func(p OnClaimApproved) error {
		return p.OnClaimApproved(ctx, c, v)
	})
}

func (r *Registry) EmitClaimRejected(ctx context.Context, c *claim.Claim) {
	emit(ctx, r, "OnClaimRejected", func() []OnClaimRejected { return r.onClaimRejected }, func(p OnClaimRejected) error {
		return p.OnClaimRejected(ctx, c)
	})
}

func (r *Registry) EmitClaimPaid(ctx context.Context, c *claim.Claim, m *fund.Movement) {
	emit(ctx, r, "OnClaimPaid", func() []OnClaimPaid { return r.onClaimPaid }, func(p OnClaimPaid) error {
		return p.OnClaimPaid(ctx, c, m)
	})
}

func (r *Registry) EmitPayoutFailed(ctx context.Context, c *claim.Claim, amount types.Amount, cause error) {
	emit(ctx, r, "OnPayoutFailed", func() []OnPayoutFailed { return r.onPayoutFailed }, func(p OnPayoutFailed) error {
		return p.OnPayoutFailed(ctx, c, amount, cause)
	})
}

func (r *Registry) EmitFundsDeposited(ctx context.Context, m *fund.Movement) {
	emit(ctx, r, "OnFundsDeposited", func() []OnFundsDeposited { return r.onFundsDeposited }, func(p OnFundsDeposited) error {
		return p.OnFundsDeposited(ctx, m)
	})
}

func (r *Registry) EmitFundsWithdrawn(ctx context.Context, m *fund.Movement) {
	emit(ctx, r, "OnFundsWithdrawn", func() []OnFundsWithdrawn { return r.onFundsWithdrawn }, func(p OnFundsWithdrawn) error {
		return p.OnFundsWithdrawn(ctx, m)
	})
}

func (r *Registry) EmitProcessingFeeUpdated(ctx context.Context, oldFee, newFee types.Amount) {
	emit(ctx, r, "OnProcessingFeeUpdated", func() []OnProcessingFeeUpdated { return r.onProcessingFeeUpdated }, func(p OnProcessingFeeUpdated) error {
		return p.OnProcessingFeeUpdated(ctx, oldFee, newFee)
	})
}

func (r *Registry) EmitOwnershipTransferred(ctx context.Context, previous, next types.Account) {
	emit(ctx, r, "OnOwnershipTransferred", func() []OnOwnershipTransferred { return r.onOwnershipTransferred }, func(p OnOwnershipTransferred) error {
		return p.OnOwnershipTransferred(ctx, previous, next)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the claims pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
