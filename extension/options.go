package extension

import (
	"github.com/xraph/reimburse"
	"github.com/xraph/reimburse/payout"
	"github.com/xraph/reimburse/plugin"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/types"
)

// Option configures the reimburse Forge extension.
type Option func(*Extension)

// WithStore sets the store for the reimburse engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedgerOption passes a reimburse.Option through to the underlying engine.
func WithLedgerOption(opt reimburse.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a reimburse plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, reimburse.WithPlugin(p))
	}
}

// WithTransferer sets how payouts and withdrawals leave the pool.
func WithTransferer(t payout.Transferer) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, reimburse.WithTransferer(t))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithOwner sets the owner recorded on first start.
func WithOwner(owner types.Account) Option {
	return func(e *Extension) { e.config.Owner = owner.String() }
}

// WithDisableMigrate skips engine start-up.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableAPI prevents providing the HTTP API server.
func WithDisableAPI() Option {
	return func(e *Extension) { e.config.DisableAPI = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
