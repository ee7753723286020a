// Package extension provides the Forge extension adapter for reimburse.
//
// It implements the forge.Extension interface to integrate the reimbursement
// ledger into a Forge application with DI registration and lifecycle
// management. The engine is provided as *reimburse.Ledger and, unless
// disabled, the JSON API as *httpapi.Server.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.reimburse" or "reimburse" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/reimburse"
	"github.com/xraph/reimburse/httpapi"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/store/memory"
	"github.com/xraph/reimburse/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "reimburse"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Pooled health insurance reimbursement ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts reimburse as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *reimburse.Ledger
	api        *httpapi.Server
	store      store.Store
	ledgerOpts []reimburse.Option
}

// New creates a new reimburse Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *reimburse.Ledger { return e.engine }

// API returns the HTTP API server, or nil when disabled or not registered.
func (e *Extension) API() *httpapi.Server { return e.api }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildLedgerOpts()
	if err != nil {
		return err
	}
	e.engine = reimburse.New(e.store, opts...)

	if err := vessel.Provide(fapp.Container(), func() (*reimburse.Ledger, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableAPI {
		return nil
	}
	e.api = httpapi.NewServer(e.engine, e.apiConfig(), nil)
	return vessel.Provide(fapp.Container(), func() (*httpapi.Server, error) {
		return e.api, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("reimburse: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("reimburse: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs reimburse.Option values from the resolved config.
// Pass-through options come last so they override config-derived ones.
func (e *Extension) buildLedgerOpts() ([]reimburse.Option, error) {
	opts := make([]reimburse.Option, 0, len(e.ledgerOpts)+3)

	if e.config.Owner != "" {
		owner, err := types.ParseAccount(e.config.Owner)
		if err != nil {
			return nil, fmt.Errorf("reimburse: owner: %w", err)
		}
		opts = append(opts, reimburse.WithOwner(owner))
	}

	if e.config.ClaimProcessingFee != "" {
		fee, err := types.ParseAmount(e.config.ClaimProcessingFee, e.config.Decimals)
		if err != nil {
			return nil, fmt.Errorf("reimburse: claim_processing_fee: %w", err)
		}
		opts = append(opts, reimburse.WithClaimProcessingFee(fee))
	}

	if len(e.config.Verifiers) > 0 {
		verifiers := make([]types.Account, 0, len(e.config.Verifiers))
		for _, v := range e.config.Verifiers {
			a, err := types.ParseAccount(v)
			if err != nil {
				return nil, fmt.Errorf("reimburse: verifiers: %w", err)
			}
			verifiers = append(verifiers, a)
		}
		opts = append(opts, reimburse.WithVerifiers(verifiers...))
	}

	opts = append(opts, e.ledgerOpts...)
	return opts, nil
}

func (e *Extension) apiConfig() httpapi.Config {
	return httpapi.Config{
		Auth: httpapi.Auth{
			Secret:    e.config.JWTSecret,
			Issuer:    e.config.Issuer,
			DevHeader: e.config.DevHeader,
		},
	}
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("reimburse: configuration is required but not found in config files; " +
				"ensure 'extensions.reimburse' or 'reimburse' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("reimburse: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_api", e.config.DisableAPI),
		forge.F("owner", e.config.Owner),
		forge.F("verifiers", len(e.config.Verifiers)),
		forge.F("claim_processing_fee", e.config.ClaimProcessingFee),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.reimburse", "reimburse"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("reimburse: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("reimburse: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ClaimProcessingFee == "" {
		cfg.ClaimProcessingFee = defaults.ClaimProcessingFee
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = defaults.Decimals
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaults.Issuer
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableAPI {
		yamlConfig.DisableAPI = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&yamlConfig.Owner, programmaticConfig.Owner)
	fill(&yamlConfig.ClaimProcessingFee, programmaticConfig.ClaimProcessingFee)
	fill(&yamlConfig.JWTSecret, programmaticConfig.JWTSecret)
	fill(&yamlConfig.Issuer, programmaticConfig.Issuer)
	fill(&yamlConfig.DevHeader, programmaticConfig.DevHeader)

	if len(yamlConfig.Verifiers) == 0 {
		yamlConfig.Verifiers = programmaticConfig.Verifiers
	}
	if yamlConfig.Decimals == 0 {
		yamlConfig.Decimals = programmaticConfig.Decimals
	}

	return mergeWithDefaults(yamlConfig)
}
