// Package config loads the reimburse server configuration from a TOML or YAML
// file, with REIMBURSE_* environment overrides for deployment secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/xraph/reimburse/types"
)

// Duration is a time.Duration written as "30s" or "5m" in config files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Log       LogConfig       `toml:"log" yaml:"log"`
	Ledger    LedgerConfig    `toml:"ledger" yaml:"ledger"`
	Store     StoreConfig     `toml:"store" yaml:"store"`
	Auth      AuthConfig      `toml:"auth" yaml:"auth"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr" yaml:"addr"`
	ReadTimeout     Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout" yaml:"write_timeout"`
	RequestTimeout  Duration `toml:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// LedgerConfig seeds a new ledger. Owner and fee only apply the first time
// the store is started.
type LedgerConfig struct {
	Owner     string   `toml:"owner" yaml:"owner"`
	Verifiers []string `toml:"verifiers" yaml:"verifiers"`
	// ClaimProcessingFee is in major units, e.g. "0.001".
	ClaimProcessingFee string `toml:"claim_processing_fee" yaml:"claim_processing_fee"`
	Decimals           int32  `toml:"decimals" yaml:"decimals"`
}

type StoreConfig struct {
	Driver   string `toml:"driver" yaml:"driver"` // memory, sqlite, postgres, mongo
	DSN      string `toml:"dsn" yaml:"dsn"`
	Database string `toml:"database" yaml:"database"` // mongo only
}

type AuthConfig struct {
	JWTSecret string   `toml:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string   `toml:"issuer" yaml:"issuer"`
	TokenTTL  Duration `toml:"token_ttl" yaml:"token_ttl"`
	// DevHeader, when set, names a header that is trusted as the caller
	// account without a token. Never enable it in production.
	DevHeader string `toml:"dev_header" yaml:"dev_header"`
}

type RateLimitConfig struct {
	RPS   float64 `toml:"rps" yaml:"rps"` // 0 disables
	Burst int     `toml:"burst" yaml:"burst"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration{10 * time.Second},
			WriteTimeout:    Duration{30 * time.Second},
			RequestTimeout:  Duration{15 * time.Second},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Ledger: LedgerConfig{
			ClaimProcessingFee: "0.001",
			Decimals:           types.DefaultDecimals,
		},
		Store: StoreConfig{
			Driver:   "sqlite",
			DSN:      "reimburse.db",
			Database: "reimburse",
		},
		Auth: AuthConfig{
			Issuer:   "reimburse",
			TokenTTL: Duration{24 * time.Hour},
		},
		RateLimit: RateLimitConfig{
			RPS:   10,
			Burst: 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path loads the defaults only. The format follows the extension:
// .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".toml":
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("config: unsupported file type %q", ext)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

// applyEnv overrides settings that usually differ per deployment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	strs := map[string]*string{
		"REIMBURSE_ADDR":           &c.Server.Addr,
		"REIMBURSE_LOG_LEVEL":      &c.Log.Level,
		"REIMBURSE_LOG_FORMAT":     &c.Log.Format,
		"REIMBURSE_OWNER":          &c.Ledger.Owner,
		"REIMBURSE_STORE_DRIVER":   &c.Store.Driver,
		"REIMBURSE_STORE_DSN":      &c.Store.DSN,
		"REIMBURSE_STORE_DATABASE": &c.Store.Database,
		"REIMBURSE_JWT_SECRET":     &c.Auth.JWTSecret,
		"REIMBURSE_DEV_HEADER":     &c.Auth.DevHeader,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("REIMBURSE_VERIFIERS"); ok {
		c.Ledger.Verifiers = splitList(v)
	}
}

// Validate checks the configuration before a server is started.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	if _, err := c.OwnerAccount(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.VerifierAccounts(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ProcessingFee(); err != nil {
		errs = append(errs, err)
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for %s", c.Store.Driver))
		}
	case "mongo":
		if c.Store.DSN == "" || c.Store.Database == "" {
			errs = append(errs, errors.New("store.dsn and store.database are required for mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", c.Store.Driver))
	}

	if c.Auth.JWTSecret == "" && c.Auth.DevHeader == "" {
		errs = append(errs, errors.New("auth.jwt_secret or auth.dev_header is required"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		errs = append(errs, errors.New("rate_limit.burst must be positive when rps is set"))
	}

	return errors.Join(errs...)
}

// OwnerAccount parses ledger.owner.
func (c *Config) OwnerAccount() (types.Account, error) {
	if c.Ledger.Owner == "" {
		return types.ZeroAccount, errors.New("ledger.owner is required")
	}
	a, err := types.ParseAccount(c.Ledger.Owner)
	if err != nil {
		return types.ZeroAccount, fmt.Errorf("ledger.owner: %w", err)
	}
	return a, nil
}

// VerifierAccounts parses ledger.verifiers.
func (c *Config) VerifierAccounts() ([]types.Account, error) {
	out := make([]types.Account, 0, len(c.Ledger.Verifiers))
	for _, v := range c.Ledger.Verifiers {
		a, err := types.ParseAccount(v)
		if err != nil {
			return nil, fmt.Errorf("ledger.verifiers: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// ProcessingFee parses ledger.claim_processing_fee into smallest units.
func (c *Config) ProcessingFee() (types.Amount, error) {
	fee, err := types.ParseAmount(c.Ledger.ClaimProcessingFee, c.Ledger.Decimals)
	if err != nil {
		return 0, fmt.Errorf("ledger.claim_processing_fee: %w", err)
	}
	return fee, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
