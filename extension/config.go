package extension

// Config holds the reimburse extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.reimburse" or "reimburse" keys).
type Config struct {
	// DisableMigrate skips engine start-up (migration and bootstrap). The
	// store must then be prepared by another process.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableAPI prevents providing the *httpapi.Server in the container.
	DisableAPI bool `json:"disable_api" mapstructure:"disable_api" yaml:"disable_api"`

	// Owner is the account recorded as owner when the store is first used.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// Verifiers are accounts allowed to review and pay claims besides the owner.
	Verifiers []string `json:"verifiers" mapstructure:"verifiers" yaml:"verifiers"`

	// ClaimProcessingFee is the initial fee in major units (default: "0.001").
	ClaimProcessingFee string `json:"claim_processing_fee" mapstructure:"claim_processing_fee" yaml:"claim_processing_fee"`

	// Decimals is the number of minor-unit digits in one major unit (default: 6).
	Decimals int32 `json:"decimals" mapstructure:"decimals" yaml:"decimals"`

	// JWTSecret, Issuer and DevHeader configure API authentication.
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string `json:"issuer" mapstructure:"issuer" yaml:"issuer"`
	DevHeader string `json:"dev_header" mapstructure:"dev_header" yaml:"dev_header"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ClaimProcessingFee: "0.001",
		Decimals:           6,
		Issuer:             "reimburse",
	}
}
