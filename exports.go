package reimburse

import "github.com/xraph/reimburse/types"

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Account is re-exported from types package.
type Account = types.Account

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export amount and account helpers
var (
	ParseAmount      = types.ParseAmount
	MustParseAmount  = types.MustParseAmount
	SumAmounts       = types.SumAmounts
	ParseAccount     = types.ParseAccount
	MustParseAccount = types.MustParseAccount
	ZeroAccount      = types.ZeroAccount
)

// Re-export amount limits
const (
	MaxAmount       = types.MaxAmount
	DefaultDecimals = types.DefaultDecimals
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
