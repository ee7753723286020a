// Package id defines TypeID-based identifiers for fund-journal movements.
//
// Subscriptions and claims use sequential integers; every money movement in
// and out of the pool gets a K-sortable (UUIDv7-based), globally unique,
// URL-safe id in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for fund-journal movements. The prefix encodes the kind
// of movement so an id alone tells a deposit from a payout.
const (
	PrefixPremium    Prefix = "prem" // Subscription premium
	PrefixRenewal    Prefix = "rnw"  // Subscription renewal premium
	PrefixClaimFee   Prefix = "cfee" // Claim processing fee
	PrefixDeposit    Prefix = "dep"  // Pool deposit
	PrefixPayout     Prefix = "pay"  // Claim payout
	PrefixWithdrawal Prefix = "wd"   // Owner withdrawal
)

// ID is the identifier type for fund-journal movements.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a movement id such as "dep_01h2xcejqtf2nbrexx3vqjhp41".
// Ids whose prefix is not a movement kind are rejected.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if !IsMovementPrefix(Prefix(tid.Prefix())) {
		return Nil, fmt.Errorf("id: parse %q: unknown prefix %q", s, tid.Prefix())
	}

	return ID{inner: tid, valid: true}, nil
}

// IsMovementPrefix reports whether p is one of the fund-journal prefixes.
func IsMovementPrefix(p Prefix) bool {
	switch p {
	case PrefixPremium, PrefixRenewal, PrefixClaimFee, PrefixDeposit, PrefixPayout, PrefixWithdrawal:
		return true
	}
	return false
}

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner. NULL and empty values scan to Nil.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
