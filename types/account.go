package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAccount is returned when a string is not a 20-byte hex address.
var ErrInvalidAccount = errors.New("account: invalid address")

// Account identifies a subscriber, verifier or owner. It is a 20-byte address
// rendered in EIP-55 checksum form.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type Account struct {
	addr common.Address
}

// ZeroAccount is the empty account. It is never a valid owner.
var ZeroAccount Account

// ParseAccount parses a "0x"-prefixed hex address. Mixed-case input is
// accepted without enforcing the checksum.
func ParseAccount(s string) (Account, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return ZeroAccount, fmt.Errorf("%w: %q", ErrInvalidAccount, s)
	}
	return Account{addr: common.HexToAddress(s)}, nil
}

// MustParseAccount is like ParseAccount but panics on error.
func MustParseAccount(s string) Account {
	a, err := ParseAccount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AccountFromAddress wraps a go-ethereum address.
func AccountFromAddress(addr common.Address) Account { return Account{addr: addr} }

// Address returns the underlying 20-byte address.
func (a Account) Address() common.Address { return a.addr }

// IsZero reports whether a is the zero address.
func (a Account) IsZero() bool { return a.addr == (common.Address{}) }

// Equal reports whether both accounts are the same address.
func (a Account) Equal(b Account) bool { return a.addr == b.addr }

// String returns the checksummed hex form.
func (a Account) String() string { return a.addr.Hex() }

// MarshalText implements encoding.TextMarshaler.
func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.addr.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Account) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = ZeroAccount
		return nil
	}
	parsed, err := ParseAccount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer.
func (a Account) Value() (driver.Value, error) {
	return a.addr.Hex(), nil
}

// Scan implements sql.Scanner.
func (a *Account) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = ZeroAccount
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	default:
		return fmt.Errorf("account: cannot scan %T into Account", src)
	}
}
