package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/reimburse/id"
)

var movementPrefixes = []id.Prefix{
	id.PrefixPremium,
	id.PrefixRenewal,
	id.PrefixClaimFee,
	id.PrefixDeposit,
	id.PrefixPayout,
	id.PrefixWithdrawal,
}

func TestNewAndParse(t *testing.T) {
	for _, p := range movementPrefixes {
		t.Run(string(p), func(t *testing.T) {
			i := id.New(p)
			if !strings.HasPrefix(i.String(), string(p)+"_") {
				t.Errorf("String: got %q, want prefix %q", i.String(), p)
			}
			if i.Prefix() != p {
				t.Errorf("Prefix: got %q, want %q", i.Prefix(), p)
			}

			parsed, err := id.Parse(i.String())
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if parsed.String() != i.String() {
				t.Errorf("Parse: got %s, want %s", parsed, i)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "not-an-id"},
		{"foreign prefix", "plan_01h2xcejqtf2nbrexx3vqjhp41"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := id.Parse(tt.input); err == nil {
				t.Errorf("Parse(%q): expected error", tt.input)
			}
		})
	}
}

func TestIsMovementPrefix(t *testing.T) {
	for _, p := range movementPrefixes {
		if !id.IsMovementPrefix(p) {
			t.Errorf("%q should be a movement prefix", p)
		}
	}
	if id.IsMovementPrefix("plan") {
		t.Error("plan is not a movement prefix")
	}
	if id.IsMovementPrefix("") {
		t.Error("empty prefix is not a movement prefix")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("String: got %q, want empty", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("Prefix: got %q, want empty", i.Prefix())
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.New(id.PrefixDeposit)
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("got %s, want %s", restored, original)
	}

	var nilID id.ID
	data, _ = nilID.MarshalText()
	var restoredNil id.ID
	if err := restoredNil.UnmarshalText(data); err != nil || !restoredNil.IsNil() {
		t.Errorf("nil round trip: got %s, %v", restoredNil, err)
	}
}

func TestValueScan(t *testing.T) {
	original := id.New(id.PrefixWithdrawal)
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	for _, src := range []any{val, []byte(val.(string))} {
		var scanned id.ID
		if err := scanned.Scan(src); err != nil {
			t.Fatalf("Scan(%T): %v", src, err)
		}
		if scanned.String() != original.String() {
			t.Errorf("Scan(%T): got %s, want %s", src, scanned, original)
		}
	}

	if v, _ := (id.ID{}).Value(); v != nil {
		t.Errorf("Value of nil id: got %v, want NULL", v)
	}
	for _, src := range []any{nil, ""} {
		var scanned id.ID
		if err := scanned.Scan(src); err != nil || !scanned.IsNil() {
			t.Errorf("Scan(%#v): got %s, %v", src, scanned, err)
		}
	}
	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("Scan(int): expected error")
	}
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		s := id.New(id.PrefixPayout).String()
		if seen[s] {
			t.Fatalf("duplicate payout id %q", s)
		}
		seen[s] = true
	}
}
