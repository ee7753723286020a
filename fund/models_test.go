package fund

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xraph/reimburse/types"
)

func TestStateCounters(t *testing.T) {
	var s State
	for want := 1; want <= 3; want++ {
		if got := s.NextSubscriptionID(); uint64(got) != uint64(want) {
			t.Errorf("NextSubscriptionID: got %d, want %d", got, want)
		}
	}
	if got := s.NextClaimID(); got != 1 {
		t.Errorf("NextClaimID: got %d, want 1", got)
	}
}

func TestStateCreditDebit(t *testing.T) {
	s := State{TotalFunds: 100}

	if err := s.Credit(50); err != nil {
		t.Fatal(err)
	}
	if s.TotalFunds != 150 {
		t.Errorf("TotalFunds after credit: got %d, want 150", s.TotalFunds)
	}

	if err := s.Debit(200); !errors.Is(err, types.ErrUnderflow) {
		t.Errorf("overdraw: got %v, want %v", err, types.ErrUnderflow)
	}
	if s.TotalFunds != 150 {
		t.Errorf("TotalFunds after failed debit: got %d, want 150", s.TotalFunds)
	}

	if err := s.Debit(150); err != nil {
		t.Fatal(err)
	}
	if s.TotalFunds != 0 {
		t.Errorf("TotalFunds after debit: got %d, want 0", s.TotalFunds)
	}

	s.TotalFunds = types.MaxAmount
	if err := s.Credit(1); !errors.Is(err, types.ErrOverflow) {
		t.Errorf("overflow: got %v, want %v", err, types.ErrOverflow)
	}
}

func TestKinds(t *testing.T) {
	tests := []struct {
		kind   Kind
		inflow bool
		prefix string
	}{
		{KindPremium, true, "prem_"},
		{KindRenewal, true, "rnw_"},
		{KindClaimFee, true, "cfee_"},
		{KindDeposit, true, "dep_"},
		{KindPayout, false, "pay_"},
		{KindWithdrawal, false, "wd_"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if tt.kind.Inflow() != tt.inflow {
				t.Errorf("Inflow: got %v, want %v", tt.kind.Inflow(), tt.inflow)
			}
			m := NewMovement(tt.kind, types.ZeroAccount, 1, 1, time.Now())
			if !strings.HasPrefix(m.ID.String(), tt.prefix) {
				t.Errorf("ID: got %s, want prefix %s", m.ID, tt.prefix)
			}
		})
	}
}

func TestListOptsMatches(t *testing.T) {
	alice := types.MustParseAccount("0x1111111111111111111111111111111111111111")
	bob := types.MustParseAccount("0x2222222222222222222222222222222222222222")
	m := &Movement{Kind: KindDeposit, Account: alice}

	tests := []struct {
		name string
		opts ListOpts
		want bool
	}{
		{"any", ListOpts{}, true},
		{"same account", ListOpts{Account: alice}, true},
		{"other account", ListOpts{Account: bob}, false},
		{"same kind", ListOpts{Kind: KindDeposit}, true},
		{"other kind", ListOpts{Kind: KindPayout}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Matches(m); got != tt.want {
				t.Errorf("Matches: got %v, want %v", got, tt.want)
			}
		})
	}
}
