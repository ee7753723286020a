package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestAmountArithmetic(t *testing.T) {
	tests := []struct {
		name    string
		op      func() (Amount, error)
		want    Amount
		wantErr error
	}{
		{"Add", func() (Amount, error) { return Amount(100).CheckedAdd(200) }, 300, nil},
		{"Add to max", func() (Amount, error) { return (MaxAmount - 1).CheckedAdd(1) }, MaxAmount, nil},
		{"Add overflow", func() (Amount, error) { return MaxAmount.CheckedAdd(1) }, 0, ErrOverflow},
		{"Sub", func() (Amount, error) { return Amount(500).CheckedSub(200) }, 300, nil},
		{"Sub to zero", func() (Amount, error) { return Amount(7).CheckedSub(7) }, 0, nil},
		{"Sub underflow", func() (Amount, error) { return Amount(1).CheckedSub(2) }, 0, ErrUnderflow},
		{"Sum", func() (Amount, error) { return SumAmounts(1, 2, 3, 4) }, 10, nil},
		{"Sum overflow", func() (Amount, error) { return SumAmounts(MaxAmount, 1) }, 0, ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error: got %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Amount: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAmountComparison(t *testing.T) {
	if Amount(1).Cmp(2) != -1 {
		t.Error("1 should be less than 2")
	}
	if Amount(2).Cmp(1) != 1 {
		t.Error("2 should be greater than 1")
	}
	if Amount(5).Cmp(5) != 0 {
		t.Error("5 should equal 5")
	}
	if !Amount(0).IsZero() {
		t.Error("0 should be zero")
	}
	if Amount(MaxAmount + 1).Valid() {
		t.Error("MaxAmount+1 should be invalid")
	}
}

func TestAmountFormat(t *testing.T) {
	tests := []struct {
		amount   Amount
		decimals int32
		want     string
	}{
		{1500, 3, "1.500"},
		{1000, 6, "0.001000"},
		{0, 2, "0.00"},
		{4900, 2, "49.00"},
		{42, 0, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.amount.Format(tt.decimals); got != tt.want {
				t.Errorf("Format: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		decimals int32
		want     Amount
		wantErr  error
	}{
		{"0.001", 6, 1000, nil},
		{"1", 6, 1_000_000, nil},
		{"12.5", 2, 1250, nil},
		{"0", 18, 0, nil},
		{"1.0000001", 6, 0, ErrInvalid},
		{"-1", 6, 0, ErrInvalid},
		{"abc", 6, 0, ErrInvalid},
		{"10", 18, 0, ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input, tt.decimals)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error: got %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Amount: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAmountFromInt64(t *testing.T) {
	if _, err := AmountFromInt64(-1); !errors.Is(err, ErrInvalid) {
		t.Errorf("negative: got %v, want %v", err, ErrInvalid)
	}
	got, err := AmountFromInt64(99)
	if err != nil {
		t.Fatal(err)
	}
	if got != 99 {
		t.Errorf("Amount: got %d, want 99", got)
	}
}

func TestAmountJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Fee Amount `json:"fee"`
	}{Fee: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"fee":1000}` {
		t.Errorf("JSON: got %s", data)
	}
}
