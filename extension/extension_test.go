package extension

import (
	"context"
	"testing"

	"github.com/xraph/reimburse"
	"github.com/xraph/reimburse/store/memory"
	"github.com/xraph/reimburse/types"
)

const (
	testOwner    = "0x0000000000000000000000000000000000000abc"
	testVerifier = "0xa11ce00000000000000000000000000000000001"
)

func TestMergeConfigurations(t *testing.T) {
	file := Config{Owner: testOwner, ClaimProcessingFee: "0.5"}
	programmatic := Config{
		Owner:      "0x0000000000000000000000000000000000000def",
		Verifiers:  []string{testVerifier},
		DisableAPI: true,
		JWTSecret:  "s3cret",
	}

	got := mergeConfigurations(file, programmatic)

	if got.Owner != testOwner {
		t.Errorf("Owner: got %q, want file value %q", got.Owner, testOwner)
	}
	if got.ClaimProcessingFee != "0.5" {
		t.Errorf("ClaimProcessingFee: got %q, want %q", got.ClaimProcessingFee, "0.5")
	}
	if len(got.Verifiers) != 1 || !got.DisableAPI || got.JWTSecret != "s3cret" {
		t.Errorf("programmatic values not merged: %+v", got)
	}
	if got.Decimals != 6 || got.Issuer != "reimburse" {
		t.Errorf("defaults not applied: %+v", got)
	}
}

func TestBuildLedgerOpts(t *testing.T) {
	ctx := context.Background()
	e := &Extension{config: mergeWithDefaults(Config{
		Owner:              testOwner,
		Verifiers:          []string{testVerifier},
		ClaimProcessingFee: "0.25",
	})}

	opts, err := e.buildLedgerOpts()
	if err != nil {
		t.Fatal(err)
	}
	l := reimburse.New(memory.New(), opts...)
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	owner, _ := l.Owner(ctx)
	if owner != types.MustParseAccount(testOwner) {
		t.Errorf("owner: got %s, want %s", owner, testOwner)
	}
	fee, _ := l.ClaimProcessingFee(ctx)
	if fee != 250_000 {
		t.Errorf("fee: got %d, want 250000", fee)
	}

	// The delegated verifier passes the role check and reaches the lookup.
	_, err = l.BeginReview(ctx, types.MustParseAccount(testVerifier), 1)
	if !reimburse.IsNotFound(err) {
		t.Errorf("BeginReview: got %v, want not found", err)
	}
}

func TestBuildLedgerOptsRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"owner", Config{Owner: "nobody"}},
		{"fee", Config{ClaimProcessingFee: "abc", Decimals: 6}},
		{"verifier", Config{Verifiers: []string{"0x1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Extension{config: tt.cfg}
			if _, err := e.buildLedgerOpts(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHealthWithoutStore(t *testing.T) {
	e := &Extension{}
	if err := e.Health(context.Background()); err == nil {
		t.Error("expected error before Register")
	}
}
