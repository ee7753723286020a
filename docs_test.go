package reimburse_test

import (
	"context"
	"log/slog"
	"testing"

	reimburse "github.com/xraph/reimburse"
	"github.com/xraph/reimburse/payout"
	"github.com/xraph/reimburse/store/memory"
	"github.com/xraph/reimburse/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()
		wallet := payout.NewWallet()

		l := reimburse.New(store,
			reimburse.WithLogger(slog.Default()),
			reimburse.WithOwner(owner),
			reimburse.WithTransferer(wallet),
		)

		ctx := context.Background()
		if err := l.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer l.Stop()

		fee := reimburse.MustParseAmount("25", reimburse.DefaultDecimals)
		coverageLimit := reimburse.MustParseAmount("5000", reimburse.DefaultDecimals)
		deductible := reimburse.MustParseAmount("100", reimburse.DefaultDecimals)

		sub, err := l.CreateSubscription(ctx, alice, fee, coverageLimit, deductible, fee)
		if err != nil {
			t.Fatal(err)
		}

		processingFee, err := l.ClaimProcessingFee(ctx)
		if err != nil {
			t.Fatal(err)
		}
		amount := reimburse.MustParseAmount("250.50", reimburse.DefaultDecimals)
		c, err := l.SubmitClaim(ctx, alice, sub.ID, amount, "ipfs://QmReceipt", processingFee)
		if err != nil {
			t.Fatal(err)
		}

		verifiedAmount := reimburse.MustParseAmount("200", reimburse.DefaultDecimals)
		if _, _, err := l.ApproveClaim(ctx, owner, c.ID, verifiedAmount); err != nil {
			t.Fatal(err)
		}

		if _, err := l.AddFunds(ctx, bob, reimburse.MustParseAmount("1000", reimburse.DefaultDecimals)); err != nil {
			t.Fatal(err)
		}
		receipt, err := l.ProcessPayment(ctx, owner, c.ID)
		if err != nil {
			t.Fatal(err)
		}

		t.Logf("paid %s to %s (ref %s)", receipt.Amount.Format(reimburse.DefaultDecimals), receipt.Claimant, receipt.Reference)
		if wallet.Balance(alice) != verifiedAmount {
			t.Errorf("claimant balance: got %d, want %d", wallet.Balance(alice), verifiedAmount)
		}
	})

	t.Run("AmountExamples", func(t *testing.T) {
		// Amounts are integers in the smallest unit.
		a := reimburse.MustParseAmount("0.001", reimburse.DefaultDecimals)
		if a != reimburse.DefaultClaimProcessingFee {
			t.Errorf("0.001: got %d, want %d", a, reimburse.DefaultClaimProcessingFee)
		}

		// Arithmetic is checked.
		if _, err := reimburse.MaxAmount.CheckedAdd(1); err == nil {
			t.Error("expected overflow")
		}

		// Formatting
		if got := types.Amount(1_500_000).Format(reimburse.DefaultDecimals); got != "1.5" {
			t.Errorf("Format: got %q, want %q", got, "1.5")
		}

		// Accounts print in checksum form.
		acct := reimburse.MustParseAccount("0xa11ce00000000000000000000000000000000001")
		if !acct.Equal(alice) {
			t.Errorf("account: got %s, want %s", acct, alice)
		}
	})
}
