package observability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	reimburse "github.com/xraph/reimburse"
	"github.com/xraph/reimburse/observability"
	"github.com/xraph/reimburse/payout"
	"github.com/xraph/reimburse/store/memory"
	"github.com/xraph/reimburse/types"
)

var (
	owner = types.MustParseAccount("0x0000000000000000000000000000000000000abc")
	alice = types.MustParseAccount("0xa11ce00000000000000000000000000000000001")
)

func TestMetricName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"reimburse.claim.submitted", "reimburse_claim_submitted"},
		{"reimburse.claim.partially_approved", "reimburse_claim_partially_approved"},
		{"a-b.c", "a_b_c"},
	}
	for _, tt := range tests {
		if got := observability.MetricName(tt.in); got != tt.want {
			t.Errorf("MetricName(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f1 := observability.NewPrometheusFactory(reg)
	f2 := observability.NewPrometheusFactory(reg)

	f1.Counter("reimburse.claim.paid").Inc()
	f2.Counter("reimburse.claim.paid").Add(2)

	n, err := testutil.GatherAndCount(reg, "reimburse_claim_paid_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("series: got %d, want 1", n)
	}

	expected := `
# HELP reimburse_claim_paid_total Count of reimburse.claim.paid.
# TYPE reimburse_claim_paid_total counter
reimburse_claim_paid_total 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "reimburse_claim_paid_total"); err != nil {
		t.Error(err)
	}
}

func TestMetricsExtension(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	wallet := payout.NewWallet()

	l := reimburse.New(memory.New(),
		reimburse.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		reimburse.WithOwner(owner),
		reimburse.WithClaimProcessingFee(1),
		reimburse.WithTransferer(wallet),
		reimburse.WithPlugin(metrics),
	)
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	sub, err := l.CreateSubscription(ctx, alice, 10, 1000, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	c1, err := l.SubmitClaim(ctx, alice, sub.ID, 500, "doc-1", 1)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := l.SubmitClaim(ctx, alice, sub.ID, 200, "doc-2", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.ApproveClaim(ctx, owner, c1.ID, 400); err != nil {
		t.Fatal(err)
	}
	if _, err := l.RejectClaim(ctx, owner, c2.ID, "duplicate"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.AddFunds(ctx, owner, 1000); err != nil {
		t.Fatal(err)
	}
	wallet.FailNext(errors.New("offline"))
	_, _ = l.ProcessPayment(ctx, owner, c1.ID)
	if _, err := l.ProcessPayment(ctx, owner, c1.ID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"subscriptions", metrics.SubscriptionCreated.(prometheus.Counter), 1},
		{"premiums", metrics.PremiumsCollected.(prometheus.Counter), 10},
		{"submitted", metrics.ClaimSubmitted.(prometheus.Counter), 2},
		{"fees", metrics.FeesCollected.(prometheus.Counter), 2},
		{"approved", metrics.ClaimApproved.(prometheus.Counter), 1},
		{"partial", metrics.ClaimPartialApproved.(prometheus.Counter), 1},
		{"rejected", metrics.ClaimRejected.(prometheus.Counter), 1},
		{"paid", metrics.ClaimPaid.(prometheus.Counter), 1},
		{"payout failures", metrics.PayoutFailures.(prometheus.Counter), 1},
		{"deposited", metrics.FundsDeposited.(prometheus.Counter), 1000},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	n, err := testutil.GatherAndCount(reg, "reimburse_payout_amount")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("payout histogram series: got %d, want 1", n)
	}
}
