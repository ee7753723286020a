package audithook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	reimburse "github.com/xraph/reimburse"
	audithook "github.com/xraph/reimburse/audit_hook"
	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/payout"
	"github.com/xraph/reimburse/store/memory"
	"github.com/xraph/reimburse/types"
)

var (
	owner = types.MustParseAccount("0x0000000000000000000000000000000000000abc")
	alice = types.MustParseAccount("0xa11ce00000000000000000000000000000000001")
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (r *memRecorder) Record(_ context.Context, e *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func (r *memRecorder) find(action string) *audithook.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Action == action {
			return e
		}
	}
	return nil
}

func newLedger(t *testing.T, ext *audithook.Extension, wallet *payout.Wallet) *reimburse.Ledger {
	t.Helper()
	l := reimburse.New(memory.New(),
		reimburse.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		reimburse.WithOwner(owner),
		reimburse.WithClaimProcessingFee(1),
		reimburse.WithTransferer(wallet),
		reimburse.WithPlugin(ext),
	)
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func TestExtensionRecordsLifecycle(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	wallet := payout.NewWallet()
	l := newLedger(t, audithook.New(rec), wallet)

	sub, err := l.CreateSubscription(ctx, alice, 10, 1000, 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	c, err := l.SubmitClaim(ctx, alice, sub.ID, 500, "ipfs://QmDoc", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.ApproveClaim(ctx, owner, c.ID, 300); err != nil {
		t.Fatal(err)
	}
	if _, err := l.AddFunds(ctx, owner, 1000); err != nil {
		t.Fatal(err)
	}
	wallet.FailNext(errors.New("gateway timeout"))
	if _, err := l.ProcessPayment(ctx, owner, c.ID); err == nil {
		t.Fatal("expected transfer failure")
	}
	if _, err := l.ProcessPayment(ctx, owner, c.ID); err != nil {
		t.Fatal(err)
	}

	want := []string{
		audithook.ActionSubscriptionCreated,
		audithook.ActionClaimSubmitted,
		audithook.ActionClaimApproved,
		audithook.ActionFundsDeposited,
		audithook.ActionPayoutFailed,
		audithook.ActionClaimPaid,
	}
	got := rec.actions()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("actions: got %v, want %v", got, want)
	}

	approved := rec.find(audithook.ActionClaimApproved)
	if approved.Outcome != audithook.OutcomePartial {
		t.Errorf("approval outcome: got %s, want %s", approved.Outcome, audithook.OutcomePartial)
	}
	if approved.Actor != owner.String() {
		t.Errorf("approval actor: got %s, want %s", approved.Actor, owner)
	}
	if approved.ResourceID != c.ID.String() {
		t.Errorf("approval resource id: got %s, want %s", approved.ResourceID, c.ID)
	}

	failed := rec.find(audithook.ActionPayoutFailed)
	if failed.Severity != audithook.SeverityCritical || failed.Outcome != audithook.OutcomeFailure {
		t.Errorf("payout failure: got %s/%s", failed.Severity, failed.Outcome)
	}
	if !strings.Contains(failed.Reason, "gateway timeout") {
		t.Errorf("payout failure reason: got %q", failed.Reason)
	}
}

func TestExtensionActionFilters(t *testing.T) {
	ctx := context.Background()
	sub := func(t *testing.T, ext *audithook.Extension) {
		t.Helper()
		l := newLedger(t, ext, payout.NewWallet())
		s, err := l.CreateSubscription(ctx, alice, 10, 1000, 100, 10)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := l.CancelSubscription(ctx, alice, s.ID); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("enabled", func(t *testing.T) {
		rec := &memRecorder{}
		sub(t, audithook.New(rec, audithook.WithEnabledActions(audithook.ActionSubscriptionCanceled)))
		if got := rec.actions(); len(got) != 1 || got[0] != audithook.ActionSubscriptionCanceled {
			t.Errorf("actions: got %v", got)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		rec := &memRecorder{}
		sub(t, audithook.New(rec, audithook.WithDisabledActions(audithook.ActionSubscriptionCanceled)))
		if got := rec.actions(); len(got) != 1 || got[0] != audithook.ActionSubscriptionCreated {
			t.Errorf("actions: got %v", got)
		}
	})

	t.Run("categories", func(t *testing.T) {
		rec := &memRecorder{}
		sub(t, audithook.New(rec, audithook.WithCategories(audithook.CategoryPayment, audithook.CategoryCustody)))
		if got := rec.actions(); len(got) != 0 {
			t.Errorf("actions: got %v, want none", got)
		}

		rec = &memRecorder{}
		sub(t, audithook.New(rec, audithook.WithCategories(audithook.CategorySubscription)))
		if got := rec.actions(); len(got) != 2 {
			t.Errorf("actions: got %v, want created and canceled", got)
		}
	})
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	var logs bytes.Buffer
	ext := audithook.New(
		audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
			return errors.New("sink down")
		}),
		audithook.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	c := &claim.Claim{ID: 7, Claimant: alice, Amount: 100}
	if err := ext.OnClaimRejected(context.Background(), c); err != nil {
		t.Errorf("OnClaimRejected: got %v, want nil", err)
	}
	if !strings.Contains(logs.String(), "sink down") {
		t.Errorf("expected warning log, got %q", logs.String())
	}
}

func TestSlogRecorder(t *testing.T) {
	var buf bytes.Buffer
	rec := audithook.NewSlogRecorder(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := rec.Record(context.Background(), &audithook.AuditEvent{
		Action:     audithook.ActionPayoutFailed,
		Resource:   audithook.ResourceClaim,
		ResourceID: "3",
		Category:   audithook.CategoryPayment,
		Outcome:    audithook.OutcomeFailure,
		Severity:   audithook.SeverityCritical,
		Reason:     "rejected",
		Metadata:   map[string]any{"amount": 400},
	})
	if err != nil {
		t.Fatal(err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["level"] != "ERROR" {
		t.Errorf("level: got %v, want ERROR", line["level"])
	}
	if line["action"] != audithook.ActionPayoutFailed {
		t.Errorf("action: got %v", line["action"])
	}
	meta, ok := line["metadata"].(map[string]any)
	if !ok || meta["amount"] != float64(400) {
		t.Errorf("metadata: got %v", line["metadata"])
	}
}
