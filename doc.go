// Package reimburse provides a health-insurance reimbursement ledger for Go
// applications.
//
// Reimburse is designed as a library, not a service. Import it directly into
// your Go application, or run the bundled HTTP API (cmd/reimburse). It
// provides:
//
//   - Monthly coverage subscriptions with a coverage limit and deductible
//   - Claim submission against an active subscription, with a processing fee
//   - Verification by the owner or delegated verifiers, including partial approval
//   - Atomic payout of verified amounts through a pluggable Transferer
//   - Custody of the pooled funds with a journal of every movement
//   - Audit trail and Prometheus metrics through plugins
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    "github.com/xraph/reimburse"
//	    "github.com/xraph/reimburse/payout"
//	    "github.com/xraph/reimburse/store/sqlite"
//	)
//
//	// Initialize store
//	store, err := sqlite.Open("reimburse.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create ledger
//	l := reimburse.New(store,
//	    reimburse.WithOwner(owner),
//	    reimburse.WithTransferer(payout.NewWallet()),
//	)
//
//	// Start the ledger (migrates the store and records the owner on first run)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// A subscription buys one 30-day period of coverage. The payment, including
// anything above the monthly fee, goes into the pool:
//
//	sub, err := l.CreateSubscription(ctx, alice, fee, coverageLimit, deductible, fee)
//
// Claims are filed against a subscription that is active and not lapsed. The
// amount must lie between the deductible and the coverage limit:
//
//	c, err := l.SubmitClaim(ctx, alice, sub.ID, amount, "ipfs://Qm...", processingFee)
//
// A verifier approves the claim for all or part of its amount, then pays it:
//
//	_, _, err = l.ApproveClaim(ctx, owner, c.ID, verifiedAmount)
//	receipt, err := l.ProcessPayment(ctx, owner, c.ID)
//
// Claims move Pending → (UnderReview) → Approved → Paid, or end in Rejected.
// A failed transfer commits nothing; the claim stays Approved and the payment
// can be retried.
//
// # Amounts and Accounts
//
// Amounts are unsigned integers in the smallest unit (DefaultDecimals = 6
// places), bounded by MaxAmount so every backend stores them in a signed
// 64-bit column. Accounts are 20-byte addresses rendered in checksum form.
//
// # Consistency
//
// Every mutating operation is serialized by the engine and runs as a single
// store transaction, so totalFunds and the journal never disagree. Plugins
// are notified after commit.
//
// # TypeID
//
// Fund movements use TypeID identifiers whose prefix names the movement:
//
//	prem_01h2xcejqtf2nbrexx3vqjhp41  // Premium
//	cfee_01h2xcejqtf2nbrexx3vqjhp41  // Claim processing fee
//	pay_01h455vb4pex5vsknk084sn02q   // Claim payout
//
// Subscriptions and claims are numbered sequentially from 1.
package reimburse
