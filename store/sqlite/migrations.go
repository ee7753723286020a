package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"

	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
)

// Migrations is the grove migration group for the reimbursement store (SQLite).
var Migrations = migrate.NewGroup("reimburse")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_reimburse_state",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reimburse_state (
    id                   INTEGER PRIMARY KEY CHECK (id = 1),
    owner                TEXT    NOT NULL,
    total_funds          INTEGER NOT NULL DEFAULT 0 CHECK (total_funds >= 0),
    claim_processing_fee INTEGER NOT NULL DEFAULT 0 CHECK (claim_processing_fee >= 0),
    last_subscription_id INTEGER NOT NULL DEFAULT 0,
    last_claim_id        INTEGER NOT NULL DEFAULT 0,
    created_at           TEXT    NOT NULL,
    updated_at           TEXT    NOT NULL
)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS reimburse_state`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_reimburse_subscriptions",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reimburse_subscriptions (
    id             INTEGER PRIMARY KEY,
    subscriber     TEXT    NOT NULL,
    monthly_fee    INTEGER NOT NULL,
    coverage_limit INTEGER NOT NULL,
    deductible     INTEGER NOT NULL,
    start_date     TEXT    NOT NULL,
    end_date       TEXT    NOT NULL,
    is_active      INTEGER NOT NULL DEFAULT 1,
    canceled_at    TEXT,
    created_at     TEXT    NOT NULL,
    updated_at     TEXT    NOT NULL,
    CHECK (coverage_limit > deductible)
);

CREATE INDEX IF NOT EXISTS idx_reimburse_subscriptions_subscriber ON reimburse_subscriptions (subscriber, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS reimburse_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_reimburse_claims",
			Version: "20250301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reimburse_claims (
    id                 INTEGER PRIMARY KEY,
    claimant           TEXT    NOT NULL,
    subscription_id    INTEGER NOT NULL,
    amount             INTEGER NOT NULL,
    document_reference TEXT    NOT NULL DEFAULT '',
    status             INTEGER NOT NULL DEFAULT 0,
    rejection_reason   TEXT    NOT NULL DEFAULT '',
    processing_fee     INTEGER NOT NULL DEFAULT 0,
    decided_at         TEXT,
    paid_at            TEXT,
    created_at         TEXT    NOT NULL,
    updated_at         TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reimburse_claims_claimant ON reimburse_claims (claimant, id);
CREATE INDEX IF NOT EXISTS idx_reimburse_claims_status ON reimburse_claims (status, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS reimburse_claims`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_reimburse_verifications",
			Version: "20250301000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reimburse_verifications (
    claim_id        INTEGER PRIMARY KEY,
    is_verified     INTEGER NOT NULL,
    verified_amount INTEGER NOT NULL,
    verifier        TEXT    NOT NULL,
    verified_at     TEXT    NOT NULL
)`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS reimburse_verifications`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_reimburse_movements",
			Version: "20250301000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reimburse_movements (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT    NOT NULL UNIQUE,
    kind            TEXT    NOT NULL,
    account         TEXT    NOT NULL,
    amount          INTEGER NOT NULL,
    balance_after   INTEGER NOT NULL,
    subscription_id INTEGER NOT NULL DEFAULT 0,
    claim_id        INTEGER NOT NULL DEFAULT 0,
    reference       TEXT    NOT NULL DEFAULT '',
    created_at      TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reimburse_movements_account ON reimburse_movements (account, seq);
CREATE INDEX IF NOT EXISTS idx_reimburse_movements_kind ON reimburse_movements (kind, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS reimburse_movements`)
				return err
			},
		},
	)
}
