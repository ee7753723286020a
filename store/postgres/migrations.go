package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"

	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the pg migration executor
)

// Migrations is the grove migration group for the reimbursement store (PostgreSQL).
var Migrations = migrate.NewGroup("reimburse")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_reimburse_state",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS reimburse_state (
    id                   SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    owner                TEXT        NOT NULL,
    total_funds          BIGINT      NOT NULL DEFAULT 0 CHECK (total_funds >= 0),
    claim_processing_fee BIGINT      NOT NULL DEFAULT 0 CHECK (claim_processing_fee >= 0),
    last_subscription_id BIGINT      NOT NULL DEFAULT 0,
    last_claim_id        BIGINT      NOT NULL DEFAULT 0,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`)
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
    id             BIGINT PRIMARY KEY,
    subscriber     TEXT        NOT NULL,
    monthly_fee    BIGINT      NOT NULL,
    coverage_limit BIGINT      NOT NULL,
    deductible     BIGINT      NOT NULL,
    start_date     TIMESTAMPTZ NOT NULL,
    end_date       TIMESTAMPTZ NOT NULL,
    is_active      BOOLEAN     NOT NULL DEFAULT TRUE,
    canceled_at    TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
    id                 BIGINT PRIMARY KEY,
    claimant           TEXT        NOT NULL,
    subscription_id    BIGINT      NOT NULL,
    amount             BIGINT      NOT NULL,
    document_reference TEXT        NOT NULL DEFAULT '',
    status             SMALLINT    NOT NULL DEFAULT 0 CHECK (status BETWEEN 0 AND 4),
    rejection_reason   TEXT        NOT NULL DEFAULT '',
    processing_fee     BIGINT      NOT NULL DEFAULT 0,
    decided_at         TIMESTAMPTZ,
    paid_at            TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    claim_id        BIGINT PRIMARY KEY,
    is_verified     BOOLEAN     NOT NULL,
    verified_amount BIGINT      NOT NULL,
    verifier        TEXT        NOT NULL,
    verified_at     TIMESTAMPTZ NOT NULL
);`)
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
    seq             BIGSERIAL PRIMARY KEY,
    id              TEXT        NOT NULL UNIQUE,
    kind            TEXT        NOT NULL,
    account         TEXT        NOT NULL,
    amount          BIGINT      NOT NULL,
    balance_after   BIGINT      NOT NULL,
    subscription_id BIGINT      NOT NULL DEFAULT 0,
    claim_id        BIGINT      NOT NULL DEFAULT 0,
    reference       TEXT        NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
