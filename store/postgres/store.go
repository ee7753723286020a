// Package postgres implements store.Store on PostgreSQL through Grove ORM and
// its pgx-backed pgdriver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"
	"github.com/xraph/grove/scan"
	"github.com/xraph/grove/schema"

	reimburse "github.com/xraph/reimburse"
	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

// compile-time interface checks
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*conn)(nil)
	_ execer      = (*pgdriver.PgDB)(nil)
	_ execer      = (driver.Tx)(nil)
)

// execer is satisfied by both the driver and an open driver transaction.
type execer interface {
	Exec(ctx context.Context, query string, args ...any) (driver.Result, error)
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
}

type conn struct {
	q execer
	// inTx enables row locks on the state row.
	inTx bool
}

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	conn
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	pg := pgdriver.Unwrap(db)
	return &Store{conn: conn{q: pg}, db: db, pg: pg}
}

// Open connects to dsn and wraps the connection in a grove handle.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pg := pgdriver.New()
	if err := pg.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("reimburse/postgres: connect: %w", err)
	}
	db, err := grove.Open(pg)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("reimburse/postgres: connect: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("%w: postgres: create migration executor: %v", reimburse.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %v", reimburse.ErrMigrationFailed, err)
	}
	return nil
}

// Rollback reverts the most recently applied migration batch.
func (s *Store) Rollback(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("%w: postgres: create migration executor: %v", reimburse.ErrMigrationFailed, err)
	}
	if _, err := migrate.NewOrchestrator(executor, Migrations).Rollback(ctx); err != nil {
		return fmt.Errorf("%w: postgres: rollback: %v", reimburse.ErrMigrationFailed, err)
	}
	return nil
}

// Atomic runs fn inside a grove transaction. Reading the state row inside fn
// takes a row lock, so units of work that touch the pool are serialized.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	gtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: postgres: begin: %v", reimburse.ErrTransactionFailed, err)
	}
	dtx, ok := gtx.Raw().(driver.Tx)
	if !ok {
		_ = gtx.Rollback()
		return fmt.Errorf("%w: postgres: unexpected transaction type %T", reimburse.ErrTransactionFailed, gtx.Raw())
	}
	defer func() {
		if err != nil {
			_ = gtx.Rollback() //nolint:errcheck // the fn or commit error is reported
		}
	}()

	if err = fn(ctx, &conn{q: dtx, inTx: true}); err != nil {
		return err
	}
	if err = gtx.Commit(); err != nil {
		return fmt.Errorf("%w: postgres: commit: %v", reimburse.ErrTransactionFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscription Store ====================

func (c *conn) CreateSubscription(ctx context.Context, s *subscription.Subscription) error {
	m := toSubscriptionModel(s)
	res, err := c.q.Exec(ctx, `INSERT INTO reimburse_subscriptions (`+columns(m)+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT DO NOTHING`,
		m.ID, m.Subscriber, m.MonthlyFee, m.CoverageLimit, m.Deductible,
		m.StartDate, m.EndDate, m.IsActive, m.CanceledAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("reimburse/postgres: insert subscription: %w", err)
	}
	return expectRows(res, reimburse.ErrAlreadyExists)
}

func (c *conn) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := c.selectOne(ctx, m, `SELECT `+columns(m)+` FROM reimburse_subscriptions WHERE id = $1`, int64(subID))
	if err != nil {
		if isNoRows(err) {
			return nil, reimburse.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (c *conn) UpdateSubscription(ctx context.Context, s *subscription.Subscription) error {
	m := toSubscriptionModel(s)
	res, err := c.q.Exec(ctx, `UPDATE reimburse_subscriptions
SET end_date = $1, is_active = $2, canceled_at = $3, updated_at = $4
WHERE id = $5`,
		m.EndDate, m.IsActive, m.CanceledAt, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("reimburse/postgres: update subscription: %w", err)
	}
	return expectRows(res, reimburse.ErrSubscriptionNotFound)
}

func (c *conn) ListSubscriptionIDs(ctx context.Context, subscriber types.Account) ([]subscription.ID, error) {
	var models []subscriptionModel
	err := c.selectMany(ctx, &models,
		`SELECT id FROM reimburse_subscriptions WHERE subscriber = $1 ORDER BY id`, subscriber.String())
	if err != nil {
		return nil, err
	}
	ids := make([]subscription.ID, len(models))
	for i := range models {
		ids[i] = subscription.ID(models[i].ID)
	}
	return ids, nil
}

// ==================== Claim Store ====================

func (c *conn) CreateClaim(ctx context.Context, cl *claim.Claim) error {
	m := toClaimModel(cl)
	res, err := c.q.Exec(ctx, `INSERT INTO reimburse_claims (`+columns(m)+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT DO NOTHING`,
		m.ID, m.Claimant, m.SubscriptionID, m.Amount, m.DocumentReference, m.Status,
		m.RejectionReason, m.ProcessingFee, m.DecidedAt, m.PaidAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("reimburse/postgres: insert claim: %w", err)
	}
	return expectRows(res, reimburse.ErrAlreadyExists)
}

func (c *conn) GetClaim(ctx context.Context, claimID claim.ID) (*claim.Claim, error) {
	m := new(claimModel)
	err := c.selectOne(ctx, m, `SELECT `+columns(m)+` FROM reimburse_claims WHERE id = $1`, int64(claimID))
	if err != nil {
		if isNoRows(err) {
			return nil, reimburse.ErrClaimNotFound
		}
		return nil, err
	}
	return fromClaimModel(m)
}

func (c *conn) UpdateClaim(ctx context.Context, cl *claim.Claim) error {
	m := toClaimModel(cl)
	res, err := c.q.Exec(ctx, `UPDATE reimburse_claims
SET status = $1, rejection_reason = $2, decided_at = $3, paid_at = $4, updated_at = $5
WHERE id = $6`,
		m.Status, m.RejectionReason, m.DecidedAt, m.PaidAt, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("reimburse/postgres: update claim: %w", err)
	}
	return expectRows(res, reimburse.ErrClaimNotFound)
}

func (c *conn) ListClaimIDs(ctx context.Context, claimant types.Account) ([]claim.ID, error) {
	var models []claimModel
	err := c.selectMany(ctx, &models,
		`SELECT id FROM reimburse_claims WHERE claimant = $1 ORDER BY id`, claimant.String())
	if err != nil {
		return nil, err
	}
	ids := make([]claim.ID, len(models))
	for i := range models {
		ids[i] = claim.ID(models[i].ID)
	}
	return ids, nil
}

func (c *conn) ListClaims(ctx context.Context, opts claim.ListOpts) ([]*claim.Claim, error) {
	query := `SELECT ` + columns((*claimModel)(nil)) + ` FROM reimburse_claims`
	var args []any
	if opts.Status != nil {
		args = append(args, int16(*opts.Status))
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY id" + pageClause(&args, opts.Limit, opts.Offset)

	var models []claimModel
	if err := c.selectMany(ctx, &models, query, args...); err != nil {
		return nil, err
	}

	result := make([]*claim.Claim, len(models))
	for i := range models {
		cl, err := fromClaimModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = cl
	}
	return result, nil
}

// ==================== Verification Store ====================

func (c *conn) CreateVerification(ctx context.Context, v *verification.Verification) error {
	m := toVerificationModel(v)
	res, err := c.q.Exec(ctx, `INSERT INTO reimburse_verifications (`+columns(m)+`)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT DO NOTHING`,
		m.ClaimID, m.IsVerified, m.VerifiedAmount, m.Verifier, m.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("reimburse/postgres: insert verification: %w", err)
	}
	return expectRows(res, reimburse.ErrAlreadyExists)
}

func (c *conn) GetVerification(ctx context.Context, claimID claim.ID) (*verification.Verification, error) {
	m := new(verificationModel)
	err := c.selectOne(ctx, m,
		`SELECT `+columns(m)+` FROM reimburse_verifications WHERE claim_id = $1`, int64(claimID))
	if err != nil {
		if isNoRows(err) {
			return nil, reimburse.ErrVerificationNotFound
		}
		return nil, err
	}
	return fromVerificationModel(m)
}

// ==================== Fund Store ====================

func (c *conn) GetState(ctx context.Context) (*fund.State, error) {
	m := new(stateModel)
	query := `SELECT ` + columns(m) + ` FROM reimburse_state WHERE id = 1`
	if c.inTx {
		query += " FOR UPDATE"
	}

	if err := c.selectOne(ctx, m, query); err != nil {
		if isNoRows(err) {
			return nil, reimburse.ErrStoreNotReady
		}
		return nil, err
	}
	return fromStateModel(m)
}

func (c *conn) PutState(ctx context.Context, st *fund.State) error {
	m := toStateModel(st)
	_, err := c.q.Exec(ctx, `INSERT INTO reimburse_state (`+columns(m)+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
    owner = EXCLUDED.owner,
    total_funds = EXCLUDED.total_funds,
    claim_processing_fee = EXCLUDED.claim_processing_fee,
    last_subscription_id = EXCLUDED.last_subscription_id,
    last_claim_id = EXCLUDED.last_claim_id,
    updated_at = EXCLUDED.updated_at`,
		m.ID, m.Owner, m.TotalFunds, m.ClaimProcessingFee,
		m.LastSubscriptionID, m.LastClaimID, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("reimburse/postgres: put state: %w", err)
	}
	return nil
}

func (c *conn) RecordMovement(ctx context.Context, mv *fund.Movement) error {
	m := toMovementModel(mv)
	res, err := c.q.Exec(ctx, `INSERT INTO reimburse_movements
    (id, kind, account, amount, balance_after, subscription_id, claim_id, reference, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT DO NOTHING`,
		m.ID, m.Kind, m.Account, m.Amount, m.BalanceAfter,
		m.SubscriptionID, m.ClaimID, m.Reference, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("reimburse/postgres: insert movement: %w", err)
	}
	return expectRows(res, reimburse.ErrAlreadyExists)
}

func (c *conn) ListMovements(ctx context.Context, opts fund.ListOpts) ([]*fund.Movement, error) {
	query := `SELECT ` + columns((*movementModel)(nil)) + ` FROM reimburse_movements`
	var (
		where []string
		args  []any
	)
	if !opts.Account.IsZero() {
		args = append(args, opts.Account.String())
		where = append(where, fmt.Sprintf("account = $%d", len(args)))
	}
	if opts.Kind != "" {
		args = append(args, string(opts.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq" + pageClause(&args, opts.Limit, opts.Offset)

	var models []movementModel
	if err := c.selectMany(ctx, &models, query, args...); err != nil {
		return nil, err
	}

	result := make([]*fund.Movement, len(models))
	for i := range models {
		mv, err := fromMovementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = mv
	}
	return result, nil
}

// ==================== Helpers ====================

// tables caches grove table metadata for the models above.
var tables = schema.NewRegistry()

func table(model any) *schema.Table {
	t, err := tables.Register(model)
	if err != nil {
		panic(err) // models are static; a bad tag is a programming error
	}
	return t
}

// columns lists a model's columns in field order, which is the order
// scan.ScanRow expects.
func columns(model any) string {
	fields := table(model).Fields
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Options.Column
	}
	return strings.Join(cols, ", ")
}

// selectOne scans a single row into dst. Missing rows surface as sql.ErrNoRows.
func (c *conn) selectOne(ctx context.Context, dst any, query string, args ...any) error {
	return scan.ScanRow(c.q.QueryRow(ctx, query, args...), dst, table(dst))
}

// selectMany scans every row into dst, a pointer to a model slice. Columns are
// matched by name, so queries may select a subset.
func (c *conn) selectMany(ctx context.Context, dst any, query string, args ...any) error {
	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	elem := reflect.TypeOf(dst).Elem().Elem()
	if err := scan.ScanRows(rows, dst, table(reflect.New(elem).Interface())); err != nil {
		return err
	}
	return rows.Err()
}

// pageClause appends LIMIT/OFFSET placeholders. A zero limit means no limit.
func pageClause(args *[]any, limit, offset int) string {
	var clause string
	if limit > 0 {
		*args = append(*args, limit)
		clause += fmt.Sprintf(" LIMIT $%d", len(*args))
	}
	if offset > 0 {
		*args = append(*args, offset)
		clause += fmt.Sprintf(" OFFSET $%d", len(*args))
	}
	return clause
}

func expectRows(res driver.Result, errIfNone error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errIfNone
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
