// Package sqlite implements store.Store on SQLite through Grove ORM and its
// pure-Go sqlitedriver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

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
	_ queryer     = (*sqlitedriver.SqliteDB)(nil)
	_ queryer     = (*sqlitedriver.SqliteTx)(nil)
)

// queryer is satisfied by both the driver and an open driver transaction.
type queryer interface {
	NewSelect(model ...any) *sqlitedriver.SelectQuery
	NewInsert(model any) *sqlitedriver.InsertQuery
	NewUpdate(model any) *sqlitedriver.UpdateQuery
}

// conn runs entity queries against either the pool or an open transaction.
type conn struct {
	q queryer
}

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	conn
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	sdb := sqlitedriver.Unwrap(db)
	return &Store{conn: conn{q: sdb}, db: db, sdb: sdb}
}

// Open opens the database at dsn. In-memory databases are pinned to a single
// connection so every query sees the same data; file databases get a busy
// timeout so concurrent writers wait instead of failing.
func Open(dsn string) (*Store, error) {
	memoryDB := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
	if !memoryDB && !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	var opts []driver.Option
	if memoryDB {
		opts = append(opts, driver.WithPoolSize(1))
	}

	sdb := sqlitedriver.New()
	if err := sdb.Open(context.Background(), dsn, opts...); err != nil {
		return nil, fmt.Errorf("reimburse/sqlite: open: %w", err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("reimburse/sqlite: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("%w: sqlite: create migration executor: %v", reimburse.ErrMigrationFailed, err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %v", reimburse.ErrMigrationFailed, err)
	}
	return nil
}

// Atomic runs fn inside a database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: sqlite: begin: %v", reimburse.ErrTransactionFailed, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if err = fn(ctx, &conn{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: sqlite: commit: %v", reimburse.ErrTransactionFailed, err)
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
	res, err := c.q.NewInsert(toSubscriptionModel(s)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reimburse/sqlite: insert subscription: %w", err)
	}
	return expectRows(res, reimburse.ErrAlreadyExists)
}

func (c *conn) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := c.q.NewSelect(m).
		Where("id = ?", int64(subID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reimburse.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (c *conn) UpdateSubscription(ctx context.Context, s *subscription.Subscription) error {
	res, err := c.q.NewUpdate(toSubscriptionModel(s)).
		Column("end_date", "is_active", "canceled_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reimburse/sqlite: update subscription: %w", err)
	}
	return expectRows(res, reimburse.ErrSubscriptionNotFound)
}

func (c *conn) ListSubscriptionIDs(ctx context.Context, subscriber types.Account) ([]subscription.ID, error) {
	var models []subscriptionModel
	err := c.q.NewSelect(&models).
		Column("id").
		Where("subscriber = ?", subscriber).
		OrderExpr("id ASC").
		Scan(ctx)
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
	res, err := c.q.NewInsert(toClaimModel(cl)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reimburse/sqlite: insert claim: %w", err)
	}
	return expectRows(res, reimburse.ErrAlreadyExists)
}

func (c *conn) GetClaim(ctx context.Context, claimID claim.ID) (*claim.Claim, error) {
	m := new(claimModel)
	err := c.q.NewSelect(m).
		Where("id = ?", int64(claimID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reimburse.ErrClaimNotFound
		}
		return nil, err
	}
	return fromClaimModel(m)
}

func (c *conn) UpdateClaim(ctx context.Context, cl *claim.Claim) error {
	res, err := c.q.NewUpdate(toClaimModel(cl)).
		Column("status", "rejection_reason", "decided_at", "paid_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reimburse/sqlite: update claim: %w", err)
	}
	return expectRows(res, reimburse.ErrClaimNotFound)
}

func (c *conn) ListClaimIDs(ctx context.Context, claimant types.Account) ([]claim.ID, error) {
	var models []claimModel
	err := c.q.NewSelect(&models).
		Column("id").
		Where("claimant = ?", claimant).
		OrderExpr("id ASC").
		Scan(ctx)
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
	var models []claimModel
	q := c.q.NewSelect(&models)

	if opts.Status != nil {
		q = q.Where("status = ?", int64(*opts.Status))
	}
	q = page(q, opts.Limit, opts.Offset)
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
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
	res, err := c.q.NewInsert(toVerificationModel(v)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reimburse/sqlite: insert verification: %w", err)
	}
	return expectRows(res, reimburse.ErrAlreadyExists)
}

func (c *conn) GetVerification(ctx context.Context, claimID claim.ID) (*verification.Verification, error) {
	m := new(verificationModel)
	err := c.q.NewSelect(m).
		Where("claim_id = ?", int64(claimID)).
		Scan(ctx)
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
	err := c.q.NewSelect(m).
		Where("id = ?", 1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, reimburse.ErrStoreNotReady
		}
		return nil, err
	}
	return fromStateModel(m)
}

func (c *conn) PutState(ctx context.Context, st *fund.State) error {
	_, err := c.q.NewInsert(toStateModel(st)).
		OnConflict("(id) DO UPDATE").
		Set("owner = excluded.owner").
		Set("total_funds = excluded.total_funds").
		Set("claim_processing_fee = excluded.claim_processing_fee").
		Set("last_subscription_id = excluded.last_subscription_id").
		Set("last_claim_id = excluded.last_claim_id").
		Set("updated_at = excluded.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reimburse/sqlite: put state: %w", err)
	}
	return nil
}

func (c *conn) RecordMovement(ctx context.Context, mv *fund.Movement) error {
	res, err := c.q.NewInsert(toMovementModel(mv)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reimburse/sqlite: insert movement: %w", err)
	}
	return expectRows(res, reimburse.ErrAlreadyExists)
}

func (c *conn) ListMovements(ctx context.Context, opts fund.ListOpts) ([]*fund.Movement, error) {
	var models []movementModel
	q := c.q.NewSelect(&models)

	if !opts.Account.IsZero() {
		q = q.Where("account = ?", opts.Account)
	}
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	q = page(q, opts.Limit, opts.Offset)
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
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

// page applies limit and offset. SQLite rejects OFFSET without LIMIT, so an
// offset with no limit is paired with the largest limit SQLite accepts.
func page(q *sqlitedriver.SelectQuery, limit, offset int) *sqlitedriver.SelectQuery {
	switch {
	case limit > 0:
		q = q.Limit(limit)
	case offset > 0:
		q = q.Limit(math.MaxInt64)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

func expectRows(res driver.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
