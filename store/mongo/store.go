// Package mongo implements store.Store on MongoDB via Grove ORM. Atomic units
// of work use multi-document transactions and therefore need a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	reimburse "github.com/xraph/reimburse"
	"github.com/xraph/reimburse/claim"
	"github.com/xraph/reimburse/fund"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/subscription"
	"github.com/xraph/reimburse/types"
	"github.com/xraph/reimburse/verification"
)

// Collection name constants.
const (
	colState         = "reimburse_state"
	colCounters      = "reimburse_counters"
	colSubscriptions = "reimburse_subscriptions"
	colClaims        = "reimburse_claims"
	colVerifications = "reimburse_verifications"
	colMovements     = "reimburse_movements"
)

// compile-time interface checks
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*conn)(nil)
)

// sessionTx is the part of the driver transaction Atomic relies on.
type sessionTx interface {
	SessionContext(ctx context.Context) context.Context
}

// conn issues queries through the grove driver. Inside a transaction the
// session travels in ctx, so the same conn serves both direct and
// transactional calls.
type conn struct {
	mdb *mongodriver.MongoDB
}

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	conn
	db *grove.DB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{conn: conn{mdb: mongodriver.Unwrap(db)}, db: db}
}

// Open connects to uri and uses the named database.
func Open(uri, database string) (*Store, error) {
	drv := mongodriver.New()
	if err := drv.Open(context.Background(), uri, mongodriver.WithDatabase(database)); err != nil {
		return nil, fmt.Errorf("reimburse/mongo: connect: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		return nil, fmt.Errorf("reimburse/mongo: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Atomic runs fn inside a multi-document transaction. fn is never re-run on
// a transient error; it may have side effects outside the database.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	gtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: mongo: begin: %w", reimburse.ErrTransactionFailed, err)
	}
	sess, ok := gtx.Raw().(sessionTx)
	if !ok {
		_ = gtx.Rollback()
		return fmt.Errorf("%w: mongo: driver transaction %T carries no session", reimburse.ErrTransactionFailed, gtx.Raw())
	}

	if err := fn(sess.SessionContext(ctx), &s.conn); err != nil {
		if rbErr := gtx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	if err := gtx.Commit(); err != nil {
		return fmt.Errorf("%w: mongo: commit: %w", reimburse.ErrTransactionFailed, err)
	}
	return nil
}

// Migrate creates indexes for all reimburse collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: mongo: %s indexes: %w", reimburse.ErrMigrationFailed, col, err)
		}
	}
	// Transactions cannot create collections on older servers.
	for _, col := range []string{colState, colCounters, colVerifications} {
		err := s.mdb.Database().CreateCollection(ctx, col)
		if err != nil && !isNamespaceExists(err) {
			return fmt.Errorf("%w: mongo: create %s: %w", reimburse.ErrMigrationFailed, col, err)
		}
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
	if _, err := c.mdb.NewInsert(toSubscriptionModel(s)).Exec(ctx); err != nil {
		return insertErr("create subscription", err)
	}
	return nil
}

func (c *conn) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := c.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(subID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reimburse.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("reimburse/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (c *conn) UpdateSubscription(ctx context.Context, s *subscription.Subscription) error {
	m := toSubscriptionModel(s)
	set := bson.M{
		"end_date":   m.EndDate,
		"is_active":  m.IsActive,
		"updated_at": m.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if m.CanceledAt != nil {
		set["canceled_at"] = *m.CanceledAt
	} else {
		update["$unset"] = bson.M{"canceled_at": ""}
	}

	res, err := c.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(update).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reimburse/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return reimburse.ErrSubscriptionNotFound
	}
	return nil
}

func (c *conn) ListSubscriptionIDs(ctx context.Context, subscriber types.Account) ([]subscription.ID, error) {
	var models []subscriptionModel
	err := c.mdb.NewFind(&models).
		Filter(bson.M{"subscriber": subscriber.String()}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Project(bson.M{"_id": 1}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reimburse/mongo: list subscription ids: %w", err)
	}
	ids := make([]subscription.ID, len(models))
	for i := range models {
		ids[i] = subscription.ID(models[i].ID) //nolint:gosec // ids are allocated from a uint64 counter
	}
	return ids, nil
}

// ==================== Claim Store ====================

func (c *conn) CreateClaim(ctx context.Context, cl *claim.Claim) error {
	if _, err := c.mdb.NewInsert(toClaimModel(cl)).Exec(ctx); err != nil {
		return insertErr("create claim", err)
	}
	return nil
}

func (c *conn) GetClaim(ctx context.Context, claimID claim.ID) (*claim.Claim, error) {
	var m claimModel
	err := c.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(claimID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reimburse.ErrClaimNotFound
		}
		return nil, fmt.Errorf("reimburse/mongo: get claim: %w", err)
	}
	return fromClaimModel(&m)
}

func (c *conn) UpdateClaim(ctx context.Context, cl *claim.Claim) error {
	m := toClaimModel(cl)
	set := bson.M{
		"status":           m.Status,
		"rejection_reason": m.RejectionReason,
		"updated_at":       m.UpdatedAt,
	}
	unset := bson.M{}
	if m.DecidedAt != nil {
		set["decided_at"] = *m.DecidedAt
	} else {
		unset["decided_at"] = ""
	}
	if m.PaidAt != nil {
		set["paid_at"] = *m.PaidAt
	} else {
		unset["paid_at"] = ""
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := c.mdb.NewUpdate((*claimModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(update).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reimburse/mongo: update claim: %w", err)
	}
	if res.MatchedCount() == 0 {
		return reimburse.ErrClaimNotFound
	}
	return nil
}

func (c *conn) ListClaimIDs(ctx context.Context, claimant types.Account) ([]claim.ID, error) {
	var models []claimModel
	err := c.mdb.NewFind(&models).
		Filter(bson.M{"claimant": claimant.String()}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Project(bson.M{"_id": 1}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("reimburse/mongo: list claim ids: %w", err)
	}
	ids := make([]claim.ID, len(models))
	for i := range models {
		ids[i] = claim.ID(models[i].ID) //nolint:gosec // ids are allocated from a uint64 counter
	}
	return ids, nil
}

func (c *conn) ListClaims(ctx context.Context, opts claim.ListOpts) ([]*claim.Claim, error) {
	var models []claimModel

	filter := bson.M{}
	if opts.Status != nil {
		filter["status"] = int32(*opts.Status) //nolint:gosec // status is a small enum
	}

	q := c.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("reimburse/mongo: list claims: %w", err)
	}

	result := make([]*claim.Claim, 0, len(models))
	for i := range models {
		cl, err := fromClaimModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, cl)
	}
	return result, nil
}

// ==================== Verification Store ====================

func (c *conn) CreateVerification(ctx context.Context, v *verification.Verification) error {
	if _, err := c.mdb.NewInsert(toVerificationModel(v)).Exec(ctx); err != nil {
		return insertErr("create verification", err)
	}
	return nil
}

func (c *conn) GetVerification(ctx context.Context, claimID claim.ID) (*verification.Verification, error) {
	var m verificationModel
	err := c.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(claimID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reimburse.ErrVerificationNotFound
		}
		return nil, fmt.Errorf("reimburse/mongo: get verification: %w", err)
	}
	return fromVerificationModel(&m)
}

// ==================== Fund Store ====================

func (c *conn) GetState(ctx context.Context) (*fund.State, error) {
	var m stateModel
	err := c.mdb.NewFind(&m).
		Filter(bson.M{"_id": stateDocID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, reimburse.ErrStoreNotReady
		}
		return nil, fmt.Errorf("reimburse/mongo: get state: %w", err)
	}
	return fromStateModel(&m)
}

func (c *conn) PutState(ctx context.Context, st *fund.State) error {
	m := toStateModel(st)
	_, err := c.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"owner":                m.Owner,
			"total_funds":          m.TotalFunds,
			"claim_processing_fee": m.ClaimProcessingFee,
			"last_subscription_id": m.LastSubscriptionID,
			"last_claim_id":        m.LastClaimID,
			"created_at":           m.CreatedAt,
			"updated_at":           m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reimburse/mongo: put state: %w", err)
	}
	return nil
}

func (c *conn) RecordMovement(ctx context.Context, m *fund.Movement) error {
	seq, err := c.nextSeq(ctx, colMovements)
	if err != nil {
		return err
	}
	if _, err := c.mdb.NewInsert(toMovementModel(m, seq)).Exec(ctx); err != nil {
		return insertErr("record movement", err)
	}
	return nil
}

func (c *conn) ListMovements(ctx context.Context, opts fund.ListOpts) ([]*fund.Movement, error) {
	var models []movementModel

	filter := bson.M{}
	if !opts.Account.IsZero() {
		filter["account"] = opts.Account.String()
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := c.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("reimburse/mongo: list movements: %w", err)
	}

	result := make([]*fund.Movement, 0, len(models))
	for i := range models {
		mv, err := fromMovementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, mv)
	}
	return result, nil
}

// ==================== Helpers ====================

// nextSeq increments the named counter document and returns the new value.
// Inside a transaction the counter write conflicts with any concurrent
// writer, which keeps the sequence gap-free on commit.
func (c *conn) nextSeq(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := c.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("reimburse/mongo: next seq %s: %w", name, err)
	}
	return doc.Value, nil
}

func insertErr(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return reimburse.ErrAlreadyExists
	}
	return fmt.Errorf("reimburse/mongo: %s: %w", op, err)
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isNamespaceExists reports the server's NamespaceExists (48) error.
func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == 48
}

// migrationIndexes returns the index definitions for all reimburse collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{Keys: bson.D{{Key: "subscriber", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colClaims: {
			{Keys: bson.D{{Key: "claimant", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colMovements: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "account", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "seq", Value: 1}}},
		},
	}
}
