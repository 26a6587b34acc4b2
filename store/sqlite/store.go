// Package sqlite implements the StreamLock store on SQLite via Grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	streamlock "github.com/blicence/streamlock"
	"github.com/blicence/streamlock/balance"
	"github.com/blicence/streamlock/id"
	"github.com/blicence/streamlock/lock"
	slstore "github.com/blicence/streamlock/store"
)

// compile-time interface check
var _ slstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
//
// Compound mutators run their statements back to back without an explicit
// transaction: the engine serializes all writers, so no interleaving writer
// can observe a half-applied operation.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("streamlock/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("streamlock/sqlite: migration failed: %w", err)
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

// ==================== Lock Store ====================

func (s *Store) CreateLock(ctx context.Context, l *lock.Lock) error {
	m := toLockModel(l)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return err
	}

	if err := s.addBalance(ctx, l.Payer, l.Asset, l.InitialLocked().Value, 0); err != nil {
		return err
	}
	if l.StreamType == lock.TypeVesting && l.ImmediateAmount.IsPositive() {
		return s.addBalance(ctx, l.Recipient, l.Asset, 0, l.ImmediateAmount.Value)
	}
	return nil
}

func (s *Store) CreateLocks(ctx context.Context, locks []*lock.Lock) error {
	for _, l := range locks {
		if err := s.CreateLock(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetLock(ctx context.Context, lockID id.LockID) (*lock.Lock, error) {
	m := new(lockModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", lockID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, streamlock.ErrLockNotFound
		}
		return nil, err
	}
	return fromLockModel(m)
}

func (s *Store) ListLocksByPayer(ctx context.Context, payer string, opts lock.ListOpts) ([]*lock.Lock, error) {
	return s.listLocks(ctx, "payer", payer, opts)
}

func (s *Store) ListLocksByRecipient(ctx context.Context, recipient string, opts lock.ListOpts) ([]*lock.Lock, error) {
	return s.listLocks(ctx, "recipient", recipient, opts)
}

func (s *Store) listLocks(ctx context.Context, column, account string, opts lock.ListOpts) ([]*lock.Lock, error) {
	var models []lockModel
	q := s.sdb.NewSelect(&models).Where(column+" = ?", account)

	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*lock.Lock, len(models))
	for i := range models {
		l, err := fromLockModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

func (s *Store) ListLocksByPlan(ctx context.Context, planKey string) ([]*lock.Lock, error) {
	var models []lockModel
	err := s.sdb.NewSelect(&models).
		Where("plan_key = ?", planKey).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*lock.Lock, len(models))
	for i := range models {
		l, err := fromLockModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

func (s *Store) SettleLock(ctx context.Context, st slstore.Settlement) error {
	res, err := s.sdb.NewUpdate((*lockModel)(nil)).
		Set("settled = ?", true).
		Set("active = ?", false).
		Set("updated_at = ?", st.SettledAt).
		Where("id = ?", st.LockID.String()).
		Where("settled = ?", false).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return streamlock.ErrLockSettled
	}

	asset := st.Payout.Asset
	if err := s.addBalance(ctx, st.Payer, asset, -(st.Payout.Value + st.Refund.Value), st.Refund.Value); err != nil {
		return err
	}
	return s.addBalance(ctx, st.Recipient, asset, 0, st.Payout.Value)
}

func (s *Store) ConsumeUsage(ctx context.Context, c slstore.Consumption) error {
	q := s.sdb.NewUpdate((*lockModel)(nil)).
		Set("used_count = used_count + ?", c.N).
		Set("updated_at = ?", now()).
		Where("id = ?", c.LockID.String()).
		Where("settled = ?", false)
	if c.Finalize {
		q = q.Set("settled = ?", true).Set("active = ?", false)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return streamlock.ErrLockSettled
	}

	asset := c.Released.Asset
	if err := s.addBalance(ctx, c.Payer, asset, -c.Released.Value, 0); err != nil {
		return err
	}
	return s.addBalance(ctx, c.Recipient, asset, 0, c.Released.Value)
}

// ==================== Balance Store ====================

func (s *Store) GetBalance(ctx context.Context, account, asset string) (*balance.Record, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("account = ?", account).
		Where("asset = ?", asset).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return balance.NewRecord(account, asset), nil
		}
		return nil, err
	}
	return fromBalanceModel(m), nil
}

// addBalance applies locked/unlocked deltas to an account balance, creating
// the row on first touch.
func (s *Store) addBalance(ctx context.Context, account, asset string, lockedDelta, unlockedDelta int64) error {
	m := &balanceModel{
		Account:   account,
		Asset:     asset,
		Locked:    lockedDelta,
		Unlocked:  unlockedDelta,
		UpdatedAt: now(),
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(account, asset) DO UPDATE").
		Set("locked = streamlock_balances.locked + EXCLUDED.locked").
		Set("unlocked = streamlock_balances.unlocked + EXCLUDED.unlocked").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Authorization Store ====================

func (s *Store) SetAuthorizedCaller(ctx context.Context, account string, enabled bool) error {
	if enabled {
		m := &authorizedCallerModel{Account: account, CreatedAt: now()}
		_, err := s.sdb.NewInsert(m).
			OnConflict("(account) DO NOTHING").
			Exec(ctx)
		return err
	}

	_, err := s.sdb.NewDelete((*authorizedCallerModel)(nil)).
		Where("account = ?", account).
		Exec(ctx)
	return err
}

func (s *Store) IsAuthorized(ctx context.Context, account string) (bool, error) {
	m := new(authorizedCallerModel)
	err := s.sdb.NewSelect(m).
		Where("account = ?", account).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ==================== Parameter Store ====================

func (s *Store) GetStreamParams(ctx context.Context) (*lock.Params, error) {
	m := new(paramsModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", 1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, streamlock.ErrNotFound
		}
		return nil, err
	}
	return fromParamsModel(m), nil
}

func (s *Store) SetStreamParams(ctx context.Context, p lock.Params) error {
	m := toParamsModel(p, now())
	_, err := s.sdb.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("min_amount = EXCLUDED.min_amount").
		Set("min_duration_ns = EXCLUDED.min_duration_ns").
		Set("max_duration_ns = EXCLUDED.max_duration_ns").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
