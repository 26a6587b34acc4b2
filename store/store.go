package store

import (
	"context"
	"time"

	"github.com/blicence/streamlock/balance"
	"github.com/blicence/streamlock/id"
	"github.com/blicence/streamlock/lock"
	"github.com/blicence/streamlock/types"
)

// Settlement carries everything a store needs to finalize a lock and move
// its balances in one atomic step.
type Settlement struct {
	LockID    id.LockID
	SettledAt time.Time
	Payout    types.Amount // paid out to the recipient
	Refund    types.Amount // returned to the payer's unlocked balance
	Payer     string
	Recipient string
}

// Consumption carries a usage-pool draw-down. Released is the value moved to
// the recipient for the consumed units; Finalize marks the pool settled when
// the quota is fully used.
type Consumption struct {
	LockID    id.LockID
	N         int64
	Released  types.Amount
	Finalize  bool
	Payer     string
	Recipient string
}

// Store is the unified storage interface for all StreamLock entities.
// Compound operations (CreateLock, CreateLocks, SettleLock, ConsumeUsage)
// apply the lock change and its balance movements atomically: either every
// row changes or none does.
type Store interface {
	// Lock methods
	CreateLock(ctx context.Context, l *lock.Lock) error
	CreateLocks(ctx context.Context, locks []*lock.Lock) error
	GetLock(ctx context.Context, lockID id.LockID) (*lock.Lock, error)
	ListLocksByPayer(ctx context.Context, payer string, opts lock.ListOpts) ([]*lock.Lock, error)
	ListLocksByRecipient(ctx context.Context, recipient string, opts lock.ListOpts) ([]*lock.Lock, error)
	ListLocksByPlan(ctx context.Context, planKey string) ([]*lock.Lock, error)
	SettleLock(ctx context.Context, s Settlement) error
	ConsumeUsage(ctx context.Context, c Consumption) error

	// Balance methods
	GetBalance(ctx context.Context, account, asset string) (*balance.Record, error)

	// Authorization methods
	SetAuthorizedCaller(ctx context.Context, account string, enabled bool) error
	IsAuthorized(ctx context.Context, account string) (bool, error)

	// Parameter methods
	GetStreamParams(ctx context.Context) (*lock.Params, error)
	SetStreamParams(ctx context.Context, p lock.Params) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
