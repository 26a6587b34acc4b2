// Package memory provides an in-memory Store implementation for StreamLock.
// It is intended for tests and development; nothing survives a restart.
package memory

import (
	"context"
	"sync"

	streamlock "github.com/blicence/streamlock"
	"github.com/blicence/streamlock/balance"
	"github.com/blicence/streamlock/id"
	"github.com/blicence/streamlock/lock"
	"github.com/blicence/streamlock/store"
)

type Store struct {
	mu sync.RWMutex

	// Lock storage, with insertion-ordered indices. order holds every lock
	// key in global creation order; the per-account indices are append-only
	// slices of it.
	locks          map[string]*lock.Lock
	order          []string
	payerIndex     map[string][]string
	recipientIndex map[string][]string

	// Balance storage keyed by account|asset
	balances map[string]*balance.Record

	// Authorization allow-list
	authorized map[string]bool

	// Stream parameters, nil until set
	params *lock.Params
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		locks:          make(map[string]*lock.Lock),
		payerIndex:     make(map[string][]string),
		recipientIndex: make(map[string][]string),
		balances:       make(map[string]*balance.Record),
		authorized:     make(map[string]bool),
	}
}

// Lock Store implementation

func (s *Store) CreateLock(_ context.Context, l *lock.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createLockLocked(l)
}

func (s *Store) CreateLocks(_ context.Context, locks []*lock.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range locks {
		if _, exists := s.locks[l.ID.String()]; exists {
			return streamlock.ErrAlreadyExists
		}
	}
	for _, l := range locks {
		if err := s.createLockLocked(l); err != nil {
			return err
		}
	}
	return nil
}

// createLockLocked inserts the lock and applies its creation-time balance
// movements. Caller must hold s.mu.
func (s *Store) createLockLocked(l *lock.Lock) error {
	key := l.ID.String()
	if _, exists := s.locks[key]; exists {
		return streamlock.ErrAlreadyExists
	}

	cp := *l
	s.locks[key] = &cp
	s.order = append(s.order, key)
	s.payerIndex[l.Payer] = append(s.payerIndex[l.Payer], key)
	s.recipientIndex[l.Recipient] = append(s.recipientIndex[l.Recipient], key)

	payer := s.record(l.Payer, l.Asset)
	payer.Locked = payer.Locked.Add(l.InitialLocked())

	if l.StreamType == lock.TypeVesting && l.ImmediateAmount.IsPositive() {
		recipient := s.record(l.Recipient, l.Asset)
		recipient.Unlocked = recipient.Unlocked.Add(l.ImmediateAmount)
	}
	return nil
}

func (s *Store) GetLock(_ context.Context, lockID id.LockID) (*lock.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.locks[lockID.String()]
	if !ok {
		return nil, streamlock.ErrLockNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *Store) ListLocksByPayer(_ context.Context, payer string, opts lock.ListOpts) ([]*lock.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listByIndex(s.payerIndex[payer], opts), nil
}

func (s *Store) ListLocksByRecipient(_ context.Context, recipient string, opts lock.ListOpts) ([]*lock.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listByIndex(s.recipientIndex[recipient], opts), nil
}

func (s *Store) ListLocksByPlan(_ context.Context, planKey string) ([]*lock.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*lock.Lock, 0)
	for _, key := range s.order {
		l := s.locks[key]
		if l.PlanKey == planKey {
			cp := *l
			result = append(result, &cp)
		}
	}
	return result, nil
}

// listByIndex filters an ordered id index against opts. Caller must hold at
// least a read lock.
func (s *Store) listByIndex(keys []string, opts lock.ListOpts) []*lock.Lock {
	result := make([]*lock.Lock, 0, len(keys))
	for _, key := range keys {
		l, ok := s.locks[key]
		if !ok {
			continue
		}
		if opts.ActiveOnly && !l.Active {
			continue
		}
		cp := *l
		result = append(result, &cp)
	}

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}
	return result[start:end]
}

func (s *Store) SettleLock(_ context.Context, st store.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[st.LockID.String()]
	if !ok {
		return streamlock.ErrLockNotFound
	}
	if l.Settled {
		return streamlock.ErrLockSettled
	}

	l.Settled = true
	l.Active = false
	l.UpdatedAt = st.SettledAt

	payer := s.record(st.Payer, l.Asset)
	payer.Locked = payer.Locked.Subtract(st.Payout.Add(st.Refund))
	payer.Unlocked = payer.Unlocked.Add(st.Refund)

	recipient := s.record(st.Recipient, l.Asset)
	recipient.Unlocked = recipient.Unlocked.Add(st.Payout)
	return nil
}

func (s *Store) ConsumeUsage(_ context.Context, c store.Consumption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[c.LockID.String()]
	if !ok {
		return streamlock.ErrLockNotFound
	}
	if l.Settled {
		return streamlock.ErrLockSettled
	}

	l.UsedCount += c.N
	if c.Finalize {
		l.Settled = true
		l.Active = false
	}
	l.Touch()

	payer := s.record(c.Payer, l.Asset)
	payer.Locked = payer.Locked.Subtract(c.Released)

	recipient := s.record(c.Recipient, l.Asset)
	recipient.Unlocked = recipient.Unlocked.Add(c.Released)
	return nil
}

// Balance Store implementation

func (s *Store) GetBalance(_ context.Context, account, asset string) (*balance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.balances[balanceKey(account, asset)]; ok {
		cp := *r
		return &cp, nil
	}
	return balance.NewRecord(account, asset), nil
}

// record returns the live balance record for account/asset, creating a zero
// record if absent. Caller must hold s.mu.
func (s *Store) record(account, asset string) *balance.Record {
	key := balanceKey(account, asset)
	if r, ok := s.balances[key]; ok {
		return r
	}
	r := balance.NewRecord(account, asset)
	s.balances[key] = r
	return r
}

func balanceKey(account, asset string) string {
	return account + "|" + asset
}

// Authorization Store implementation

func (s *Store) SetAuthorizedCaller(_ context.Context, account string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled {
		s.authorized[account] = true
	} else {
		delete(s.authorized, account)
	}
	return nil
}

func (s *Store) IsAuthorized(_ context.Context, account string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.authorized[account], nil
}

// Parameter Store implementation

func (s *Store) GetStreamParams(_ context.Context) (*lock.Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.params == nil {
		return nil, streamlock.ErrNotFound
	}
	cp := *s.params
	return &cp, nil
}

func (s *Store) SetStreamParams(_ context.Context, p lock.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.params = &p
	return nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
