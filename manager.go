package streamlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blicence/streamlock/id"
	"github.com/blicence/streamlock/lock"
	"github.com/blicence/streamlock/plugin"
	"github.com/blicence/streamlock/store"
	"github.com/blicence/streamlock/treasury"
	"github.com/blicence/streamlock/types"
)

// Manager is the stream lock engine. It coordinates the lock ledger, the
// balance accounting, the custody treasury and the plugin hooks.
//
// All mutating operations are serialized under one mutex; queries go
// straight to the store.
type Manager struct {
	store    store.Store
	treasury treasury.Treasury
	plugins  *plugin.Registry
	logger   *slog.Logger
	now      func() time.Time

	// mu serializes every mutating operation.
	mu     sync.Mutex
	params lock.Params
	paused bool
	admin  string
}

// New creates a new Manager instance.
func New(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		treasury: treasury.Noop(),
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		now:      time.Now,
		params:   lock.DefaultParams(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Option configures a Manager instance.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
		m.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(m *Manager) {
		_ = m.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithTreasury sets the custody collaborator. Defaults to a no-op treasury
// for deployments where custody is handled out-of-band.
func WithTreasury(t treasury.Treasury) Option {
	return func(m *Manager) {
		m.treasury = t
	}
}

// WithAdmin names the account allowed to call administrative operations.
func WithAdmin(account string) Option {
	return func(m *Manager) {
		m.admin = account
	}
}

// WithStreamParams sets the initial creation bounds. Persisted params loaded
// at Start take precedence.
func WithStreamParams(p lock.Params) Option {
	return func(m *Manager) {
		m.params = p
	}
}

// WithClock overrides the time source. Tests use this for deterministic
// accrual.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Start migrates the store, loads persisted parameters and initializes
// plugins. There are no background workers: expiry is computed on demand.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.store.Migrate(ctx); err != nil {
		return err
	}

	p, err := m.store.GetStreamParams(ctx)
	switch {
	case err == nil:
		m.params = *p
	case errors.Is(err, ErrNotFound):
		if err := m.store.SetStreamParams(ctx, m.params); err != nil {
			return err
		}
	default:
		return err
	}

	m.plugins.EmitInit(ctx, m)

	m.logger.Info("streamlock started",
		"min_amount", m.params.MinAmount,
		"min_duration", m.params.MinDuration,
		"max_duration", m.params.MaxDuration,
	)

	return nil
}

// Stop shuts down the Manager.
func (m *Manager) Stop() error {
	ctx := context.Background()
	m.plugins.EmitShutdown(ctx)

	return m.store.Close()
}

// StreamEntry is one batch creation request: a linear stream from the common
// payer to Recipient.
type StreamEntry struct {
	Recipient string        `json:"recipient"`
	Total     types.Amount  `json:"total"`
	Duration  time.Duration `json:"duration"`
}

// SettlementResult reports the two-way split of a finalized lock.
type SettlementResult struct {
	Lock   *lock.Lock   `json:"lock"`
	Payout types.Amount `json:"payout"` // moved to the recipient now
	Refund types.Amount `json:"refund"` // returned to the payer
}

// ──────────────────────────────────────────────────
// Creation
// ──────────────────────────────────────────────────

// CreateStreamLock opens a linear stream: Total accrues to the recipient
// evenly over duration, starting now. The caller must be the payer or an
// authorized caller.
func (m *Manager) CreateStreamLock(ctx context.Context, payer, recipient string, total types.Amount, duration time.Duration) (*lock.Lock, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, ErrNoCaller
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}
	if err := m.authorizeFor(ctx, caller, payer); err != nil {
		return nil, err
	}
	if err := m.validateCommon(payer, recipient, total); err != nil {
		return nil, err
	}
	if err := m.validateDuration(duration); err != nil {
		return nil, err
	}

	l := &lock.Lock{
		Entity:      types.NewEntity(),
		ID:          id.NewLockID(),
		Payer:       payer,
		Recipient:   recipient,
		Asset:       total.Asset,
		TotalAmount: total,
		StartTime:   m.now(),
		Duration:    duration,
		StreamType:  lock.TypeLinear,
		Active:      true,
	}

	if err := m.fundAndInsert(ctx, l); err != nil {
		return nil, err
	}

	m.plugins.EmitLockCreated(ctx, l)
	m.logger.Info("stream lock created",
		"id", l.ID,
		"payer", payer,
		"recipient", recipient,
		"total", total,
		"duration", duration,
	)
	return l, nil
}

// CreateVestingStream opens a vesting stream: ImmediateAmount is paid to the
// recipient at creation, the rest vests linearly over duration starting at
// the cliff. Nothing beyond the immediate portion accrues before the cliff.
func (m *Manager) CreateVestingStream(ctx context.Context, payer, recipient string, total types.Amount, cliff time.Time, duration time.Duration, immediate types.Amount) (*lock.Lock, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, ErrNoCaller
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}
	if err := m.authorizeFor(ctx, caller, payer); err != nil {
		return nil, err
	}
	if err := m.validateCommon(payer, recipient, total); err != nil {
		return nil, err
	}
	if err := m.validateDuration(duration); err != nil {
		return nil, err
	}

	now := m.now()
	switch {
	case immediate.Asset != total.Asset:
		return nil, fmt.Errorf("%w: immediate amount asset mismatch", ErrInvalidVestingTerms)
	case immediate.IsNegative():
		return nil, fmt.Errorf("%w: immediate amount is negative", ErrInvalidVestingTerms)
	case immediate.GreaterThan(total):
		return nil, fmt.Errorf("%w: immediate amount exceeds total", ErrInvalidVestingTerms)
	case cliff.Before(now):
		return nil, fmt.Errorf("%w: cliff is in the past", ErrInvalidVestingTerms)
	}

	l := &lock.Lock{
		Entity:          types.NewEntity(),
		ID:              id.NewLockID(),
		Payer:           payer,
		Recipient:       recipient,
		Asset:           total.Asset,
		TotalAmount:     total,
		StartTime:       now,
		Duration:        duration,
		StreamType:      lock.TypeVesting,
		CliffTime:       cliff,
		ImmediateAmount: immediate,
		Active:          true,
	}

	if err := m.fundAndInsert(ctx, l); err != nil {
		return nil, err
	}

	m.plugins.EmitLockCreated(ctx, l)
	m.logger.Info("vesting stream created",
		"id", l.ID,
		"payer", payer,
		"recipient", recipient,
		"total", total,
		"immediate", immediate,
		"cliff", cliff,
		"duration", duration,
	)
	return l, nil
}

// CreateUsagePool opens a usage pool: Total backs usageCount discrete units,
// each consumption releasing its proportional share. Pools never expire by
// clock.
func (m *Manager) CreateUsagePool(ctx context.Context, payer, recipient string, total types.Amount, usageCount int64) (*lock.Lock, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, ErrNoCaller
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}
	if err := m.authorizeFor(ctx, caller, payer); err != nil {
		return nil, err
	}
	if err := m.validateCommon(payer, recipient, total); err != nil {
		return nil, err
	}
	if usageCount <= 0 {
		return nil, fmt.Errorf("%w: usage count must be positive", ErrInvalidUsageTerms)
	}

	l := &lock.Lock{
		Entity:      types.NewEntity(),
		ID:          id.NewLockID(),
		Payer:       payer,
		Recipient:   recipient,
		Asset:       total.Asset,
		TotalAmount: total,
		StartTime:   m.now(),
		StreamType:  lock.TypeUsagePool,
		UsageCount:  usageCount,
		Active:      true,
	}

	if err := m.fundAndInsert(ctx, l); err != nil {
		return nil, err
	}

	m.plugins.EmitLockCreated(ctx, l)
	m.logger.Info("usage pool created",
		"id", l.ID,
		"payer", payer,
		"recipient", recipient,
		"total", total,
		"usage_count", usageCount,
	)
	return l, nil
}

// CreateStreamForCustomerPlan opens a linear stream linked to an external
// customer plan. Only authorized callers may use this path; the plan linkage
// is set once and readable via GetLocksByPlan.
func (m *Manager) CreateStreamForCustomerPlan(ctx context.Context, payer, recipient string, total types.Amount, duration time.Duration, planKey string) (*lock.Lock, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, ErrNoCaller
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}
	if err := m.requireAuthorized(ctx, caller); err != nil {
		return nil, err
	}
	if err := m.validateCommon(payer, recipient, total); err != nil {
		return nil, err
	}
	if err := m.validateDuration(duration); err != nil {
		return nil, err
	}
	if planKey == "" {
		return nil, ValidationError{Field: "plan_key", Message: "must not be empty"}
	}

	l := &lock.Lock{
		Entity:      types.NewEntity(),
		ID:          id.NewLockID(),
		Payer:       payer,
		Recipient:   recipient,
		Asset:       total.Asset,
		TotalAmount: total,
		StartTime:   m.now(),
		Duration:    duration,
		StreamType:  lock.TypeLinear,
		PlanKey:     planKey,
		Active:      true,
	}

	if err := m.fundAndInsert(ctx, l); err != nil {
		return nil, err
	}

	m.plugins.EmitLockCreated(ctx, l)
	m.logger.Info("plan stream created",
		"id", l.ID,
		"payer", payer,
		"recipient", recipient,
		"plan_key", planKey,
	)
	return l, nil
}

// BatchCreateStreams opens N independent linear streams from one payer,
// all-or-nothing: every entry is validated and the whole batch authorized
// before any custody pull or insert happens.
func (m *Manager) BatchCreateStreams(ctx context.Context, payer string, entries []StreamEntry) ([]*lock.Lock, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, ErrNoCaller
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}
	if len(entries) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := m.authorizeFor(ctx, caller, payer); err != nil {
		return nil, err
	}
	for i, e := range entries {
		if err := m.validateCommon(payer, e.Recipient, e.Total); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if err := m.validateDuration(e.Duration); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	now := m.now()
	locks := make([]*lock.Lock, 0, len(entries))
	for _, e := range entries {
		locks = append(locks, &lock.Lock{
			Entity:      types.NewEntity(),
			ID:          id.NewLockID(),
			Payer:       payer,
			Recipient:   e.Recipient,
			Asset:       e.Total.Asset,
			TotalAmount: e.Total,
			StartTime:   now,
			Duration:    e.Duration,
			StreamType:  lock.TypeLinear,
			Active:      true,
		})
	}

	// Pull custody for the whole batch, refunding on any failure so a
	// partial batch never holds funds.
	deposited := make([]*lock.Lock, 0, len(locks))
	rollback := func() {
		for _, l := range deposited {
			if err := m.treasury.Payout(ctx, l.Payer, l.TotalAmount); err != nil {
				m.logger.Error("batch custody reversal failed", "id", l.ID, "error", err)
			}
		}
	}
	for _, l := range locks {
		if err := m.treasury.Deposit(ctx, l.Payer, l.TotalAmount); err != nil {
			rollback()
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		deposited = append(deposited, l)
	}

	if err := m.store.CreateLocks(ctx, locks); err != nil {
		rollback()
		return nil, err
	}

	events := make([]interface{}, len(locks))
	for i, l := range locks {
		events[i] = l
	}
	m.plugins.EmitBatchCreated(ctx, events)
	m.logger.Info("batch streams created", "payer", payer, "count", len(locks))
	return locks, nil
}

// fundAndInsert pulls the lock total into custody, pays any immediate
// vesting portion out, and inserts the row with its balance movements. All
// treasury movement happens before the store mutation, so a transfer failure
// aborts with the ledger untouched and a store failure is compensated by
// reversing the transfers. Caller must hold m.mu.
func (m *Manager) fundAndInsert(ctx context.Context, l *lock.Lock) error {
	if err := m.treasury.Deposit(ctx, l.Payer, l.TotalAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	immediate := l.StreamType == lock.TypeVesting && l.ImmediateAmount.IsPositive()
	if immediate {
		if err := m.treasury.Payout(ctx, l.Recipient, l.ImmediateAmount); err != nil {
			if perr := m.treasury.Payout(ctx, l.Payer, l.TotalAmount); perr != nil {
				m.logger.Error("custody reversal failed", "id", l.ID, "error", perr)
			}
			return fmt.Errorf("%w: immediate payout: %v", ErrTransferFailed, err)
		}
	}

	if err := m.store.CreateLock(ctx, l); err != nil {
		if immediate {
			if derr := m.treasury.Deposit(ctx, l.Recipient, l.ImmediateAmount); derr != nil {
				m.logger.Error("immediate payout reversal failed", "id", l.ID, "error", derr)
			}
		}
		if perr := m.treasury.Payout(ctx, l.Payer, l.TotalAmount); perr != nil {
			m.logger.Error("custody reversal failed", "id", l.ID, "error", perr)
		}
		return err
	}
	return nil
}

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

// SettleStream finalizes a lock in one shot: whatever has accrued (and was
// not already released) goes to the recipient, the remainder returns to the
// payer, and the lock becomes terminal. Calling it before expiry closes the
// lock early; a second call returns ErrLockSettled. The caller must be the
// lock recipient or an authorized caller.
func (m *Manager) SettleStream(ctx context.Context, lockID id.LockID) (*SettlementResult, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, ErrNoCaller
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}

	l, err := m.store.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if l.Settled {
		return nil, ErrLockSettled
	}
	if caller != l.Recipient {
		authorized, err := m.store.IsAuthorized(ctx, caller)
		if err != nil {
			return nil, err
		}
		if !authorized {
			return nil, ErrNotRecipient
		}
	}

	now := m.now()
	res, err := m.finalize(ctx, l, now)
	if err != nil {
		return nil, err
	}

	m.plugins.EmitLockSettled(ctx, res.Lock, res.Payout, res.Refund)
	m.plugins.ObserveSettlement(ctx, l.ID.String(), now.Sub(l.StartTime))
	m.logger.Info("stream settled",
		"id", l.ID,
		"payout", res.Payout,
		"refund", res.Refund,
	)
	return res, nil
}

// CancelStream finalizes a lock at the payer's request, with the same split
// mechanics as settlement at the cancellation instant. Only the payer may
// cancel, and only before settlement.
func (m *Manager) CancelStream(ctx context.Context, lockID id.LockID) (*SettlementResult, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, ErrNoCaller
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}

	l, err := m.store.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if l.Settled {
		return nil, ErrLockSettled
	}
	if caller != l.Payer {
		return nil, ErrNotPayer
	}

	res, err := m.finalize(ctx, l, m.now())
	if err != nil {
		return nil, err
	}

	m.plugins.EmitLockCanceled(ctx, res.Lock, res.Payout, res.Refund)
	m.logger.Info("stream canceled",
		"id", l.ID,
		"payout", res.Payout,
		"refund", res.Refund,
	)
	return res, nil
}

// ClaimStreamsByProducer finalizes every still-active lock streaming to the
// caller, skipping already settled ones, and aggregates what was claimed per
// asset.
func (m *Manager) ClaimStreamsByProducer(ctx context.Context) (*lock.ClaimResult, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return nil, ErrNoCaller
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil, ErrPaused
	}

	locks, err := m.store.ListLocksByRecipient(ctx, caller, lock.ListOpts{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	result := &lock.ClaimResult{TotalClaimed: make(map[string]int64)}
	now := m.now()
	for _, l := range locks {
		if l.Settled {
			continue
		}
		res, err := m.finalize(ctx, l, now)
		if err != nil {
			return nil, err
		}
		m.plugins.EmitLockSettled(ctx, res.Lock, res.Payout, res.Refund)
		m.plugins.ObserveSettlement(ctx, l.ID.String(), now.Sub(l.StartTime))

		result.StreamCount++
		result.TotalClaimed[l.Asset] += res.Payout.Value
	}

	m.logger.Info("producer claim",
		"recipient", caller,
		"streams", result.StreamCount,
		"claimed", result.TotalClaimed,
	)
	return result, nil
}

// finalize applies the one-shot settlement split at instant now: the accrued
// share not already released moves to the recipient, the remainder refunds
// to the payer, and the stored lock flips terminal. Caller must hold m.mu.
func (m *Manager) finalize(ctx context.Context, l *lock.Lock, now time.Time) (*SettlementResult, error) {
	accrued := l.AccruedAt(now)
	released := l.ReleasedAt(now)
	payout := accrued.Subtract(released)
	refund := l.RemainingAt(now)

	// Treasury first: a failed transfer aborts with the ledger untouched.
	if err := m.treasury.Payout(ctx, l.Recipient, payout); err != nil {
		return nil, fmt.Errorf("%w: payout: %v", ErrTransferFailed, err)
	}
	if err := m.treasury.Payout(ctx, l.Payer, refund); err != nil {
		if derr := m.treasury.Deposit(ctx, l.Recipient, payout); derr != nil {
			m.logger.Error("payout reversal failed", "id", l.ID, "error", derr)
		}
		return nil, fmt.Errorf("%w: refund: %v", ErrTransferFailed, err)
	}

	st := store.Settlement{
		LockID:    l.ID,
		SettledAt: now,
		Payout:    payout,
		Refund:    refund,
		Payer:     l.Payer,
		Recipient: l.Recipient,
	}
	if err := m.store.SettleLock(ctx, st); err != nil {
		if derr := m.treasury.Deposit(ctx, l.Recipient, payout); derr != nil {
			m.logger.Error("payout reversal failed", "id", l.ID, "error", derr)
		}
		if derr := m.treasury.Deposit(ctx, l.Payer, refund); derr != nil {
			m.logger.Error("refund reversal failed", "id", l.ID, "error", derr)
		}
		return nil, err
	}

	l.Settled = true
	l.Active = false
	l.UpdatedAt = now
	return &SettlementResult{Lock: l, Payout: payout, Refund: refund}, nil
}

// ──────────────────────────────────────────────────
// Usage
// ──────────────────────────────────────────────────

// ConsumeUsageFromPool draws n units from a usage pool, releasing their
// proportional value share to the recipient. Requires used+n ≤ count;
// otherwise ErrInsufficientQuota with zero state change. The pool finalizes
// only when the full quota is consumed. Authorized callers only.
func (m *Manager) ConsumeUsageFromPool(ctx context.Context, lockID id.LockID, n int64) (types.Amount, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return types.Amount{}, ErrNoCaller
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return types.Amount{}, ErrPaused
	}
	if err := m.requireAuthorized(ctx, caller); err != nil {
		return types.Amount{}, err
	}
	if n <= 0 {
		return types.Amount{}, ValidationError{Field: "n", Message: "must be positive"}
	}

	l, err := m.store.GetLock(ctx, lockID)
	if err != nil {
		return types.Amount{}, err
	}
	if l.StreamType != lock.TypeUsagePool {
		return types.Amount{}, ErrNotUsagePool
	}
	if l.Settled {
		return types.Amount{}, ErrLockSettled
	}
	if !l.Active {
		return types.Amount{}, ErrLockInactive
	}

	available := l.UsageCount - l.UsedCount
	if n > available {
		m.plugins.EmitQuotaExhausted(ctx, l.ID.String(), n, available)
		return types.Amount{}, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientQuota, n, available)
	}

	// Cumulative difference keeps the per-unit rounding from drifting:
	// after full consumption the released total telescopes to exactly the
	// pool total.
	before := l.TotalAmount.MulDiv(l.UsedCount, l.UsageCount)
	after := l.TotalAmount.MulDiv(l.UsedCount+n, l.UsageCount)
	released := after.Subtract(before)
	finalize := l.UsedCount+n == l.UsageCount

	// Treasury first: a failed transfer aborts with the ledger untouched.
	if err := m.treasury.Payout(ctx, l.Recipient, released); err != nil {
		return types.Amount{}, fmt.Errorf("%w: usage payout: %v", ErrTransferFailed, err)
	}

	c := store.Consumption{
		LockID:    l.ID,
		N:         n,
		Released:  released,
		Finalize:  finalize,
		Payer:     l.Payer,
		Recipient: l.Recipient,
	}
	if err := m.store.ConsumeUsage(ctx, c); err != nil {
		if derr := m.treasury.Deposit(ctx, l.Recipient, released); derr != nil {
			m.logger.Error("usage payout reversal failed", "id", l.ID, "error", derr)
		}
		return types.Amount{}, err
	}

	l.UsedCount += n
	if finalize {
		l.Settled = true
		l.Active = false
	}

	m.plugins.EmitUsageConsumed(ctx, l, n, released)
	m.logger.Info("usage consumed",
		"id", l.ID,
		"n", n,
		"used", l.UsedCount,
		"quota", l.UsageCount,
		"released", released,
	)
	return released, nil
}

// CheckAndSettleOnUsage reports whether the account's lock is still usable,
// settling it internally first if a time-based lock has expired. Usage
// infrastructure calls this before serving a unit of work.
func (m *Manager) CheckAndSettleOnUsage(ctx context.Context, account string, lockID id.LockID) (bool, error) {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return false, ErrNoCaller
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return false, ErrPaused
	}
	if err := m.authorizeFor(ctx, caller, account); err != nil {
		return false, err
	}

	l, err := m.store.GetLock(ctx, lockID)
	if err != nil {
		return false, err
	}
	if l.Payer != account {
		return false, ErrNotPayer
	}
	if l.Settled || !l.Active {
		return false, nil
	}

	now := m.now()
	if l.StreamType != lock.TypeUsagePool && l.ExpiredAt(now) {
		res, err := m.finalize(ctx, l, now)
		if err != nil {
			return false, err
		}
		m.plugins.EmitLockSettled(ctx, res.Lock, res.Payout, res.Refund)
		m.plugins.ObserveSettlement(ctx, l.ID.String(), now.Sub(l.StartTime))
		m.logger.Info("expired stream settled on usage check", "id", l.ID)
		return false, nil
	}

	return true, nil
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// GetStreamStatus returns the point-in-time view of a lock.
func (m *Manager) GetStreamStatus(ctx context.Context, lockID id.LockID) (*lock.Status, error) {
	l, err := m.store.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	st := l.StatusAt(m.now())
	return &st, nil
}

// GetTokenLock returns the full lock snapshot.
func (m *Manager) GetTokenLock(ctx context.Context, lockID id.LockID) (*lock.Lock, error) {
	return m.store.GetLock(ctx, lockID)
}

// CalculateAccruedAmount returns what has accrued to the recipient so far.
func (m *Manager) CalculateAccruedAmount(ctx context.Context, lockID id.LockID) (types.Amount, error) {
	l, err := m.store.GetLock(ctx, lockID)
	if err != nil {
		return types.Amount{}, err
	}
	return l.AccruedAt(m.now()), nil
}

// CalculateRemainingAmount returns what would refund to the payer right now.
func (m *Manager) CalculateRemainingAmount(ctx context.Context, lockID id.LockID) (types.Amount, error) {
	l, err := m.store.GetLock(ctx, lockID)
	if err != nil {
		return types.Amount{}, err
	}
	return l.RemainingAt(m.now()), nil
}

// GetLockedBalance returns the value an account has committed to open locks.
func (m *Manager) GetLockedBalance(ctx context.Context, account, asset string) (types.Amount, error) {
	r, err := m.store.GetBalance(ctx, account, asset)
	if err != nil {
		return types.Amount{}, err
	}
	return r.Locked, nil
}

// GetUnlockedBalance returns the value released to an account so far.
func (m *Manager) GetUnlockedBalance(ctx context.Context, account, asset string) (types.Amount, error) {
	r, err := m.store.GetBalance(ctx, account, asset)
	if err != nil {
		return types.Amount{}, err
	}
	return r.Unlocked, nil
}

// GetTotalBalance returns locked plus unlocked for an account.
func (m *Manager) GetTotalBalance(ctx context.Context, account, asset string) (types.Amount, error) {
	r, err := m.store.GetBalance(ctx, account, asset)
	if err != nil {
		return types.Amount{}, err
	}
	return r.Total(), nil
}

// GetUserActiveStreams lists the account's open outgoing locks in creation
// order.
func (m *Manager) GetUserActiveStreams(ctx context.Context, account string) ([]*lock.Lock, error) {
	return m.store.ListLocksByPayer(ctx, account, lock.ListOpts{ActiveOnly: true})
}

// GetProducerIncomingStreams lists the locks streaming to an account, open
// and settled, in creation order.
func (m *Manager) GetProducerIncomingStreams(ctx context.Context, account string) ([]*lock.Lock, error) {
	return m.store.ListLocksByRecipient(ctx, account, lock.ListOpts{})
}

// GetLocksByPlan lists every lock linked to a customer plan key.
func (m *Manager) GetLocksByPlan(ctx context.Context, planKey string) ([]*lock.Lock, error) {
	return m.store.ListLocksByPlan(ctx, planKey)
}

// StreamParams returns the creation bounds currently in force.
func (m *Manager) StreamParams() lock.Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// ──────────────────────────────────────────────────
// Administration
// ──────────────────────────────────────────────────

// SetAuthorizedCaller adds or removes an account on the privileged-caller
// allow-list. Admin only.
func (m *Manager) SetAuthorizedCaller(ctx context.Context, account string, enabled bool) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if account == "" {
		return ValidationError{Field: "account", Message: "must not be empty"}
	}
	if err := m.store.SetAuthorizedCaller(ctx, account, enabled); err != nil {
		return err
	}

	m.plugins.EmitCallerAuthorized(ctx, account, enabled)
	m.logger.Info("authorized caller updated", "account", account, "enabled", enabled)
	return nil
}

// UpdateStreamParams replaces the creation bounds. Existing locks are
// untouched; only future creations are validated against the new bounds.
// Admin only.
func (m *Manager) UpdateStreamParams(ctx context.Context, p lock.Params) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case p.MinAmount < 1:
		return ValidationError{Field: "min_amount", Message: "must be at least 1"}
	case p.MinDuration <= 0:
		return ValidationError{Field: "min_duration", Message: "must be positive"}
	case p.MaxDuration < p.MinDuration:
		return ValidationError{Field: "max_duration", Message: "must not be below min_duration"}
	}

	if err := m.store.SetStreamParams(ctx, p); err != nil {
		return err
	}
	m.params = p

	m.logger.Info("stream params updated",
		"min_amount", p.MinAmount,
		"min_duration", p.MinDuration,
		"max_duration", p.MaxDuration,
	)
	return nil
}

// Pause rejects every mutating operation with ErrPaused until Unpause.
// Queries stay available. Admin only.
func (m *Manager) Pause(ctx context.Context) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paused {
		return nil
	}
	m.paused = true

	m.plugins.EmitPaused(ctx)
	m.logger.Warn("streamlock paused")
	return nil
}

// Unpause resumes mutating operations. Admin only.
func (m *Manager) Unpause(ctx context.Context) error {
	if err := m.requireAdmin(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.paused {
		return nil
	}
	m.paused = false

	m.plugins.EmitUnpaused(ctx)
	m.logger.Info("streamlock unpaused")
	return nil
}

// Paused reports whether the engine is currently paused.
func (m *Manager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// authorizeFor allows self-service (caller is the payer) or an allow-listed
// caller acting on another account's behalf.
func (m *Manager) authorizeFor(ctx context.Context, caller, payer string) error {
	if caller == payer {
		return nil
	}
	return m.requireAuthorized(ctx, caller)
}

func (m *Manager) requireAuthorized(ctx context.Context, caller string) error {
	ok, err := m.store.IsAuthorized(ctx, caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (m *Manager) requireAdmin(ctx context.Context) error {
	caller, ok := CallerFromContext(ctx)
	if !ok {
		return ErrNoCaller
	}
	if m.admin == "" || caller != m.admin {
		return ErrNotAdmin
	}
	return nil
}

func (m *Manager) validateCommon(payer, recipient string, total types.Amount) error {
	if payer == "" {
		return ValidationError{Field: "payer", Message: "must not be empty"}
	}
	if recipient == "" || recipient == payer {
		return ErrInvalidRecipient
	}
	if total.Asset == "" {
		return ErrInvalidAsset
	}
	if total.Value < m.params.MinAmount {
		return fmt.Errorf("%w: %d < %d", ErrAmountTooSmall, total.Value, m.params.MinAmount)
	}
	return nil
}

func (m *Manager) validateDuration(d time.Duration) error {
	if d < m.params.MinDuration || d > m.params.MaxDuration {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrDurationOutOfRange, d, m.params.MinDuration, m.params.MaxDuration)
	}
	return nil
}
