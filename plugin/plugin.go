// Package plugin provides an extensible plugin system for StreamLock.
// Plugins can hook into lock lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Lock lifecycle hooks
// ──────────────────────────────────────────────────

// OnLockCreated is called when a new lock is created. The event carries the
// full input echo alongside the assigned lock id.
type OnLockCreated interface {
	Plugin
	OnLockCreated(ctx context.Context, l interface{}) error
}

// OnBatchCreated is called after an atomic batch creation, with the new locks.
type OnBatchCreated interface {
	Plugin
	OnBatchCreated(ctx context.Context, locks []interface{}) error
}

// OnLockSettled is called when a lock is finalized by its recipient.
type OnLockSettled interface {
	Plugin
	OnLockSettled(ctx context.Context, l interface{}, payout, refund interface{}) error
}

// OnLockCanceled is called when a lock is canceled by its payer.
type OnLockCanceled interface {
	Plugin
	OnLockCanceled(ctx context.Context, l interface{}, payout, refund interface{}) error
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageConsumed is called when units are consumed from a usage pool.
type OnUsageConsumed interface {
	Plugin
	OnUsageConsumed(ctx context.Context, l interface{}, n int64, released interface{}) error
}

// OnQuotaExhausted is called when a consumption attempt exceeds the pool quota.
type OnQuotaExhausted interface {
	Plugin
	OnQuotaExhausted(ctx context.Context, lockID string, requested, available int64) error
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnCallerAuthorized is called when the authorized-caller set changes.
type OnCallerAuthorized interface {
	Plugin
	OnCallerAuthorized(ctx context.Context, account string, enabled bool) error
}

// OnPaused is called when the engine is paused.
type OnPaused interface {
	Plugin
	OnPaused(ctx context.Context) error
}

// OnUnpaused is called when the engine is unpaused.
type OnUnpaused interface {
	Plugin
	OnUnpaused(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Settlement observers
// ──────────────────────────────────────────────────

// SettlementObserver receives timing details of every finalization,
// for latency metrics and audit.
type SettlementObserver interface {
	Plugin
	ObserveSettlement(ctx context.Context, lockID string, elapsed time.Duration)
}
