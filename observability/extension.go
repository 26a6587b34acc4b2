// Package observability provides a metrics extension for StreamLock that
// records lifecycle event counts via a pluggable MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/blicence/streamlock/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnLockCreated      = (*MetricsExtension)(nil)
	_ plugin.OnBatchCreated     = (*MetricsExtension)(nil)
	_ plugin.OnLockSettled      = (*MetricsExtension)(nil)
	_ plugin.OnLockCanceled     = (*MetricsExtension)(nil)
	_ plugin.OnUsageConsumed    = (*MetricsExtension)(nil)
	_ plugin.OnQuotaExhausted   = (*MetricsExtension)(nil)
	_ plugin.OnCallerAuthorized = (*MetricsExtension)(nil)
	_ plugin.OnPaused           = (*MetricsExtension)(nil)
	_ plugin.OnUnpaused         = (*MetricsExtension)(nil)
	_ plugin.SettlementObserver = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a StreamLock plugin to automatically track lock metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Lock metrics
	LockCreated  Counter
	BatchCreated Counter
	LockSettled  Counter
	LockCanceled Counter

	// Usage metrics
	UsageUnitsConsumed Counter
	UsageDrawSize      Histogram
	QuotaExhausted     Counter

	// Settlement metrics
	SettlementLatency Histogram

	// Admin metrics
	CallerChanges Counter
	Pauses        Counter
	Unpauses      Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Lock metrics
		LockCreated:  factory.Counter("streamlock.lock.created"),
		BatchCreated: factory.Counter("streamlock.lock.batch_created"),
		LockSettled:  factory.Counter("streamlock.lock.settled"),
		LockCanceled: factory.Counter("streamlock.lock.canceled"),

		// Usage metrics
		UsageUnitsConsumed: factory.Counter("streamlock.usage.units.consumed"),
		UsageDrawSize:      factory.Histogram("streamlock.usage.draw.size"),
		QuotaExhausted:     factory.Counter("streamlock.usage.quota.exhausted"),

		// Settlement metrics
		SettlementLatency: factory.Histogram("streamlock.settlement.stream_age_ms"),

		// Admin metrics
		CallerChanges: factory.Counter("streamlock.admin.caller_changes"),
		Pauses:        factory.Counter("streamlock.admin.pauses"),
		Unpauses:      factory.Counter("streamlock.admin.unpauses"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Lock lifecycle hooks
// ──────────────────────────────────────────────────

// OnLockCreated implements plugin.OnLockCreated.
func (m *MetricsExtension) OnLockCreated(_ context.Context, _ interface{}) error {
	m.LockCreated.Inc()
	return nil
}

// OnBatchCreated implements plugin.OnBatchCreated.
func (m *MetricsExtension) OnBatchCreated(_ context.Context, locks []interface{}) error {
	m.BatchCreated.Inc()
	m.LockCreated.Add(float64(len(locks)))
	return nil
}

// OnLockSettled implements plugin.OnLockSettled.
func (m *MetricsExtension) OnLockSettled(_ context.Context, _, _, _ interface{}) error {
	m.LockSettled.Inc()
	return nil
}

// OnLockCanceled implements plugin.OnLockCanceled.
func (m *MetricsExtension) OnLockCanceled(_ context.Context, _, _, _ interface{}) error {
	m.LockCanceled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageConsumed implements plugin.OnUsageConsumed.
func (m *MetricsExtension) OnUsageConsumed(_ context.Context, _ interface{}, n int64, _ interface{}) error {
	m.UsageUnitsConsumed.Add(float64(n))
	m.UsageDrawSize.Observe(float64(n))
	return nil
}

// OnQuotaExhausted implements plugin.OnQuotaExhausted.
func (m *MetricsExtension) OnQuotaExhausted(_ context.Context, _ string, _, _ int64) error {
	m.QuotaExhausted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Settlement observers
// ──────────────────────────────────────────────────

// ObserveSettlement implements plugin.SettlementObserver.
func (m *MetricsExtension) ObserveSettlement(_ context.Context, _ string, elapsed time.Duration) {
	m.SettlementLatency.Observe(float64(elapsed.Milliseconds()))
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnCallerAuthorized implements plugin.OnCallerAuthorized.
func (m *MetricsExtension) OnCallerAuthorized(_ context.Context, _ string, _ bool) error {
	m.CallerChanges.Inc()
	return nil
}

// OnPaused implements plugin.OnPaused.
func (m *MetricsExtension) OnPaused(_ context.Context) error {
	m.Pauses.Inc()
	return nil
}

// OnUnpaused implements plugin.OnUnpaused.
func (m *MetricsExtension) OnUnpaused(_ context.Context) error {
	m.Unpauses.Inc()
	return nil
}
