package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onLockCreated       []OnLockCreated
	onBatchCreated      []OnBatchCreated
	onLockSettled       []OnLockSettled
	onLockCanceled      []OnLockCanceled
	onUsageConsumed     []OnUsageConsumed
	onQuotaExhausted    []OnQuotaExhausted
	onCallerAuthorized  []OnCallerAuthorized
	onPaused            []OnPaused
	onUnpaused          []OnUnpaused
	settlementObservers []SettlementObserver
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnLockCreated); ok {
		r.onLockCreated = append(r.onLockCreated, v)
	}
	if v, ok := p.(OnBatchCreated); ok {
		r.onBatchCreated = append(r.onBatchCreated, v)
	}
	if v, ok := p.(OnLockSettled); ok {
		r.onLockSettled = append(r.onLockSettled, v)
	}
	if v, ok := p.(OnLockCanceled); ok {
		r.onLockCanceled = append(r.onLockCanceled, v)
	}
	if v, ok := p.(OnUsageConsumed); ok {
		r.onUsageConsumed = append(r.onUsageConsumed, v)
	}
	if v, ok := p.(OnQuotaExhausted); ok {
		r.onQuotaExhausted = append(r.onQuotaExhausted, v)
	}
	if v, ok := p.(OnCallerAuthorized); ok {
		r.onCallerAuthorized = append(r.onCallerAuthorized, v)
	}
	if v, ok := p.(OnPaused); ok {
		r.onPaused = append(r.onPaused, v)
	}
	if v, ok := p.(OnUnpaused); ok {
		r.onUnpaused = append(r.onUnpaused, v)
	}
	if v, ok := p.(SettlementObserver); ok {
		r.settlementObservers = append(r.settlementObservers, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnLockCreated)(nil)).Elem(), "OnLockCreated")
	checkInterface(reflect.TypeOf((*OnBatchCreated)(nil)).Elem(), "OnBatchCreated")
	checkInterface(reflect.TypeOf((*OnLockSettled)(nil)).Elem(), "OnLockSettled")
	checkInterface(reflect.TypeOf((*OnLockCanceled)(nil)).Elem(), "OnLockCanceled")
	checkInterface(reflect.TypeOf((*OnUsageConsumed)(nil)).Elem(), "OnUsageConsumed")
	checkInterface(reflect.TypeOf((*OnQuotaExhausted)(nil)).Elem(), "OnQuotaExhausted")
	checkInterface(reflect.TypeOf((*OnCallerAuthorized)(nil)).Elem(), "OnCallerAuthorized")
	checkInterface(reflect.TypeOf((*OnPaused)(nil)).Elem(), "OnPaused")
	checkInterface(reflect.TypeOf((*OnUnpaused)(nil)).Elem(), "OnUnpaused")
	checkInterface(reflect.TypeOf((*SettlementObserver)(nil)).Elem(), "SettlementObserver")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitLockCreated emits a lock created event.
func (r *Registry) EmitLockCreated(ctx context.Context, l interface{}) {
	r.mu.RLock()
	plugins := r.onLockCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLockCreated(ctx, l)
		}); err != nil {
			r.logger.Warn("plugin OnLockCreated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitBatchCreated emits a batch created event.
func (r *Registry) EmitBatchCreated(ctx context.Context, locks []interface{}) {
	r.mu.RLock()
	plugins := r.onBatchCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBatchCreated(ctx, locks)
		}); err != nil {
			r.logger.Warn("plugin OnBatchCreated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitLockSettled emits a lock settled event.
func (r *Registry) EmitLockSettled(ctx context.Context, l, payout, refund interface{}) {
	r.mu.RLock()
	plugins := r.onLockSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLockSettled(ctx, l, payout, refund)
		}); err != nil {
			r.logger.Warn("plugin OnLockSettled failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitLockCanceled emits a lock canceled event.
func (r *Registry) EmitLockCanceled(ctx context.Context, l, payout, refund interface{}) {
	r.mu.RLock()
	plugins := r.onLockCanceled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLockCanceled(ctx, l, payout, refund)
		}); err != nil {
			r.logger.Warn("plugin OnLockCanceled failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitUsageConsumed emits a usage consumption event.
func (r *Registry) EmitUsageConsumed(ctx context.Context, l interface{}, n int64, released interface{}) {
	r.mu.RLock()
	plugins := r.onUsageConsumed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUsageConsumed(ctx, l, n, released)
		}); err != nil {
			r.logger.Warn("plugin OnUsageConsumed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitQuotaExhausted emits a quota exhausted event.
func (r *Registry) EmitQuotaExhausted(ctx context.Context, lockID string, requested, available int64) {
	r.mu.RLock()
	plugins := r.onQuotaExhausted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnQuotaExhausted(ctx, lockID, requested, available)
		}); err != nil {
			r.logger.Warn("plugin OnQuotaExhausted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCallerAuthorized emits an authorized-caller change event.
func (r *Registry) EmitCallerAuthorized(ctx context.Context, account string, enabled bool) {
	r.mu.RLock()
	plugins := r.onCallerAuthorized
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCallerAuthorized(ctx, account, enabled)
		}); err != nil {
			r.logger.Warn("plugin OnCallerAuthorized failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPaused emits a pause event.
func (r *Registry) EmitPaused(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onPaused
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaused(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnPaused failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitUnpaused emits an unpause event.
func (r *Registry) EmitUnpaused(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onUnpaused
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUnpaused(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnUnpaused failed", "plugin", p.Name(), "error", err)
		}
	}
}

// ObserveSettlement notifies settlement observers of finalization timing.
func (r *Registry) ObserveSettlement(ctx context.Context, lockID string, elapsed time.Duration) {
	r.mu.RLock()
	observers := r.settlementObservers
	r.mu.RUnlock()

	for _, o := range observers {
		o.ObserveSettlement(ctx, lockID, elapsed)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
