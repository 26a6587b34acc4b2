// Package audithook bridges StreamLock lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on a
// concrete audit system. Callers inject a RecorderFunc adapter that bridges
// to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blicence/streamlock/lock"
	"github.com/blicence/streamlock/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnLockCreated      = (*Extension)(nil)
	_ plugin.OnBatchCreated     = (*Extension)(nil)
	_ plugin.OnLockSettled      = (*Extension)(nil)
	_ plugin.OnLockCanceled     = (*Extension)(nil)
	_ plugin.OnUsageConsumed    = (*Extension)(nil)
	_ plugin.OnQuotaExhausted   = (*Extension)(nil)
	_ plugin.OnCallerAuthorized = (*Extension)(nil)
	_ plugin.OnPaused           = (*Extension)(nil)
	_ plugin.OnUnpaused         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so callers can inject any concrete trail at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges StreamLock lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Lock lifecycle hooks
// ──────────────────────────────────────────────────

// OnLockCreated implements plugin.OnLockCreated.
func (e *Extension) OnLockCreated(ctx context.Context, l interface{}) error {
	id, kv := lockDetails(l)
	return e.record(ctx, ActionLockCreated, SeverityInfo, OutcomeSuccess,
		ResourceLock, id, CategoryCustody, nil, kv...)
}

// OnBatchCreated implements plugin.OnBatchCreated.
func (e *Extension) OnBatchCreated(ctx context.Context, locks []interface{}) error {
	return e.record(ctx, ActionBatchCreated, SeverityInfo, OutcomeSuccess,
		ResourceLock, "", CategoryCustody, nil,
		"count", len(locks),
	)
}

// OnLockSettled implements plugin.OnLockSettled.
func (e *Extension) OnLockSettled(ctx context.Context, l interface{}, payout, refund interface{}) error {
	id, kv := lockDetails(l)
	kv = append(kv, "payout", fmt.Sprintf("%v", payout), "refund", fmt.Sprintf("%v", refund))
	return e.record(ctx, ActionLockSettled, SeverityInfo, OutcomeSuccess,
		ResourceLock, id, CategoryCustody, nil, kv...)
}

// OnLockCanceled implements plugin.OnLockCanceled.
func (e *Extension) OnLockCanceled(ctx context.Context, l interface{}, payout, refund interface{}) error {
	id, kv := lockDetails(l)
	kv = append(kv, "payout", fmt.Sprintf("%v", payout), "refund", fmt.Sprintf("%v", refund))
	return e.record(ctx, ActionLockCanceled, SeverityWarning, OutcomeSuccess,
		ResourceLock, id, CategoryCustody, nil, kv...)
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnUsageConsumed implements plugin.OnUsageConsumed.
func (e *Extension) OnUsageConsumed(ctx context.Context, l interface{}, n int64, released interface{}) error {
	id, kv := lockDetails(l)
	kv = append(kv, "units", n, "released", fmt.Sprintf("%v", released))
	return e.record(ctx, ActionUsageConsumed, SeverityInfo, OutcomeSuccess,
		ResourceUsage, id, CategoryUsage, nil, kv...)
}

// OnQuotaExhausted implements plugin.OnQuotaExhausted.
func (e *Extension) OnQuotaExhausted(ctx context.Context, lockID string, requested, available int64) error {
	return e.record(ctx, ActionQuotaExhausted, SeverityWarning, OutcomeFailure,
		ResourceUsage, lockID, CategoryUsage, nil,
		"requested", requested,
		"available", available,
	)
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnCallerAuthorized implements plugin.OnCallerAuthorized.
func (e *Extension) OnCallerAuthorized(ctx context.Context, account string, enabled bool) error {
	action := ActionCallerAuthorized
	if !enabled {
		action = ActionCallerRevoked
	}
	return e.record(ctx, action, SeverityWarning, OutcomeSuccess,
		ResourceCaller, account, CategoryAccess, nil,
		"account", account,
		"enabled", enabled,
	)
}

// OnPaused implements plugin.OnPaused.
func (e *Extension) OnPaused(ctx context.Context) error {
	return e.record(ctx, ActionPaused, SeverityCritical, OutcomeSuccess,
		ResourceEngine, "", CategoryAdmin, nil)
}

// OnUnpaused implements plugin.OnUnpaused.
func (e *Extension) OnUnpaused(ctx context.Context) error {
	return e.record(ctx, ActionUnpaused, SeverityWarning, OutcomeSuccess,
		ResourceEngine, "", CategoryAdmin, nil)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// lockDetails extracts identifying metadata from an event payload.
func lockDetails(v interface{}) (string, []any) {
	l, ok := v.(*lock.Lock)
	if !ok {
		return "", nil
	}
	return l.ID.String(), []any{
		"payer", l.Payer,
		"recipient", l.Recipient,
		"asset", l.Asset,
		"stream_type", string(l.StreamType),
		"total", l.TotalAmount.Value,
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
