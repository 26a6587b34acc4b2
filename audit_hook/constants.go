package audithook

// Action constants for audit events.
const (
	// Lock actions
	ActionLockCreated  = "lock.created"
	ActionBatchCreated = "lock.batch_created"
	ActionLockSettled  = "lock.settled"
	ActionLockCanceled = "lock.canceled"

	// Usage actions
	ActionUsageConsumed  = "usage.consumed"
	ActionQuotaExhausted = "usage.quota_exhausted"

	// Admin actions
	ActionCallerAuthorized = "admin.caller_authorized"
	ActionCallerRevoked    = "admin.caller_revoked"
	ActionPaused           = "admin.paused"
	ActionUnpaused         = "admin.unpaused"
)

// Resource constants for audit events.
const (
	ResourceLock   = "lock"
	ResourceUsage  = "usage"
	ResourceCaller = "caller"
	ResourceEngine = "engine"
)

// Category constants for audit events.
const (
	CategoryCustody = "custody"
	CategoryUsage   = "usage"
	CategoryAccess  = "access"
	CategoryAdmin   = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
