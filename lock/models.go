// Package lock defines the value-release lock model and its accrual math.
package lock

import (
	"time"

	"github.com/blicence/streamlock/id"
	"github.com/blicence/streamlock/types"
)

// StreamType selects the release mode of a lock.
type StreamType string

const (
	// TypeLinear releases value linearly over the lock duration.
	TypeLinear StreamType = "linear"
	// TypeVesting pays an immediate bonus at creation, then releases the
	// rest linearly after a cliff.
	TypeVesting StreamType = "vesting"
	// TypeUsagePool releases value per consumed usage unit, not by clock.
	TypeUsagePool StreamType = "usage_pool"
)

// Lock is a record of funds set aside by a payer for a recipient under one
// of three release modes. Rows are never deleted; a terminal settlement or
// cancellation flips Active→false, Settled→true exactly once.
type Lock struct {
	types.Entity
	ID          id.LockID     `json:"id"`
	Payer       string        `json:"payer"`
	Recipient   string        `json:"recipient"`
	Asset       string        `json:"asset"`
	TotalAmount types.Amount  `json:"total_amount"`
	StartTime   time.Time     `json:"start_time"`
	Duration    time.Duration `json:"duration"`
	StreamType  StreamType    `json:"stream_type"`

	// Vesting only.
	CliffTime       time.Time    `json:"cliff_time,omitempty"`
	ImmediateAmount types.Amount `json:"immediate_amount,omitempty"`

	// Usage pool only. UsedCount <= UsageCount always.
	UsageCount int64 `json:"usage_count,omitempty"`
	UsedCount  int64 `json:"used_count,omitempty"`

	Active  bool `json:"active"`
	Settled bool `json:"settled"`

	// PlanKey links the lock to an external customer plan. Set once at
	// creation, never mutated.
	PlanKey string `json:"plan_key,omitempty"`
}

// ListOpts filters lock enumeration.
type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// Params are the global creation bounds. They only affect future creations.
type Params struct {
	MinAmount   int64         `json:"min_amount"`
	MinDuration time.Duration `json:"min_duration"`
	MaxDuration time.Duration `json:"max_duration"`
}

// DefaultParams returns the creation bounds used when none are configured.
func DefaultParams() Params {
	return Params{
		MinAmount:   1,
		MinDuration: time.Hour,
		MaxDuration: 365 * 24 * time.Hour,
	}
}

// ClaimResult aggregates a batch finalization of incoming locks.
type ClaimResult struct {
	StreamCount  int              `json:"stream_count"`
	TotalClaimed map[string]int64 `json:"total_claimed"` // per asset, smallest unit
}
