package lock

import (
	"time"

	"github.com/blicence/streamlock/types"
)

// Accrual math. All functions are pure: given a lock and an instant they
// compute the accrued/remaining split without touching any state.
//
// Proportional shares use floor division; the rounding loss (at most one
// base unit) is absorbed by the remaining side, so the payer's refund —
// never the recipient's payout — carries it. For every lock at every
// instant: AccruedAt + RemainingAt == TotalAmount.

// AccruedAt returns the portion of the lock's total value owed to the
// recipient at the given instant.
func (l *Lock) AccruedAt(now time.Time) types.Amount {
	switch l.StreamType {
	case TypeLinear:
		elapsed := clampDuration(now.Sub(l.StartTime), l.Duration)
		return l.TotalAmount.MulDiv(int64(elapsed), int64(l.Duration))

	case TypeVesting:
		if now.Before(l.CliffTime) {
			return l.ImmediateAmount
		}
		vesting := l.TotalAmount.Subtract(l.ImmediateAmount)
		elapsed := clampDuration(now.Sub(l.CliffTime), l.Duration)
		vested := vesting.MulDiv(int64(elapsed), int64(l.Duration))
		return l.ImmediateAmount.Add(vested)

	case TypeUsagePool:
		return l.TotalAmount.MulDiv(l.UsedCount, l.UsageCount)

	default:
		return types.Zero(l.Asset)
	}
}

// RemainingAt returns the portion still owed back to the payer if the lock
// were settled at the given instant.
func (l *Lock) RemainingAt(now time.Time) types.Amount {
	return l.TotalAmount.Subtract(l.AccruedAt(now))
}

// ReleasedAt returns the value already paid out to the recipient before any
// terminal settlement: the immediate bonus for vesting locks, the consumed
// share for usage pools, nothing for linear locks.
func (l *Lock) ReleasedAt(now time.Time) types.Amount {
	switch l.StreamType {
	case TypeVesting:
		return l.ImmediateAmount
	case TypeUsagePool:
		return l.AccruedAt(now)
	default:
		return types.Zero(l.Asset)
	}
}

// InitialLocked returns the value that enters the locked balance at
// creation: the full amount minus anything released immediately.
func (l *Lock) InitialLocked() types.Amount {
	if l.StreamType == TypeVesting {
		return l.TotalAmount.Subtract(l.ImmediateAmount)
	}
	return l.TotalAmount
}

// ExpiredAt reports whether the lock's release window has fully elapsed.
// Usage pools never expire by clock; they end by exhaustion or settlement.
func (l *Lock) ExpiredAt(now time.Time) bool {
	switch l.StreamType {
	case TypeLinear:
		return !now.Before(l.StartTime.Add(l.Duration))
	case TypeVesting:
		return !now.Before(l.CliffTime.Add(l.Duration))
	default:
		return false
	}
}

// RemainingTime returns how long until the lock's release window elapses,
// zero once expired. Usage pools have no clock and always return zero.
func (l *Lock) RemainingTime(now time.Time) time.Duration {
	var end time.Time
	switch l.StreamType {
	case TypeLinear:
		end = l.StartTime.Add(l.Duration)
	case TypeVesting:
		end = l.CliffTime.Add(l.Duration)
	default:
		return 0
	}

	if !now.Before(end) {
		return 0
	}
	return end.Sub(now)
}

// Status is a point-in-time view of a lock, served by read-only queries.
type Status struct {
	Active        bool          `json:"active"`
	Expired       bool          `json:"expired"`
	Accrued       types.Amount  `json:"accrued"`
	Remaining     types.Amount  `json:"remaining"`
	RemainingTime time.Duration `json:"remaining_time"`
}

// StatusAt computes the lock's status at the given instant.
func (l *Lock) StatusAt(now time.Time) Status {
	return Status{
		Active:        l.Active,
		Expired:       l.ExpiredAt(now),
		Accrued:       l.AccruedAt(now),
		Remaining:     l.RemainingAt(now),
		RemainingTime: l.RemainingTime(now),
	}
}

func clampDuration(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > max {
		return max
	}
	return d
}
