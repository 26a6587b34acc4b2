package lock

import (
	"testing"
	"time"

	"github.com/blicence/streamlock/id"
	"github.com/blicence/streamlock/types"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func linearLock(total int64, duration time.Duration) *Lock {
	return &Lock{
		ID:          id.NewLockID(),
		Payer:       "alice",
		Recipient:   "bob",
		Asset:       "usdc",
		TotalAmount: types.New(total, "usdc"),
		StartTime:   t0,
		Duration:    duration,
		StreamType:  TypeLinear,
		Active:      true,
	}
}

func vestingLock(total, immediate int64, cliff, duration time.Duration) *Lock {
	return &Lock{
		ID:              id.NewLockID(),
		Payer:           "alice",
		Recipient:       "bob",
		Asset:           "usdc",
		TotalAmount:     types.New(total, "usdc"),
		StartTime:       t0,
		Duration:        duration,
		StreamType:      TypeVesting,
		CliffTime:       t0.Add(cliff),
		ImmediateAmount: types.New(immediate, "usdc"),
		Active:          true,
	}
}

func usagePool(total, count int64) *Lock {
	return &Lock{
		ID:          id.NewLockID(),
		Payer:       "alice",
		Recipient:   "bob",
		Asset:       "usdc",
		TotalAmount: types.New(total, "usdc"),
		StartTime:   t0,
		StreamType:  TypeUsagePool,
		UsageCount:  count,
		Active:      true,
	}
}

func TestLinearAccrual(t *testing.T) {
	l := linearLock(100, time.Hour)

	tests := []struct {
		name    string
		at      time.Time
		accrued int64
		expired bool
	}{
		{"BeforeStart", t0.Add(-time.Minute), 0, false},
		{"AtStart", t0, 0, false},
		{"Halfway", t0.Add(30 * time.Minute), 50, false},
		{"ThirdPoint", t0.Add(20 * time.Minute), 33, false},
		{"AtExpiry", t0.Add(time.Hour), 100, true},
		{"AfterExpiry", t0.Add(2 * time.Hour), 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.AccruedAt(tt.at)
			if got.Value != tt.accrued {
				t.Errorf("accrued: got %d, want %d", got.Value, tt.accrued)
			}
			if rem := l.RemainingAt(tt.at); rem.Value != 100-tt.accrued {
				t.Errorf("remaining: got %d, want %d", rem.Value, 100-tt.accrued)
			}
			if exp := l.ExpiredAt(tt.at); exp != tt.expired {
				t.Errorf("expired: got %v, want %v", exp, tt.expired)
			}
		})
	}
}

func TestVestingAccrual(t *testing.T) {
	// total=100, immediate=10, cliff at +1h, vesting over 24h from cliff.
	l := vestingLock(100, 10, time.Hour, 24*time.Hour)

	tests := []struct {
		name    string
		at      time.Time
		accrued int64
		expired bool
	}{
		{"AtCreation", t0, 10, false},
		{"JustBeforeCliff", t0.Add(time.Hour - time.Second), 10, false},
		{"AtCliff", t0.Add(time.Hour), 10, false},
		{"HalfwayVested", t0.Add(time.Hour + 12*time.Hour), 55, false},
		{"FullyVested", t0.Add(time.Hour + 24*time.Hour), 100, true},
		{"PastEnd", t0.Add(72 * time.Hour), 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.AccruedAt(tt.at)
			if got.Value != tt.accrued {
				t.Errorf("accrued: got %d, want %d", got.Value, tt.accrued)
			}
			if exp := l.ExpiredAt(tt.at); exp != tt.expired {
				t.Errorf("expired: got %v, want %v", exp, tt.expired)
			}
		})
	}
}

func TestUsagePoolAccrual(t *testing.T) {
	l := usagePool(50, 100)

	steps := []struct {
		used    int64
		accrued int64
	}{
		{0, 0},
		{40, 20},
		{99, 49},
		{100, 50},
	}

	for _, s := range steps {
		l.UsedCount = s.used
		if got := l.AccruedAt(t0); got.Value != s.accrued {
			t.Errorf("used=%d: accrued %d, want %d", s.used, got.Value, s.accrued)
		}
	}

	// Pools never expire by clock, no matter how far out.
	if l.ExpiredAt(t0.Add(10 * 365 * 24 * time.Hour)) {
		t.Error("usage pool should never clock-expire")
	}
	if l.RemainingTime(t0) != 0 {
		t.Error("usage pool has no remaining time")
	}
}

// Split completeness: accrued + remaining == total for all t, all types.
func TestSplitCompleteness(t *testing.T) {
	locks := []*Lock{
		linearLock(997, 3601*time.Second),
		vestingLock(997, 31, 45*time.Minute, 7*time.Hour),
		usagePool(997, 13),
	}
	locks[2].UsedCount = 7

	offsets := []time.Duration{
		-time.Hour, 0, time.Second, 17 * time.Minute, time.Hour,
		3 * time.Hour, 8 * time.Hour, 100 * time.Hour,
	}

	for _, l := range locks {
		for _, off := range offsets {
			at := t0.Add(off)
			sum := l.AccruedAt(at).Add(l.RemainingAt(at))
			if !sum.Equal(l.TotalAmount) {
				t.Errorf("%s at %v: accrued+remaining=%s, total=%s",
					l.StreamType, off, sum, l.TotalAmount)
			}
		}
	}
}

// Monotonic accrual: accrued never decreases over time for time-based locks.
func TestMonotonicAccrual(t *testing.T) {
	locks := []*Lock{
		linearLock(1000, time.Hour),
		vestingLock(1000, 100, 30*time.Minute, 2*time.Hour),
	}

	for _, l := range locks {
		prev := int64(-1)
		for off := time.Duration(0); off <= 4*time.Hour; off += time.Minute {
			got := l.AccruedAt(t0.Add(off)).Value
			if got < prev {
				t.Fatalf("%s: accrued decreased from %d to %d at +%v",
					l.StreamType, prev, got, off)
			}
			prev = got
		}
	}
}

func TestInitialLocked(t *testing.T) {
	if got := linearLock(100, time.Hour).InitialLocked(); got.Value != 100 {
		t.Errorf("linear: got %d, want 100", got.Value)
	}
	if got := vestingLock(100, 10, time.Hour, time.Hour).InitialLocked(); got.Value != 90 {
		t.Errorf("vesting: got %d, want 90", got.Value)
	}
	if got := usagePool(50, 100).InitialLocked(); got.Value != 50 {
		t.Errorf("pool: got %d, want 50", got.Value)
	}
}

func TestStatusAt(t *testing.T) {
	l := linearLock(100, time.Hour)
	st := l.StatusAt(t0.Add(30 * time.Minute))

	if !st.Active || st.Expired {
		t.Errorf("status flags: active=%v expired=%v", st.Active, st.Expired)
	}
	if st.Accrued.Value != 50 || st.Remaining.Value != 50 {
		t.Errorf("split: accrued=%d remaining=%d", st.Accrued.Value, st.Remaining.Value)
	}
	if st.RemainingTime != 30*time.Minute {
		t.Errorf("remaining time: got %v", st.RemainingTime)
	}
}
