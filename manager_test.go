package streamlock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	streamlock "github.com/blicence/streamlock"
	"github.com/blicence/streamlock/lock"
	"github.com/blicence/streamlock/store/memory"
	"github.com/blicence/streamlock/treasury"
	"github.com/blicence/streamlock/types"
)

const (
	alice    = "alice"
	bob      = "bob"
	carol    = "carol"
	admin    = "admin"
	platform = "platform"
	usdc     = "usdc"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	t     *testing.T
	m     *streamlock.Manager
	tr    *treasury.Memory
	clock *fakeClock
}

func newFixture(t *testing.T, opts ...streamlock.Option) *fixture {
	t.Helper()

	c := &fakeClock{now: t0}
	tr := treasury.NewMemory()
	all := append([]streamlock.Option{
		streamlock.WithTreasury(tr),
		streamlock.WithAdmin(admin),
		streamlock.WithClock(c.Now),
	}, opts...)

	m := streamlock.New(memory.New(), all...)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Stop() })

	return &fixture{t: t, m: m, tr: tr, clock: c}
}

// failingTreasury wraps a Memory treasury and refuses payouts to chosen
// accounts, standing in for an external rail outage.
type failingTreasury struct {
	*treasury.Memory
	refuse map[string]bool
}

func (ft *failingTreasury) Payout(ctx context.Context, account string, amount types.Amount) error {
	if ft.refuse[account] {
		return errors.New("rail down")
	}
	return ft.Memory.Payout(ctx, account, amount)
}

// newFailingFixture builds a fixture whose treasury can refuse payouts per
// account. The fixture's balance helpers keep working against the wrapped
// Memory treasury.
func newFailingFixture(t *testing.T) (*fixture, *failingTreasury) {
	t.Helper()

	c := &fakeClock{now: t0}
	ft := &failingTreasury{Memory: treasury.NewMemory(), refuse: make(map[string]bool)}

	m := streamlock.New(memory.New(),
		streamlock.WithTreasury(ft),
		streamlock.WithAdmin(admin),
		streamlock.WithClock(c.Now),
	)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Stop() })

	return &fixture{t: t, m: m, tr: ft.Memory, clock: c}, ft
}

func (f *fixture) as(account string) context.Context {
	return streamlock.WithCaller(context.Background(), account)
}

func (f *fixture) fund(account string, v int64) {
	f.tr.Fund(account, types.New(v, usdc))
}

func (f *fixture) authorize(account string) {
	f.t.Helper()
	if err := f.m.SetAuthorizedCaller(f.as(admin), account, true); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) locked(account string) int64 {
	f.t.Helper()
	a, err := f.m.GetLockedBalance(context.Background(), account, usdc)
	if err != nil {
		f.t.Fatal(err)
	}
	return a.Value
}

func (f *fixture) unlocked(account string) int64 {
	f.t.Helper()
	a, err := f.m.GetUnlockedBalance(context.Background(), account, usdc)
	if err != nil {
		f.t.Fatal(err)
	}
	return a.Value
}

// assertConservation checks that treasury custody exactly backs the sum of
// all locked balances.
func (f *fixture) assertConservation(accounts ...string) {
	f.t.Helper()

	var lockedSum int64
	for _, a := range accounts {
		lockedSum += f.locked(a)
	}
	custody, err := f.tr.Custodied(context.Background(), usdc)
	if err != nil {
		f.t.Fatal(err)
	}
	if custody.Value != lockedSum {
		f.t.Fatalf("custody %d != locked sum %d", custody.Value, lockedSum)
	}
}

func TestCreateStreamLock(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 1000)

		l, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(1000, usdc), 2*time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if l.StreamType != lock.TypeLinear {
			t.Errorf("stream type = %s, want linear", l.StreamType)
		}
		if !l.Active || l.Settled {
			t.Error("new lock should be active and unsettled")
		}
		if got := f.locked(alice); got != 1000 {
			t.Errorf("locked = %d, want 1000", got)
		}
		if got := f.tr.Funds(alice, usdc).Value; got != 0 {
			t.Errorf("funds = %d, want 0", got)
		}
		f.assertConservation(alice, bob)
	})

	t.Run("NoCaller", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.m.CreateStreamLock(context.Background(), alice, bob, types.New(1000, usdc), 2*time.Hour)
		if !errors.Is(err, streamlock.ErrNoCaller) {
			t.Fatalf("err = %v, want ErrNoCaller", err)
		}
	})

	t.Run("UnauthorizedOnBehalf", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 1000)
		_, err := f.m.CreateStreamLock(f.as(carol), alice, bob, types.New(1000, usdc), 2*time.Hour)
		if !errors.Is(err, streamlock.ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("AuthorizedOnBehalf", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 1000)
		f.authorize(platform)

		l, err := f.m.CreateStreamLock(f.as(platform), alice, bob, types.New(1000, usdc), 2*time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if l.Payer != alice {
			t.Errorf("payer = %s, want alice", l.Payer)
		}
	})

	t.Run("SelfRecipient", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 1000)
		_, err := f.m.CreateStreamLock(f.as(alice), alice, alice, types.New(1000, usdc), 2*time.Hour)
		if !errors.Is(err, streamlock.ErrInvalidRecipient) {
			t.Fatalf("err = %v, want ErrInvalidRecipient", err)
		}
	})

	t.Run("BelowMinAmount", func(t *testing.T) {
		f := newFixture(t, streamlock.WithStreamParams(lock.Params{
			MinAmount:   100,
			MinDuration: time.Hour,
			MaxDuration: 24 * time.Hour,
		}))
		f.fund(alice, 1000)
		_, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(99, usdc), 2*time.Hour)
		if !errors.Is(err, streamlock.ErrAmountTooSmall) {
			t.Fatalf("err = %v, want ErrAmountTooSmall", err)
		}
	})

	t.Run("DurationBoundaries", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 4000)
		p := f.m.StreamParams()

		if _, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(1000, usdc), p.MinDuration-1); !errors.Is(err, streamlock.ErrDurationOutOfRange) {
			t.Fatalf("below min: err = %v, want ErrDurationOutOfRange", err)
		}
		if _, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(1000, usdc), p.MinDuration); err != nil {
			t.Fatalf("at min: %v", err)
		}
		if _, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(1000, usdc), p.MaxDuration); err != nil {
			t.Fatalf("at max: %v", err)
		}
		if _, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(1000, usdc), p.MaxDuration+1); !errors.Is(err, streamlock.ErrDurationOutOfRange) {
			t.Fatalf("above max: err = %v, want ErrDurationOutOfRange", err)
		}
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 10)

		_, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(1000, usdc), 2*time.Hour)
		if !errors.Is(err, streamlock.ErrTransferFailed) {
			t.Fatalf("err = %v, want ErrTransferFailed", err)
		}
		if got := f.locked(alice); got != 0 {
			t.Errorf("locked after failed create = %d, want 0", got)
		}
		if got := f.tr.Funds(alice, usdc).Value; got != 10 {
			t.Errorf("funds = %d, want 10", got)
		}
	})
}

func TestLinearSettlement(t *testing.T) {
	f := newFixture(t)
	f.fund(alice, 100)

	l, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(30 * time.Minute)

	res, err := f.m.SettleStream(f.as(bob), l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Payout.Value != 50 || res.Refund.Value != 50 {
		t.Fatalf("payout/refund = %d/%d, want 50/50", res.Payout.Value, res.Refund.Value)
	}
	if got := f.unlocked(bob); got != 50 {
		t.Errorf("bob unlocked = %d, want 50", got)
	}
	if got := f.unlocked(alice); got != 50 {
		t.Errorf("alice unlocked = %d, want 50", got)
	}
	if got := f.locked(alice); got != 0 {
		t.Errorf("alice locked = %d, want 0", got)
	}
	if got := f.tr.Funds(bob, usdc).Value; got != 50 {
		t.Errorf("bob funds = %d, want 50", got)
	}
	f.assertConservation(alice, bob)

	// Terminal: exactly once
	if _, err := f.m.SettleStream(f.as(bob), l.ID); !errors.Is(err, streamlock.ErrLockSettled) {
		t.Fatalf("second settle: err = %v, want ErrLockSettled", err)
	}
	if _, err := f.m.CancelStream(f.as(alice), l.ID); !errors.Is(err, streamlock.ErrLockSettled) {
		t.Fatalf("cancel after settle: err = %v, want ErrLockSettled", err)
	}
}

func TestTransferFailureRollback(t *testing.T) {
	t.Run("SettlePayoutFailure", func(t *testing.T) {
		f, ft := newFailingFixture(t)
		f.fund(alice, 100)

		l, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(30 * time.Minute)

		ft.refuse[bob] = true
		if _, err := f.m.SettleStream(f.as(bob), l.ID); !errors.Is(err, streamlock.ErrTransferFailed) {
			t.Fatalf("err = %v, want ErrTransferFailed", err)
		}

		// Nothing moved: the lock is still open and all balances are intact.
		got, err := f.m.GetTokenLock(context.Background(), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Settled || !got.Active {
			t.Fatalf("lock after failed payout: settled=%v active=%v", got.Settled, got.Active)
		}
		if f.locked(alice) != 100 || f.unlocked(bob) != 0 {
			t.Fatalf("balances moved: alice locked %d, bob unlocked %d", f.locked(alice), f.unlocked(bob))
		}
		if funds := f.tr.Funds(bob, usdc).Value; funds != 0 {
			t.Fatalf("bob funds = %d, want 0", funds)
		}
		f.assertConservation(alice, bob)

		// Once the rail recovers the same settlement goes through.
		ft.refuse[bob] = false
		res, err := f.m.SettleStream(f.as(bob), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if res.Payout.Value != 50 || res.Refund.Value != 50 {
			t.Fatalf("payout/refund = %d/%d, want 50/50", res.Payout.Value, res.Refund.Value)
		}
		f.assertConservation(alice, bob)
	})

	t.Run("SettleRefundFailureReversesPayout", func(t *testing.T) {
		f, ft := newFailingFixture(t)
		f.fund(alice, 100)

		l, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(30 * time.Minute)

		ft.refuse[alice] = true
		if _, err := f.m.SettleStream(f.as(bob), l.ID); !errors.Is(err, streamlock.ErrTransferFailed) {
			t.Fatalf("err = %v, want ErrTransferFailed", err)
		}

		// The recipient payout that succeeded before the refund failed was
		// pulled back into custody.
		if funds := f.tr.Funds(bob, usdc).Value; funds != 0 {
			t.Fatalf("bob funds = %d, want 0", funds)
		}
		custody, err := f.tr.Custodied(context.Background(), usdc)
		if err != nil {
			t.Fatal(err)
		}
		if custody.Value != 100 {
			t.Fatalf("custody = %d, want 100", custody.Value)
		}
		got, err := f.m.GetTokenLock(context.Background(), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Settled || !got.Active {
			t.Fatalf("lock after failed refund: settled=%v active=%v", got.Settled, got.Active)
		}
		f.assertConservation(alice, bob)
	})

	t.Run("UsagePayoutFailure", func(t *testing.T) {
		f, ft := newFailingFixture(t)
		f.fund(alice, 100)
		f.authorize(platform)

		l, err := f.m.CreateUsagePool(f.as(platform), alice, bob, types.New(100, usdc), 10)
		if err != nil {
			t.Fatal(err)
		}

		ft.refuse[bob] = true
		if _, err := f.m.ConsumeUsageFromPool(f.as(platform), l.ID, 4); !errors.Is(err, streamlock.ErrTransferFailed) {
			t.Fatalf("err = %v, want ErrTransferFailed", err)
		}

		got, err := f.m.GetTokenLock(context.Background(), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.UsedCount != 0 {
			t.Fatalf("used count = %d, want 0", got.UsedCount)
		}
		if f.locked(alice) != 100 || f.unlocked(bob) != 0 {
			t.Fatalf("balances moved: alice locked %d, bob unlocked %d", f.locked(alice), f.unlocked(bob))
		}
		f.assertConservation(alice, bob)

		ft.refuse[bob] = false
		released, err := f.m.ConsumeUsageFromPool(f.as(platform), l.ID, 4)
		if err != nil {
			t.Fatal(err)
		}
		if released.Value != 40 {
			t.Fatalf("released = %d, want 40", released.Value)
		}
		f.assertConservation(alice, bob)
	})

	t.Run("VestingImmediateFailureAbortsCreation", func(t *testing.T) {
		f, ft := newFailingFixture(t)
		f.fund(alice, 100)

		ft.refuse[bob] = true
		_, err := f.m.CreateVestingStream(f.as(alice), alice, bob,
			types.New(100, usdc), t0.Add(time.Hour), 24*time.Hour, types.New(10, usdc))
		if !errors.Is(err, streamlock.ErrTransferFailed) {
			t.Fatalf("err = %v, want ErrTransferFailed", err)
		}

		// The deposit was returned and no lock exists.
		if funds := f.tr.Funds(alice, usdc).Value; funds != 100 {
			t.Fatalf("alice funds = %d, want 100", funds)
		}
		if f.locked(alice) != 0 || f.unlocked(bob) != 0 {
			t.Fatalf("balances moved: alice locked %d, bob unlocked %d", f.locked(alice), f.unlocked(bob))
		}
		streams, err := f.m.GetUserActiveStreams(context.Background(), alice)
		if err != nil {
			t.Fatal(err)
		}
		if len(streams) != 0 {
			t.Fatalf("got %d streams, want 0", len(streams))
		}
		f.assertConservation(alice, bob)
	})
}

func TestSettleStreamAuthorization(t *testing.T) {
	f := newFixture(t)
	f.fund(alice, 100)

	l, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.m.SettleStream(f.as(carol), l.ID); !errors.Is(err, streamlock.ErrNotRecipient) {
		t.Fatalf("stranger settle: err = %v, want ErrNotRecipient", err)
	}

	// Allow-listed callers may settle on the recipient's behalf.
	f.authorize(platform)
	if _, err := f.m.SettleStream(f.as(platform), l.ID); err != nil {
		t.Fatalf("authorized settle: %v", err)
	}
}

func TestVestingStream(t *testing.T) {
	newVesting := func(t *testing.T) (*fixture, *lock.Lock) {
		f := newFixture(t)
		f.fund(alice, 100)
		l, err := f.m.CreateVestingStream(f.as(alice), alice, bob,
			types.New(100, usdc), t0.Add(time.Hour), 24*time.Hour, types.New(10, usdc))
		if err != nil {
			t.Fatal(err)
		}
		return f, l
	}

	t.Run("ImmediatePaidAtCreation", func(t *testing.T) {
		f, _ := newVesting(t)
		if got := f.unlocked(bob); got != 10 {
			t.Errorf("bob unlocked = %d, want 10", got)
		}
		if got := f.tr.Funds(bob, usdc).Value; got != 10 {
			t.Errorf("bob funds = %d, want 10", got)
		}
		if got := f.locked(alice); got != 90 {
			t.Errorf("alice locked = %d, want 90", got)
		}
		f.assertConservation(alice, bob)
	})

	t.Run("PreCliffSettleRefundsVestingPortion", func(t *testing.T) {
		f, l := newVesting(t)
		f.clock.Advance(30 * time.Minute)

		res, err := f.m.SettleStream(f.as(bob), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		// Accrued equals the immediate bonus already paid at creation.
		if res.Payout.Value != 0 || res.Refund.Value != 90 {
			t.Fatalf("payout/refund = %d/%d, want 0/90", res.Payout.Value, res.Refund.Value)
		}
		f.assertConservation(alice, bob)
	})

	t.Run("HalfwayVested", func(t *testing.T) {
		f, l := newVesting(t)
		f.clock.Advance(time.Hour + 12*time.Hour)

		accrued, err := f.m.CalculateAccruedAmount(context.Background(), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if accrued.Value != 55 { // 10 immediate + 45 vested
			t.Fatalf("accrued = %d, want 55", accrued.Value)
		}

		res, err := f.m.SettleStream(f.as(bob), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if res.Payout.Value != 45 || res.Refund.Value != 45 {
			t.Fatalf("payout/refund = %d/%d, want 45/45", res.Payout.Value, res.Refund.Value)
		}
		if got := f.unlocked(bob); got != 55 {
			t.Errorf("bob unlocked = %d, want 55", got)
		}
		f.assertConservation(alice, bob)
	})

	t.Run("FullyVested", func(t *testing.T) {
		f, l := newVesting(t)
		f.clock.Advance(time.Hour + 24*time.Hour)

		res, err := f.m.SettleStream(f.as(bob), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if res.Payout.Value != 90 || res.Refund.Value != 0 {
			t.Fatalf("payout/refund = %d/%d, want 90/0", res.Payout.Value, res.Refund.Value)
		}
		if got := f.tr.Funds(bob, usdc).Value; got != 100 {
			t.Errorf("bob funds = %d, want 100", got)
		}
	})

	t.Run("ImmediateEqualsTotal", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 100)

		// Degenerate but valid: the whole total is the up-front bonus and
		// nothing is left to vest.
		l, err := f.m.CreateVestingStream(f.as(alice), alice, bob,
			types.New(100, usdc), t0.Add(time.Hour), 24*time.Hour, types.New(100, usdc))
		if err != nil {
			t.Fatal(err)
		}
		if got := f.unlocked(bob); got != 100 {
			t.Errorf("bob unlocked = %d, want 100", got)
		}
		if got := f.locked(alice); got != 0 {
			t.Errorf("alice locked = %d, want 0", got)
		}

		res, err := f.m.SettleStream(f.as(bob), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if res.Payout.Value != 0 || res.Refund.Value != 0 {
			t.Fatalf("payout/refund = %d/%d, want 0/0", res.Payout.Value, res.Refund.Value)
		}
		f.assertConservation(alice, bob)
	})

	t.Run("InvalidTerms", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 1000)

		cases := []struct {
			name      string
			total     types.Amount
			cliff     time.Time
			immediate types.Amount
		}{
			{"ImmediateExceedsTotal", types.New(100, usdc), t0.Add(time.Hour), types.New(101, usdc)},
			{"NegativeImmediate", types.New(100, usdc), t0.Add(time.Hour), types.New(-1, usdc)},
			{"CliffInPast", types.New(100, usdc), t0.Add(-time.Minute), types.New(10, usdc)},
			{"AssetMismatch", types.New(100, usdc), t0.Add(time.Hour), types.New(10, "dai")},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.m.CreateVestingStream(f.as(alice), alice, bob, tc.total, tc.cliff, 24*time.Hour, tc.immediate)
				if !errors.Is(err, streamlock.ErrInvalidVestingTerms) {
					t.Fatalf("err = %v, want ErrInvalidVestingTerms", err)
				}
			})
		}
	})
}

func TestUsagePool(t *testing.T) {
	newPool := func(t *testing.T, total, count int64) (*fixture, *lock.Lock) {
		f := newFixture(t)
		f.fund(alice, total)
		f.authorize(platform)
		l, err := f.m.CreateUsagePool(f.as(platform), alice, bob, types.New(total, usdc), count)
		if err != nil {
			t.Fatal(err)
		}
		return f, l
	}

	t.Run("ProportionalRelease", func(t *testing.T) {
		f, l := newPool(t, 50, 100)

		released, err := f.m.ConsumeUsageFromPool(f.as(platform), l.ID, 40)
		if err != nil {
			t.Fatal(err)
		}
		if released.Value != 20 {
			t.Fatalf("released = %d, want 20", released.Value)
		}
		if got := f.locked(alice); got != 30 {
			t.Errorf("alice locked = %d, want 30", got)
		}
		if got := f.unlocked(bob); got != 20 {
			t.Errorf("bob unlocked = %d, want 20", got)
		}
		f.assertConservation(alice, bob)
	})

	t.Run("QuotaExceededLeavesStateUntouched", func(t *testing.T) {
		f, l := newPool(t, 50, 100)

		if _, err := f.m.ConsumeUsageFromPool(f.as(platform), l.ID, 40); err != nil {
			t.Fatal(err)
		}
		if _, err := f.m.ConsumeUsageFromPool(f.as(platform), l.ID, 61); !errors.Is(err, streamlock.ErrInsufficientQuota) {
			t.Fatalf("err = %v, want ErrInsufficientQuota", err)
		}

		got, err := f.m.GetTokenLock(context.Background(), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.UsedCount != 40 {
			t.Errorf("used = %d, want 40 after rejected draw", got.UsedCount)
		}
		if b := f.unlocked(bob); b != 20 {
			t.Errorf("bob unlocked = %d, want 20", b)
		}
	})

	t.Run("ExhaustionFinalizes", func(t *testing.T) {
		f, l := newPool(t, 50, 100)

		if _, err := f.m.ConsumeUsageFromPool(f.as(platform), l.ID, 40); err != nil {
			t.Fatal(err)
		}
		if _, err := f.m.ConsumeUsageFromPool(f.as(platform), l.ID, 60); err != nil {
			t.Fatal(err)
		}

		got, err := f.m.GetTokenLock(context.Background(), l.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Settled || got.Active {
			t.Error("exhausted pool should be settled and inactive")
		}
		if b := f.unlocked(bob); b != 50 {
			t.Errorf("bob unlocked = %d, want 50", b)
		}
		if got := f.locked(alice); got != 0 {
			t.Errorf("alice locked = %d, want 0", got)
		}
		if _, err := f.m.ConsumeUsageFromPool(f.as(platform), l.ID, 1); !errors.Is(err, streamlock.ErrLockSettled) {
			t.Fatalf("consume after exhaustion: err = %v, want ErrLockSettled", err)
		}
	})

	t.Run("RoundingTelescopes", func(t *testing.T) {
		f, l := newPool(t, 10, 3)

		want := []int64{3, 3, 4} // floor shares, last unit absorbs the remainder
		for i, w := range want {
			released, err := f.m.ConsumeUsageFromPool(f.as(platform), l.ID, 1)
			if err != nil {
				t.Fatal(err)
			}
			if released.Value != w {
				t.Fatalf("draw %d released %d, want %d", i, released.Value, w)
			}
		}
		if b := f.unlocked(bob); b != 10 {
			t.Errorf("bob unlocked = %d, want 10", b)
		}
	})

	t.Run("UnauthorizedConsume", func(t *testing.T) {
		f, l := newPool(t, 50, 100)
		// Even the payer cannot draw without being allow-listed.
		if _, err := f.m.ConsumeUsageFromPool(f.as(alice), l.ID, 1); !errors.Is(err, streamlock.ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("NotAPool", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 100)
		f.authorize(platform)
		l, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.m.ConsumeUsageFromPool(f.as(platform), l.ID, 1); !errors.Is(err, streamlock.ErrNotUsagePool) {
			t.Fatalf("err = %v, want ErrNotUsagePool", err)
		}
	})
}

func TestCancelStream(t *testing.T) {
	f := newFixture(t)
	f.fund(alice, 100)

	l, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.m.CancelStream(f.as(bob), l.ID); !errors.Is(err, streamlock.ErrNotPayer) {
		t.Fatalf("recipient cancel: err = %v, want ErrNotPayer", err)
	}

	f.clock.Advance(15 * time.Minute)
	res, err := f.m.CancelStream(f.as(alice), l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Payout.Value != 25 || res.Refund.Value != 75 {
		t.Fatalf("payout/refund = %d/%d, want 25/75", res.Payout.Value, res.Refund.Value)
	}
	if got := f.tr.Funds(alice, usdc).Value; got != 75 {
		t.Errorf("alice funds = %d, want 75", got)
	}
	f.assertConservation(alice, bob)
}

func TestBatchCreateStreams(t *testing.T) {
	t.Run("AllOrNothingValidation", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 300)

		entries := []streamlock.StreamEntry{
			{Recipient: bob, Total: types.New(100, usdc), Duration: time.Hour},
			{Recipient: alice, Total: types.New(100, usdc), Duration: time.Hour}, // self-referential
			{Recipient: carol, Total: types.New(100, usdc), Duration: time.Hour},
		}
		if _, err := f.m.BatchCreateStreams(f.as(alice), alice, entries); !errors.Is(err, streamlock.ErrInvalidRecipient) {
			t.Fatalf("err = %v, want ErrInvalidRecipient", err)
		}
		if got := f.locked(alice); got != 0 {
			t.Errorf("locked after rejected batch = %d, want 0", got)
		}
		if got := f.tr.Funds(alice, usdc).Value; got != 300 {
			t.Errorf("funds = %d, want 300 untouched", got)
		}
	})

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 300)

		entries := []streamlock.StreamEntry{
			{Recipient: bob, Total: types.New(100, usdc), Duration: time.Hour},
			{Recipient: carol, Total: types.New(200, usdc), Duration: 2 * time.Hour},
		}
		locks, err := f.m.BatchCreateStreams(f.as(alice), alice, entries)
		if err != nil {
			t.Fatal(err)
		}
		if len(locks) != 2 {
			t.Fatalf("created %d locks, want 2", len(locks))
		}
		if got := f.locked(alice); got != 300 {
			t.Errorf("locked = %d, want 300", got)
		}
		f.assertConservation(alice, bob, carol)
	})

	t.Run("DepositFailureRollsBack", func(t *testing.T) {
		f := newFixture(t)
		f.fund(alice, 150) // enough for the first entry only

		entries := []streamlock.StreamEntry{
			{Recipient: bob, Total: types.New(100, usdc), Duration: time.Hour},
			{Recipient: carol, Total: types.New(100, usdc), Duration: time.Hour},
		}
		if _, err := f.m.BatchCreateStreams(f.as(alice), alice, entries); !errors.Is(err, streamlock.ErrTransferFailed) {
			t.Fatalf("err = %v, want ErrTransferFailed", err)
		}
		if got := f.tr.Funds(alice, usdc).Value; got != 150 {
			t.Errorf("funds = %d, want 150 after rollback", got)
		}
		if got := f.locked(alice); got != 0 {
			t.Errorf("locked = %d, want 0", got)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.m.BatchCreateStreams(f.as(alice), alice, nil); !errors.Is(err, streamlock.ErrEmptyBatch) {
			t.Fatalf("err = %v, want ErrEmptyBatch", err)
		}
	})
}

func TestClaimStreamsByProducer(t *testing.T) {
	f := newFixture(t)
	f.fund(alice, 100)
	f.fund(carol, 200)

	if _, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.CreateStreamLock(f.as(carol), carol, bob, types.New(200, usdc), 2*time.Hour); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(time.Hour)

	res, err := f.m.ClaimStreamsByProducer(f.as(bob))
	if err != nil {
		t.Fatal(err)
	}
	if res.StreamCount != 2 {
		t.Fatalf("claimed %d streams, want 2", res.StreamCount)
	}
	// First stream fully accrued (100), second halfway (100).
	if got := res.TotalClaimed[usdc]; got != 200 {
		t.Fatalf("claimed total = %d, want 200", got)
	}
	if got := f.unlocked(bob); got != 200 {
		t.Errorf("bob unlocked = %d, want 200", got)
	}
	f.assertConservation(alice, bob, carol)

	// Settled streams are skipped on a second pass.
	res, err = f.m.ClaimStreamsByProducer(f.as(bob))
	if err != nil {
		t.Fatal(err)
	}
	if res.StreamCount != 0 {
		t.Fatalf("second claim settled %d streams, want 0", res.StreamCount)
	}
}

func TestCheckAndSettleOnUsage(t *testing.T) {
	f := newFixture(t)
	f.fund(alice, 100)

	l, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	usable, err := f.m.CheckAndSettleOnUsage(f.as(alice), alice, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !usable {
		t.Fatal("fresh stream should be usable")
	}

	if _, err := f.m.CheckAndSettleOnUsage(f.as(bob), bob, l.ID); !errors.Is(err, streamlock.ErrNotPayer) {
		t.Fatalf("wrong account: err = %v, want ErrNotPayer", err)
	}

	// Expiry settles the stream in the same call.
	f.clock.Advance(time.Hour)
	usable, err = f.m.CheckAndSettleOnUsage(f.as(alice), alice, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if usable {
		t.Fatal("expired stream should not be usable")
	}

	got, err := f.m.GetTokenLock(context.Background(), l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Settled {
		t.Fatal("expired stream should have been settled")
	}
	if b := f.unlocked(bob); b != 100 {
		t.Errorf("bob unlocked = %d, want 100", b)
	}

	// Already settled: unusable, no error.
	usable, err = f.m.CheckAndSettleOnUsage(f.as(alice), alice, l.ID)
	if err != nil || usable {
		t.Fatalf("settled stream: usable=%v err=%v, want false/nil", usable, err)
	}
}

func TestPause(t *testing.T) {
	f := newFixture(t)
	f.fund(alice, 200)

	l, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.m.Pause(f.as(alice)); !errors.Is(err, streamlock.ErrNotAdmin) {
		t.Fatalf("non-admin pause: err = %v, want ErrNotAdmin", err)
	}
	if err := f.m.Pause(f.as(admin)); err != nil {
		t.Fatal(err)
	}

	if _, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour); !errors.Is(err, streamlock.ErrPaused) {
		t.Fatalf("create while paused: err = %v, want ErrPaused", err)
	}
	if _, err := f.m.SettleStream(f.as(bob), l.ID); !errors.Is(err, streamlock.ErrPaused) {
		t.Fatalf("settle while paused: err = %v, want ErrPaused", err)
	}

	// Queries stay available.
	if _, err := f.m.GetStreamStatus(context.Background(), l.ID); err != nil {
		t.Fatalf("query while paused: %v", err)
	}
	if _, err := f.m.GetLockedBalance(context.Background(), alice, usdc); err != nil {
		t.Fatalf("balance while paused: %v", err)
	}

	if err := f.m.Unpause(f.as(admin)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.SettleStream(f.as(bob), l.ID); err != nil {
		t.Fatalf("settle after unpause: %v", err)
	}
}

func TestAdminOps(t *testing.T) {
	t.Run("SetAuthorizedCaller", func(t *testing.T) {
		f := newFixture(t)
		if err := f.m.SetAuthorizedCaller(f.as(alice), platform, true); !errors.Is(err, streamlock.ErrNotAdmin) {
			t.Fatalf("err = %v, want ErrNotAdmin", err)
		}
		if err := f.m.SetAuthorizedCaller(f.as(admin), platform, true); err != nil {
			t.Fatal(err)
		}

		// Revocation takes effect immediately.
		if err := f.m.SetAuthorizedCaller(f.as(admin), platform, false); err != nil {
			t.Fatal(err)
		}
		f.fund(alice, 100)
		if _, err := f.m.CreateStreamLock(f.as(platform), alice, bob, types.New(100, usdc), time.Hour); !errors.Is(err, streamlock.ErrUnauthorized) {
			t.Fatalf("revoked caller: err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("UpdateStreamParams", func(t *testing.T) {
		f := newFixture(t)

		bad := lock.Params{MinAmount: 1, MinDuration: 2 * time.Hour, MaxDuration: time.Hour}
		if err := f.m.UpdateStreamParams(f.as(admin), bad); !errors.Is(err, streamlock.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}

		p := lock.Params{MinAmount: 500, MinDuration: time.Hour, MaxDuration: 48 * time.Hour}
		if err := f.m.UpdateStreamParams(f.as(admin), p); err != nil {
			t.Fatal(err)
		}

		f.fund(alice, 1000)
		if _, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), 2*time.Hour); !errors.Is(err, streamlock.ErrAmountTooSmall) {
			t.Fatalf("err = %v, want ErrAmountTooSmall under new params", err)
		}
		if _, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(500, usdc), 2*time.Hour); err != nil {
			t.Fatal(err)
		}
	})
}

func TestPlanLinkedStreams(t *testing.T) {
	f := newFixture(t)
	f.fund(alice, 300)
	f.fund(carol, 100)
	f.authorize(platform)

	// The plan path is allow-list only, even for the payer itself.
	if _, err := f.m.CreateStreamForCustomerPlan(f.as(alice), alice, bob, types.New(100, usdc), time.Hour, "plan-pro"); !errors.Is(err, streamlock.ErrUnauthorized) {
		t.Fatalf("self-service plan create: err = %v, want ErrUnauthorized", err)
	}

	if _, err := f.m.CreateStreamForCustomerPlan(f.as(platform), alice, bob, types.New(100, usdc), time.Hour, "plan-pro"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.CreateStreamForCustomerPlan(f.as(platform), carol, bob, types.New(100, usdc), time.Hour, "plan-pro"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.CreateStreamForCustomerPlan(f.as(platform), alice, bob, types.New(100, usdc), time.Hour, "plan-basic"); err != nil {
		t.Fatal(err)
	}

	locks, err := f.m.GetLocksByPlan(context.Background(), "plan-pro")
	if err != nil {
		t.Fatal(err)
	}
	if len(locks) != 2 {
		t.Fatalf("plan-pro locks = %d, want 2", len(locks))
	}
	// Creation order holds across payers.
	if locks[0].Payer != alice || locks[1].Payer != carol {
		t.Fatalf("plan-pro payers = %s, %s, want alice, carol", locks[0].Payer, locks[1].Payer)
	}
}

func TestStreamListings(t *testing.T) {
	f := newFixture(t)
	f.fund(alice, 300)

	l1, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.CreateStreamLock(f.as(alice), alice, carol, types.New(100, usdc), time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(100, usdc), 2*time.Hour); err != nil {
		t.Fatal(err)
	}

	out, err := f.m.GetUserActiveStreams(context.Background(), alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("active streams = %d, want 3", len(out))
	}
	if out[0].ID != l1.ID {
		t.Error("listings should be creation-ordered")
	}

	if _, err := f.m.SettleStream(f.as(bob), l1.ID); err != nil {
		t.Fatal(err)
	}

	out, err = f.m.GetUserActiveStreams(context.Background(), alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("active streams after settle = %d, want 2", len(out))
	}

	incoming, err := f.m.GetProducerIncomingStreams(context.Background(), bob)
	if err != nil {
		t.Fatal(err)
	}
	// Incoming listings include settled locks.
	if len(incoming) != 2 {
		t.Fatalf("incoming streams = %d, want 2", len(incoming))
	}
}

func TestConservationAcrossMixedOperations(t *testing.T) {
	f := newFixture(t)
	f.fund(alice, 1000)
	f.fund(carol, 500)
	f.authorize(platform)

	linear, err := f.m.CreateStreamLock(f.as(alice), alice, bob, types.New(300, usdc), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.CreateVestingStream(f.as(alice), alice, bob, types.New(400, usdc), t0.Add(time.Hour), 10*time.Hour, types.New(40, usdc)); err != nil {
		t.Fatal(err)
	}
	pool, err := f.m.CreateUsagePool(f.as(platform), carol, bob, types.New(300, usdc), 7)
	if err != nil {
		t.Fatal(err)
	}
	f.assertConservation(alice, bob, carol)

	f.clock.Advance(20 * time.Minute)
	if _, err := f.m.ConsumeUsageFromPool(f.as(platform), pool.ID, 3); err != nil {
		t.Fatal(err)
	}
	f.assertConservation(alice, bob, carol)

	if _, err := f.m.SettleStream(f.as(bob), linear.ID); err != nil {
		t.Fatal(err)
	}
	f.assertConservation(alice, bob, carol)

	// Total value in the system never changes: funded 1500 across funds,
	// custody and payouts.
	var total int64
	for _, a := range []string{alice, bob, carol, platform} {
		total += f.tr.Funds(a, usdc).Value
	}
	custody, err := f.tr.Custodied(context.Background(), usdc)
	if err != nil {
		t.Fatal(err)
	}
	if total+custody.Value != 1500 {
		t.Fatalf("system total = %d, want 1500", total+custody.Value)
	}
}
