// Package streamlock provides a time- and usage-based value-release lock
// engine for Go applications.
//
// StreamLock is designed as a library, not a service. A payer locks a total
// amount of some fungible asset for a recipient, and the engine releases it
// under one of three modes:
//
//   - Linear streams accrue evenly over a duration
//   - Vesting streams pay an immediate bonus, then vest linearly after a cliff
//   - Usage pools release a proportional share per consumed unit
//
// The engine keeps a lock ledger and per-account locked/unlocked balances,
// moves custody through a pluggable treasury, gates privileged paths with an
// allow-list, and exposes lifecycle hooks through a plugin registry.
//
// # Quick Start
//
// Create a manager with your preferred store:
//
//	import (
//	    "github.com/blicence/streamlock"
//	    "github.com/blicence/streamlock/store/memory"
//	)
//
//	// Create the engine
//	m := streamlock.New(memory.New(), streamlock.WithAdmin("ops"))
//
//	// Start it (runs migrations, loads persisted params)
//	if err := m.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Stop()
//
// SQL deployments construct their store from a grove database handle
// instead:
//
//	st := postgres.New(db) // db *grove.DB
//	m := streamlock.New(st)
//
// # Core Concepts
//
// Every mutating call carries its caller identity in the context:
//
//	ctx = streamlock.WithCaller(ctx, "alice")
//	l, err := m.CreateStreamLock(ctx, "alice", "bob",
//	    streamlock.NewAmount(1_000_000, "usdc"), 30*24*time.Hour)
//
// Settlement is a one-shot finalization: the accrued share goes to the
// recipient, the remainder refunds to the payer, and the lock becomes
// terminal. Accrual is computed on demand; there are no background workers
// and no auto-expiry.
//
// All proportional math is integer floor division in the asset's smallest
// unit. For every lock at every instant, accrued + remaining equals the
// locked total; rounding loss lands on the refund side.
package streamlock
