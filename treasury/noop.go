package treasury

import (
	"context"

	"github.com/blicence/streamlock/types"
)

// noop is a Treasury that accepts every movement without holding anything.
// Used when custody is handled out-of-band and the engine only keeps the
// ledger.
type noop struct{}

// Noop returns a Treasury that performs no custody at all.
func Noop() Treasury {
	return noop{}
}

func (noop) Deposit(context.Context, string, types.Amount) error { return nil }
func (noop) Payout(context.Context, string, types.Amount) error  { return nil }

func (noop) Custodied(_ context.Context, asset string) (types.Amount, error) {
	return types.Zero(asset), nil
}
