// Package balance defines the per-(account, asset) aggregate counters.
package balance

import "github.com/blicence/streamlock/types"

// Record holds the aggregated balances for one (account, asset) pair.
//
// Locked is the payer-side total still held by active locks: at every
// observable point between operations it equals the sum of remaining value
// across that account's active locks in the asset. Unlocked is the value
// this ledger has credited to the account through payouts and refunds.
type Record struct {
	Account  string       `json:"account"`
	Asset    string       `json:"asset"`
	Locked   types.Amount `json:"locked"`
	Unlocked types.Amount `json:"unlocked"`
}

// NewRecord returns a zero-valued record for the pair.
func NewRecord(account, asset string) *Record {
	return &Record{
		Account:  account,
		Asset:    asset,
		Locked:   types.Zero(asset),
		Unlocked: types.Zero(asset),
	}
}

// Total returns locked plus unlocked value.
func (r *Record) Total() types.Amount {
	return r.Locked.Add(r.Unlocked)
}
