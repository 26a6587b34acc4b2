// Package treasury defines the custody port for the external fungible-asset
// transfer collaborator.
//
// The engine talks ONLY to this interface — never to a token contract, bank
// rail, or chain directly. Deposit pulls value from an account into custody
// at lock creation; Payout releases custodied value to an account at
// settlement, cancellation, or usage consumption.
package treasury

import (
	"context"

	"github.com/blicence/streamlock/types"
)

// Treasury is the asset custody port.
//
// Implementations must be atomic per call: a returned error means no value
// moved. The engine orders all treasury calls before its own ledger
// mutations, so a failed transfer aborts the whole operation with the
// ledger untouched.
type Treasury interface {
	// Deposit pulls amount from the account into custody.
	Deposit(ctx context.Context, account string, amount types.Amount) error

	// Payout releases custodied amount to the account.
	Payout(ctx context.Context, account string, amount types.Amount) error

	// Custodied reports the total value currently held in custody for an asset.
	Custodied(ctx context.Context, asset string) (types.Amount, error)
}

// Transfer is a receipt of one custody movement, kept by implementations
// that record history.
type Transfer struct {
	Account string       `json:"account"`
	Amount  types.Amount `json:"amount"`
	Kind    Kind         `json:"kind"`
}

// Kind distinguishes custody movements.
type Kind string

const (
	KindDeposit Kind = "deposit"
	KindPayout  Kind = "payout"
)
