package treasury

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blicence/streamlock/id"
	"github.com/blicence/streamlock/types"
)

// ErrInsufficientFunds is returned by the memory treasury when a deposit
// exceeds the account's funded balance.
var ErrInsufficientFunds = errors.New("treasury: insufficient funds")

var _ Treasury = (*Memory)(nil)

// Memory is an in-process Treasury used by tests and demos. Accounts are
// funded explicitly with Fund; deposits draw those balances down into a
// per-asset custody pool and payouts pay them back out.
type Memory struct {
	mu        sync.Mutex
	funds     map[string]int64 // account|asset → available balance
	custody   map[string]int64 // asset → custodied total
	transfers []Transfer
	receipts  []id.TransferID
}

// NewMemory creates an empty in-memory treasury.
func NewMemory() *Memory {
	return &Memory{
		funds:   make(map[string]int64),
		custody: make(map[string]int64),
	}
}

// Fund credits an account with spendable value. Test setup only.
func (m *Memory) Fund(account string, amount types.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.funds[fundKey(account, amount.Asset)] += amount.Value
}

// Deposit implements Treasury.
func (m *Memory) Deposit(_ context.Context, account string, amount types.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fundKey(account, amount.Asset)
	if m.funds[key] < amount.Value {
		return fmt.Errorf("%w: %s has %d, need %d %s",
			ErrInsufficientFunds, account, m.funds[key], amount.Value, amount.Asset)
	}

	m.funds[key] -= amount.Value
	m.custody[amount.Asset] += amount.Value
	m.record(account, amount, KindDeposit)
	return nil
}

// Payout implements Treasury.
func (m *Memory) Payout(_ context.Context, account string, amount types.Amount) error {
	if amount.IsZero() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.custody[amount.Asset] < amount.Value {
		return fmt.Errorf("treasury: custody underflow for %s: have %d, need %d",
			amount.Asset, m.custody[amount.Asset], amount.Value)
	}

	m.custody[amount.Asset] -= amount.Value
	m.funds[fundKey(account, amount.Asset)] += amount.Value
	m.record(account, amount, KindPayout)
	return nil
}

// Custodied implements Treasury.
func (m *Memory) Custodied(_ context.Context, asset string) (types.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return types.New(m.custody[asset], asset), nil
}

// Funds returns the spendable balance of an account. Test helper.
func (m *Memory) Funds(account, asset string) types.Amount {
	m.mu.Lock()
	defer m.mu.Unlock()

	return types.New(m.funds[fundKey(account, asset)], asset)
}

// Receipts returns the ids issued for each recorded movement.
func (m *Memory) Receipts() []id.TransferID {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]id.TransferID, len(m.receipts))
	copy(out, m.receipts)
	return out
}

// Transfers returns a copy of the recorded movement history.
func (m *Memory) Transfers() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}

func (m *Memory) record(account string, amount types.Amount, kind Kind) {
	m.transfers = append(m.transfers, Transfer{Account: account, Amount: amount, Kind: kind})
	m.receipts = append(m.receipts, id.NewTransferID())
}

func fundKey(account, asset string) string {
	return account + "|" + asset
}
