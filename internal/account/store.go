// Package account defines the account store contract and its SQLite
// and in-memory implementations. The engine owns no balance state of
// its own: every check reads fresh through this interface.
package account

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an account id is unknown to the store.
var ErrNotFound = errors.New("account not found")

// Store is the engine's view of account state. Balances are whole
// currency units; blacklist membership is held separately from the
// accounts themselves.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Balance(ctx context.Context, id string) (int64, error)
	SetBalance(ctx context.Context, id string, balance int64) error
	IsBlacklisted(ctx context.Context, id string) (bool, error)
	ListAccounts(ctx context.Context) ([]string, error)
}

// Transferer is an optional store capability: move funds between two
// accounts as a single atomic unit. Stores that cannot offer this leave
// compensation to the execution adapter.
type Transferer interface {
	Transfer(ctx context.Context, from, to string, amount int64) error
}

// Seed is the initial dataset loaded into empty stores.
type Seed struct {
	Balances  map[string]int64
	Blacklist []string
}

// DefaultSeed returns the shipped demo dataset.
func DefaultSeed() Seed {
	return Seed{
		Balances: map[string]int64{
			"USER_ACCOUNT": 25000,
			"Account_A":    1000,
			"Account_B":    5000,
			"Account_C":    0,
			"Account_D":    100000,
		},
		Blacklist: []string{"Account_X", "Account_Y", "ILLEGAL_ACCOUNT"},
	}
}
