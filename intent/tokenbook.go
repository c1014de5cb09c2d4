package intent

import (
	"context"
	"errors"
	"sync"

	"github.com/omni/intent-gmp/gmp"
)

var ErrInsufficientBalance = errors.New("insufficient token balance")

// TokenBook abstracts fungible token balances on one ledger. Handlers only
// ever move funds between explicit accounts; there is no mint/burn on the
// escrow paths.
type TokenBook interface {
	Transfer(ctx context.Context, token, from, to gmp.Address, amount uint64) error
	BalanceOf(ctx context.Context, token, owner gmp.Address) (uint64, error)
}

type balanceKey struct {
	token gmp.Address
	owner gmp.Address
}

// BalanceBook is the in-memory TokenBook used by the simulated ledger runtime
// and tests.
type BalanceBook struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
}

func NewBalanceBook() *BalanceBook {
	return &BalanceBook{balances: make(map[balanceKey]uint64)}
}

// Mint credits an account, used to set up genesis balances.
func (b *BalanceBook) Mint(token, owner gmp.Address, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[balanceKey{token, owner}] += amount
}

func (b *BalanceBook) Transfer(_ context.Context, token, from, to gmp.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := balanceKey{token, from}
	if b.balances[src] < amount {
		return ErrInsufficientBalance
	}
	b.balances[src] -= amount
	b.balances[balanceKey{token, to}] += amount
	return nil
}

func (b *BalanceBook) BalanceOf(_ context.Context, token, owner gmp.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[balanceKey{token, owner}], nil
}
