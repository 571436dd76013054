package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"nft-market-lab/internal/domain"
)

type holdingKey struct {
	token domain.Address
	owner domain.Address
}

// Bank tracks per-token fungible balances and the spending allowances
// holders grant the marketplace. FailSilently switches a token into the
// hostile mode where failed transfers return false without an error.
type Bank struct {
	mu         sync.Mutex
	balances   map[holdingKey]*big.Int
	allowances map[holdingKey]*big.Int
	silent     map[domain.Address]bool
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances:   make(map[holdingKey]*big.Int),
		allowances: make(map[holdingKey]*big.Int),
		silent:     make(map[domain.Address]bool),
	}
}

// SetBalance fixes an owner's balance in a token.
func (b *Bank) SetBalance(token, owner domain.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[holdingKey{token, owner}] = new(big.Int).Set(amount)
}

// Approve sets the marketplace's spending allowance over owner's tokens.
func (b *Bank) Approve(token, owner domain.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowances[holdingKey{token, owner}] = new(big.Int).Set(amount)
}

// FailSilently makes every failed transfer in the token report (false, nil)
// instead of an error.
func (b *Bank) FailSilently(token domain.Address, silent bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.silent[token] = silent
}

// BalanceOf returns the owner's balance in a token, zero when absent.
func (b *Bank) BalanceOf(_ context.Context, token, owner domain.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	balance, ok := b.balances[holdingKey{token, owner}]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(balance), nil
}

// TransferFrom pulls amount from `from` using the marketplace's allowance.
// Insufficient balance or allowance fails the transfer.
func (b *Bank) TransferFrom(_ context.Context, token, from, to domain.Address, amount *big.Int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	allowance := b.allowances[holdingKey{token, from}]
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return b.fail(token, "allowance exceeded")
	}

	if ok, err := b.move(token, from, to, amount); !ok {
		return ok, err
	}
	allowance.Sub(allowance, amount)
	return true, nil
}

// Transfer moves amount between two holders with no allowance check; the
// marketplace uses it to pay out of its own treasury.
func (b *Bank) Transfer(_ context.Context, token, from, to domain.Address, amount *big.Int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.move(token, from, to, amount)
}

// move debits from and credits to. Callers hold the lock.
func (b *Bank) move(token, from, to domain.Address, amount *big.Int) (bool, error) {
	balance := b.balances[holdingKey{token, from}]
	if balance == nil || balance.Cmp(amount) < 0 {
		return b.fail(token, "insufficient balance")
	}
	balance.Sub(balance, amount)

	dest, ok := b.balances[holdingKey{token, to}]
	if !ok {
		dest = new(big.Int)
		b.balances[holdingKey{token, to}] = dest
	}
	dest.Add(dest, amount)
	return true, nil
}

// fail reports a transfer failure in the token's configured mode.
func (b *Bank) fail(token domain.Address, reason string) (bool, error) {
	if b.silent[token] {
		return false, nil
	}
	return false, errors.New(reason)
}
