package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"nft-market-lab/internal/domain"
)

// ErrRecipientRejected is returned when a recipient refuses native currency.
var ErrRecipientRejected = errors.New("recipient rejected payment")

// ErrInsufficientNative is returned when a debit exceeds the account balance.
var ErrInsufficientNative = errors.New("insufficient native balance")

// ReceiveNativeHook runs after a native payment lands on its recipient. A
// non-nil return fails the payment. Hostile recipients use it to re-enter
// the marketplace during a refund or withdrawal.
type ReceiveNativeHook func(to domain.Address, amount *big.Int) error

// Native is the native-currency ledger. The treasury account holds escrowed
// attachments and backs every Send; value only moves between accounts, it is
// never created outside SetBalance.
type Native struct {
	treasury domain.Address

	mu        sync.Mutex
	balances  map[domain.Address]*big.Int
	rejecting map[domain.Address]bool
	hooks     map[domain.Address]ReceiveNativeHook
}

// NewNative creates an empty ledger paying out of treasury.
func NewNative(treasury domain.Address) *Native {
	return &Native{
		treasury:  treasury,
		balances:  make(map[domain.Address]*big.Int),
		rejecting: make(map[domain.Address]bool),
		hooks:     make(map[domain.Address]ReceiveNativeHook),
	}
}

// SetBalance fixes an account's balance.
func (n *Native) SetBalance(owner domain.Address, amount *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[owner] = new(big.Int).Set(amount)
}

// Reject makes the account refuse all incoming payments.
func (n *Native) Reject(owner domain.Address, rejecting bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejecting[owner] = rejecting
}

// SetReceiveHook installs a hook that fires whenever owner is paid.
// A nil hook removes it.
func (n *Native) SetReceiveHook(owner domain.Address, hook ReceiveNativeHook) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if hook == nil {
		delete(n.hooks, owner)
		return
	}
	n.hooks[owner] = hook
}

// BalanceOf returns the account's balance, zero when absent.
func (n *Native) BalanceOf(owner domain.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()

	balance, ok := n.balances[owner]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(balance)
}

// Move transfers between accounts without running receive hooks. Hosts use
// it to escrow a buyer's attachment into the treasury before settlement and
// to reverse the escrow when settlement fails.
// Returns ErrInsufficientNative when from cannot cover the amount.
func (n *Native) Move(from, to domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid move amount")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.debit(from, amount); err != nil {
		return err
	}
	n.credit(to, amount)
	return nil
}

// Send pays the recipient out of the treasury, then runs the recipient's
// receive hook. Rejection or a hook error undoes both sides of the payment.
func (n *Native) Send(_ context.Context, to domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid send amount")
	}

	n.mu.Lock()
	if n.rejecting[to] {
		n.mu.Unlock()
		return ErrRecipientRejected
	}
	if err := n.debit(n.treasury, amount); err != nil {
		n.mu.Unlock()
		return err
	}
	n.credit(to, amount)
	hook := n.hooks[to]
	// Released before the hook runs so the hook can call back into the
	// marketplace, which may pay other accounts through this ledger.
	n.mu.Unlock()

	if hook != nil {
		if err := hook(to, amount); err != nil {
			n.mu.Lock()
			n.balances[to].Sub(n.balances[to], amount)
			n.credit(n.treasury, amount)
			n.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrRecipientRejected, err)
		}
	}
	return nil
}

// debit subtracts from an account; callers hold the lock.
func (n *Native) debit(owner domain.Address, amount *big.Int) error {
	balance, ok := n.balances[owner]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientNative
	}
	balance.Sub(balance, amount)
	return nil
}

// credit adds to an account; callers hold the lock.
func (n *Native) credit(owner domain.Address, amount *big.Int) {
	balance, ok := n.balances[owner]
	if !ok {
		balance = new(big.Int)
		n.balances[owner] = balance
	}
	balance.Add(balance, amount)
}
