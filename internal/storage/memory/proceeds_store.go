package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/storage"
)

// ProceedsStore is an in-memory implementation of storage.ProceedsStore.
type ProceedsStore struct {
	mu   sync.Mutex
	data map[string]*big.Int
}

// NewProceedsStore creates a new in-memory proceeds store.
func NewProceedsStore() *ProceedsStore {
	return &ProceedsStore{data: make(map[string]*big.Int)}
}

// proceedsKey generates a unique key for a (seller, token) balance.
func proceedsKey(seller, token domain.Address) string {
	return fmt.Sprintf("%s|%s", seller, token)
}

// Credit adds amount to the seller's balance in the given token.
func (s *ProceedsStore) Credit(_ context.Context, seller, token domain.Address, amount *big.Int) error {
	if seller == "" || token == "" || amount == nil || amount.Sign() < 0 {
		return storage.ErrInvalidInput
	}

	key := proceedsKey(seller, token)

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.data[key]
	if !ok {
		balance = new(big.Int)
		s.data[key] = balance
	}
	balance.Add(balance, amount)
	return nil
}

// Debit subtracts amount from the seller's balance.
func (s *ProceedsStore) Debit(_ context.Context, seller, token domain.Address, amount *big.Int) error {
	if seller == "" || token == "" || amount == nil || amount.Sign() < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.data[proceedsKey(seller, token)]
	if !ok || balance.Cmp(amount) < 0 {
		return storage.ErrInvalidInput
	}
	balance.Sub(balance, amount)
	return nil
}

// Balance returns the current balance, zero for absent entries.
func (s *ProceedsStore) Balance(_ context.Context, seller, token domain.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.data[proceedsKey(seller, token)]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(balance), nil
}

// Take atomically zeroes the balance and returns its prior value.
// The entry slot survives with a zero balance.
func (s *ProceedsStore) Take(_ context.Context, seller, token domain.Address) (*big.Int, error) {
	key := proceedsKey(seller, token)

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.data[key]
	if !ok {
		return new(big.Int), nil
	}

	prior := new(big.Int).Set(balance)
	balance.SetInt64(0)
	return prior, nil
}

var _ storage.ProceedsStore = (*ProceedsStore)(nil)
