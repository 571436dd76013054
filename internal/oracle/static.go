package oracle

import (
	"context"
	"math/big"
	"sync"
)

// Static is a mutable in-memory price source.
// Used by simulations and as a deterministic substitute in tests.
type Static struct {
	mu     sync.RWMutex
	rounds map[string]Round
}

// NewStatic creates an empty static source.
func NewStatic() *Static {
	return &Static{rounds: make(map[string]Round)}
}

// SetPrice records the current price for a feed.
func (s *Static) SetPrice(feedID string, price *big.Int, updatedAt int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[feedID] = Round{Price: new(big.Int).Set(price), UpdatedAt: updatedAt}
}

// SetPriceInt64 is a convenience wrapper for fixture prices.
func (s *Static) SetPriceInt64(feedID string, price int64, updatedAt int64) {
	s.SetPrice(feedID, big.NewInt(price), updatedAt)
}

// LatestRound returns the most recently set round for the feed.
func (s *Static) LatestRound(_ context.Context, feedID string) (Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	round, ok := s.rounds[feedID]
	if !ok {
		return Round{}, ErrFeedUnavailable
	}
	return Round{Price: new(big.Int).Set(round.Price), UpdatedAt: round.UpdatedAt}, nil
}

var _ Source = (*Static)(nil)
