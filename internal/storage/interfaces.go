package storage

import (
	"context"
	"math/big"

	"nft-market-lab/internal/domain"
)

// ListingStore holds the marketplace's active listings.
// Keys are (collection, assetID); a stored listing always has Price > 0.
type ListingStore interface {
	// Insert adds a new listing. Returns ErrDuplicateKey if the key is taken.
	Insert(ctx context.Context, l *domain.Listing) error

	// Get retrieves a listing. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection domain.Address, assetID uint64) (*domain.Listing, error)

	// Update overwrites an existing listing in place. Returns ErrNotFound if absent.
	Update(ctx context.Context, l *domain.Listing) error

	// Delete removes a listing. Returns ErrNotFound if absent.
	Delete(ctx context.Context, collection domain.Address, assetID uint64) error
}

// ProceedsStore holds per (seller, token) withdrawable balances.
// Balances are non-negative; absent entries read as zero.
type ProceedsStore interface {
	// Credit adds amount to the seller's balance in the given token.
	Credit(ctx context.Context, seller, token domain.Address, amount *big.Int) error

	// Debit subtracts amount from the seller's balance. Returns
	// ErrInvalidInput if the balance would go negative.
	Debit(ctx context.Context, seller, token domain.Address, amount *big.Int) error

	// Balance returns the current balance, zero for absent entries.
	Balance(ctx context.Context, seller, token domain.Address) (*big.Int, error)

	// Take atomically zeroes the balance and returns its prior value.
	// The entry slot survives with a zero balance.
	Take(ctx context.Context, seller, token domain.Address) (*big.Int, error)
}

// SaleStore records completed purchases for history and analytics.
type SaleStore interface {
	// Insert adds a sale record. Returns ErrDuplicateKey if sale_id exists.
	Insert(ctx context.Context, s *domain.Sale) error

	// GetBySeller retrieves a seller's sales, ordered by timestamp ASC.
	GetBySeller(ctx context.Context, seller domain.Address) ([]*domain.Sale, error)

	// GetByCollection retrieves a collection's sales, ordered by timestamp ASC.
	GetByCollection(ctx context.Context, collection domain.Address) ([]*domain.Sale, error)

	// GetByTimeRange retrieves sales within [start, end] milliseconds (inclusive).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Sale, error)
}
