package postgres

import (
	"context"
	"fmt"
	"math/big"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/storage"
)

// ListingStore implements storage.ListingStore using PostgreSQL.
// Amounts are stored as NUMERIC(78,0) and moved over the wire as text.
type ListingStore struct {
	pool *Pool
}

// NewListingStore creates a new ListingStore.
func NewListingStore(pool *Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ListingStore = (*ListingStore)(nil)

// Insert adds a new listing. Returns ErrDuplicateKey if the key is taken.
func (s *ListingStore) Insert(ctx context.Context, l *domain.Listing) error {
	if l == nil || l.Collection == "" || !l.Listed() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO listings (collection, asset_id, seller, price, payment_token)
		VALUES ($1, $2, $3, $4::numeric, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		string(l.Collection),
		int64(l.AssetID),
		string(l.Seller),
		l.Price.String(),
		string(l.PaymentToken),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

// Get retrieves a listing. Returns ErrNotFound if absent.
func (s *ListingStore) Get(ctx context.Context, collection domain.Address, assetID uint64) (*domain.Listing, error) {
	query := `
		SELECT seller, price::text, payment_token
		FROM listings
		WHERE collection = $1 AND asset_id = $2
	`

	var seller, price, paymentToken string
	err := s.pool.QueryRow(ctx, query, string(collection), int64(assetID)).
		Scan(&seller, &price, &paymentToken)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}

	priceInt, ok := new(big.Int).SetString(price, 10)
	if !ok {
		return nil, fmt.Errorf("get listing: malformed price %q", price)
	}

	return &domain.Listing{
		Collection:   collection,
		AssetID:      assetID,
		Seller:       domain.Address(seller),
		Price:        priceInt,
		PaymentToken: domain.Address(paymentToken),
	}, nil
}

// Update overwrites an existing listing in place. Returns ErrNotFound if absent.
func (s *ListingStore) Update(ctx context.Context, l *domain.Listing) error {
	if l == nil || l.Collection == "" || !l.Listed() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE listings
		SET seller = $3, price = $4::numeric, payment_token = $5, updated_at = now()
		WHERE collection = $1 AND asset_id = $2
	`

	tag, err := s.pool.Exec(ctx, query,
		string(l.Collection),
		int64(l.AssetID),
		string(l.Seller),
		l.Price.String(),
		string(l.PaymentToken),
	)
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a listing. Returns ErrNotFound if absent.
func (s *ListingStore) Delete(ctx context.Context, collection domain.Address, assetID uint64) error {
	query := `DELETE FROM listings WHERE collection = $1 AND asset_id = $2`

	tag, err := s.pool.Exec(ctx, query, string(collection), int64(assetID))
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
