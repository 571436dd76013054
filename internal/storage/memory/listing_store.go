package memory

import (
	"context"
	"fmt"
	"sync"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/storage"
)

// ListingStore is an in-memory implementation of storage.ListingStore.
// It is the canonical ledger backing for the settlement core.
type ListingStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Listing
}

// NewListingStore creates a new in-memory listing store.
func NewListingStore() *ListingStore {
	return &ListingStore{data: make(map[string]*domain.Listing)}
}

// listingKey generates a unique key for a listing.
func listingKey(collection domain.Address, assetID uint64) string {
	return fmt.Sprintf("%s|%d", collection, assetID)
}

// Insert adds a new listing. Returns ErrDuplicateKey if the key is taken.
func (s *ListingStore) Insert(_ context.Context, l *domain.Listing) error {
	if l == nil || l.Collection == "" || !l.Listed() {
		return storage.ErrInvalidInput
	}

	key := listingKey(l.Collection, l.AssetID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[key] = l.Clone()
	return nil
}

// Get retrieves a listing. Returns ErrNotFound if absent.
func (s *ListingStore) Get(_ context.Context, collection domain.Address, assetID uint64) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.data[listingKey(collection, assetID)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return l.Clone(), nil
}

// Update overwrites an existing listing in place. Returns ErrNotFound if absent.
func (s *ListingStore) Update(_ context.Context, l *domain.Listing) error {
	if l == nil || l.Collection == "" || !l.Listed() {
		return storage.ErrInvalidInput
	}

	key := listingKey(l.Collection, l.AssetID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return storage.ErrNotFound
	}

	s.data[key] = l.Clone()
	return nil
}

// Delete removes a listing. Returns ErrNotFound if absent.
func (s *ListingStore) Delete(_ context.Context, collection domain.Address, assetID uint64) error {
	key := listingKey(collection, assetID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return storage.ErrNotFound
	}

	delete(s.data, key)
	return nil
}

var _ storage.ListingStore = (*ListingStore)(nil)
