package memory

import (
	"context"
	"sort"
	"sync"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/storage"
)

// SaleStore is an in-memory implementation of storage.SaleStore.
type SaleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Sale // keyed by sale_id
}

// NewSaleStore creates a new in-memory sale store.
func NewSaleStore() *SaleStore {
	return &SaleStore{data: make(map[string]*domain.Sale)}
}

// Insert adds a sale record. Returns ErrDuplicateKey if sale_id exists.
func (s *SaleStore) Insert(_ context.Context, sale *domain.Sale) error {
	if sale == nil || sale.SaleID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sale.SaleID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[sale.SaleID] = sale.Clone()
	return nil
}

// GetBySeller retrieves a seller's sales, ordered by timestamp ASC.
func (s *SaleStore) GetBySeller(_ context.Context, seller domain.Address) ([]*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Sale
	for _, sale := range s.data {
		if sale.Seller == seller {
			result = append(result, sale.Clone())
		}
	}
	sortSales(result)
	return result, nil
}

// GetByCollection retrieves a collection's sales, ordered by timestamp ASC.
func (s *SaleStore) GetByCollection(_ context.Context, collection domain.Address) ([]*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Sale
	for _, sale := range s.data {
		if sale.Collection == collection {
			result = append(result, sale.Clone())
		}
	}
	sortSales(result)
	return result, nil
}

// GetByTimeRange retrieves sales within [start, end] milliseconds (inclusive).
func (s *SaleStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Sale
	for _, sale := range s.data {
		if sale.Timestamp >= start && sale.Timestamp <= end {
			result = append(result, sale.Clone())
		}
	}
	sortSales(result)
	return result, nil
}

func sortSales(sales []*domain.Sale) {
	sort.Slice(sales, func(i, j int) bool {
		if sales[i].Timestamp != sales[j].Timestamp {
			return sales[i].Timestamp < sales[j].Timestamp
		}
		return sales[i].SaleID < sales[j].SaleID
	})
}

var _ storage.SaleStore = (*SaleStore)(nil)
