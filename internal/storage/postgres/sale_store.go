package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/storage"
)

// SaleStore implements storage.SaleStore using PostgreSQL.
type SaleStore struct {
	pool *Pool
}

// NewSaleStore creates a new SaleStore.
func NewSaleStore(pool *Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SaleStore = (*SaleStore)(nil)

const saleColumns = `
	sale_id, collection, asset_id, seller, buyer,
	listing_price::text, listing_token, paid_amount::text, paid_token, timestamp
`

// Insert adds a sale record. Returns ErrDuplicateKey if sale_id exists.
func (s *SaleStore) Insert(ctx context.Context, sale *domain.Sale) error {
	if sale == nil || sale.SaleID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO sales (
			sale_id, collection, asset_id, seller, buyer,
			listing_price, listing_token, paid_amount, paid_token, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8::numeric, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		sale.SaleID,
		string(sale.Collection),
		int64(sale.AssetID),
		string(sale.Seller),
		string(sale.Buyer),
		sale.ListingPrice.String(),
		string(sale.ListingToken),
		sale.PaidAmount.String(),
		string(sale.PaidToken),
		sale.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

// GetBySeller retrieves a seller's sales, ordered by timestamp ASC.
func (s *SaleStore) GetBySeller(ctx context.Context, seller domain.Address) ([]*domain.Sale, error) {
	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE seller = $1
		ORDER BY timestamp ASC, sale_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(seller))
	if err != nil {
		return nil, fmt.Errorf("get sales by seller: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// GetByCollection retrieves a collection's sales, ordered by timestamp ASC.
func (s *SaleStore) GetByCollection(ctx context.Context, collection domain.Address) ([]*domain.Sale, error) {
	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE collection = $1
		ORDER BY timestamp ASC, sale_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(collection))
	if err != nil {
		return nil, fmt.Errorf("get sales by collection: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// GetByTimeRange retrieves sales within [start, end] milliseconds (inclusive).
func (s *SaleStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Sale, error) {
	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC, sale_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get sales by time range: %w", err)
	}
	defer rows.Close()

	return scanSales(rows)
}

// scanSales reads sale rows into domain structs.
func scanSales(rows pgx.Rows) ([]*domain.Sale, error) {
	var sales []*domain.Sale
	for rows.Next() {
		var sale domain.Sale
		var collection, seller, buyer string
		var listingToken, paidToken string
		var listingPrice, paidAmount string
		var assetID int64
		err := rows.Scan(
			&sale.SaleID, &collection, &assetID, &seller, &buyer,
			&listingPrice, &listingToken, &paidAmount, &paidToken, &sale.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}

		sale.Collection = domain.Address(collection)
		sale.AssetID = uint64(assetID)
		sale.Seller = domain.Address(seller)
		sale.Buyer = domain.Address(buyer)
		sale.ListingToken = domain.Address(listingToken)
		sale.PaidToken = domain.Address(paidToken)

		var ok bool
		sale.ListingPrice, ok = new(big.Int).SetString(listingPrice, 10)
		if !ok {
			return nil, fmt.Errorf("scan sale: malformed listing price %q", listingPrice)
		}
		sale.PaidAmount, ok = new(big.Int).SetString(paidAmount, 10)
		if !ok {
			return nil, fmt.Errorf("scan sale: malformed paid amount %q", paidAmount)
		}

		sales = append(sales, &sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}
	return sales, nil
}
