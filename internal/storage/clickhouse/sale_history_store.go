package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/observability"
	"nft-market-lab/internal/storage"
)

// SaleHistoryStore implements storage.SaleStore using ClickHouse, plus
// aggregate queries over the sale history.
//
// Raw amounts are stored as decimal strings for exactness; the Float64
// paid_amount column is an approximation used only by aggregates.
type SaleHistoryStore struct {
	conn *Conn
}

// NewSaleHistoryStore creates a new SaleHistoryStore.
func NewSaleHistoryStore(conn *Conn) *SaleHistoryStore {
	return &SaleHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SaleStore = (*SaleHistoryStore)(nil)

const saleHistoryColumns = `
	sale_id, collection, asset_id, seller, buyer,
	listing_token, listing_price_raw, paid_token, paid_amount_raw, timestamp_ms
`

// Insert adds a sale record. Returns ErrDuplicateKey if sale_id exists.
func (s *SaleHistoryStore) Insert(ctx context.Context, sale *domain.Sale) error {
	if sale == nil || sale.SaleID == "" {
		return storage.ErrInvalidInput
	}

	// MergeTree doesn't enforce uniqueness at insert time; check explicitly.
	exists, err := s.exists(ctx, sale.SaleID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	paidApprox, _ := new(big.Float).SetInt(sale.PaidAmount).Float64()

	query := `
		INSERT INTO sale_history (
			sale_id, collection, asset_id, seller, buyer,
			listing_token, listing_price_raw, paid_token, paid_amount_raw,
			paid_amount, timestamp_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	start := time.Now()
	err = s.conn.Exec(ctx, query,
		sale.SaleID,
		string(sale.Collection),
		sale.AssetID,
		string(sale.Seller),
		string(sale.Buyer),
		string(sale.ListingToken),
		sale.ListingPrice.String(),
		string(sale.PaidToken),
		sale.PaidAmount.String(),
		paidApprox,
		sale.Timestamp,
	)
	observability.RecordDBQuery("clickhouse", "insert_sale", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("insert sale history: %w", err)
	}
	return nil
}

// exists checks whether a sale_id is already recorded.
func (s *SaleHistoryStore) exists(ctx context.Context, saleID string) (bool, error) {
	query := `SELECT count() FROM sale_history WHERE sale_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, saleID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetBySeller retrieves a seller's sales, ordered by timestamp ASC.
func (s *SaleHistoryStore) GetBySeller(ctx context.Context, seller domain.Address) ([]*domain.Sale, error) {
	query := `
		SELECT ` + saleHistoryColumns + `
		FROM sale_history
		WHERE seller = ?
		ORDER BY timestamp_ms ASC, sale_id ASC
	`
	return s.querySales(ctx, query, string(seller))
}

// GetByCollection retrieves a collection's sales, ordered by timestamp ASC.
func (s *SaleHistoryStore) GetByCollection(ctx context.Context, collection domain.Address) ([]*domain.Sale, error) {
	query := `
		SELECT ` + saleHistoryColumns + `
		FROM sale_history
		WHERE collection = ?
		ORDER BY timestamp_ms ASC, sale_id ASC
	`
	return s.querySales(ctx, query, string(collection))
}

// GetByTimeRange retrieves sales within [start, end] milliseconds (inclusive).
func (s *SaleHistoryStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Sale, error) {
	query := `
		SELECT ` + saleHistoryColumns + `
		FROM sale_history
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, sale_id ASC
	`
	return s.querySales(ctx, query, start, end)
}

// TokenVolume is an aggregate of paid amounts per payment token.
type TokenVolume struct {
	Token        domain.Address
	Sales        uint64
	VolumeApprox float64 // sum of paid amounts in smallest units, Float64 precision
}

// VolumeByToken aggregates sale count and approximate volume per payment
// token within [start, end] milliseconds.
func (s *SaleHistoryStore) VolumeByToken(ctx context.Context, start, end int64) ([]TokenVolume, error) {
	query := `
		SELECT paid_token, count() AS sales, sum(paid_amount) AS volume
		FROM sale_history
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		GROUP BY paid_token
		ORDER BY volume DESC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("volume by token: %w", err)
	}
	defer rows.Close()

	var result []TokenVolume
	for rows.Next() {
		var token string
		var tv TokenVolume
		if err := rows.Scan(&token, &tv.Sales, &tv.VolumeApprox); err != nil {
			return nil, fmt.Errorf("scan token volume: %w", err)
		}
		tv.Token = domain.Address(token)
		result = append(result, tv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token volumes: %w", err)
	}
	return result, nil
}

// querySales runs a sale query and scans the rows.
func (s *SaleHistoryStore) querySales(ctx context.Context, query string, args ...interface{}) ([]*domain.Sale, error) {
	start := time.Now()
	rows, err := s.conn.Query(ctx, query, args...)
	observability.RecordDBQuery("clickhouse", "query_sales", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query sale history: %w", err)
	}
	defer rows.Close()

	var sales []*domain.Sale
	for rows.Next() {
		var sale domain.Sale
		var collection, seller, buyer string
		var listingToken, paidToken string
		var listingPrice, paidAmount string

		err := rows.Scan(
			&sale.SaleID, &collection, &sale.AssetID, &seller, &buyer,
			&listingToken, &listingPrice, &paidToken, &paidAmount, &sale.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale history: %w", err)
		}

		sale.Collection = domain.Address(collection)
		sale.Seller = domain.Address(seller)
		sale.Buyer = domain.Address(buyer)
		sale.ListingToken = domain.Address(listingToken)
		sale.PaidToken = domain.Address(paidToken)

		var ok bool
		sale.ListingPrice, ok = new(big.Int).SetString(listingPrice, 10)
		if !ok {
			return nil, fmt.Errorf("scan sale history: malformed listing price %q", listingPrice)
		}
		sale.PaidAmount, ok = new(big.Int).SetString(paidAmount, 10)
		if !ok {
			return nil, fmt.Errorf("scan sale history: malformed paid amount %q", paidAmount)
		}

		sales = append(sales, &sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale history: %w", err)
	}
	return sales, nil
}
