package postgres

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/storage"
)

func testSale(id string, ts int64) *domain.Sale {
	return &domain.Sale{
		SaleID:       id,
		Collection:   testAddr(0x20),
		AssetID:      0,
		Seller:       testAddr(0x01),
		Buyer:        testAddr(0x02),
		ListingPrice: big.NewInt(1000_000000),
		ListingToken: testAddr(0x10),
		PaidAmount:   big.NewInt(250),
		PaidToken:    domain.NativeToken,
		Timestamp:    ts,
	}
}

func TestSaleStore_InsertAndQuery(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSaleStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testSale("s2", 2000)))
	require.NoError(t, store.Insert(ctx, testSale("s1", 1000)))

	sales, err := store.GetBySeller(ctx, testAddr(0x01))
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "s1", sales[0].SaleID)
	assert.Equal(t, "s2", sales[1].SaleID)
	assert.Zero(t, sales[0].PaidAmount.Cmp(big.NewInt(250)))
	assert.Equal(t, domain.NativeToken, sales[0].PaidToken)

	byCollection, err := store.GetByCollection(ctx, testAddr(0x20))
	require.NoError(t, err)
	assert.Len(t, byCollection, 2)

	inRange, err := store.GetByTimeRange(ctx, 1500, 2500)
	require.NoError(t, err)
	require.Len(t, inRange, 1)
	assert.Equal(t, "s2", inRange[0].SaleID)
}

func TestSaleStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSaleStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testSale("s1", 1000)))
	assert.ErrorIs(t, store.Insert(ctx, testSale("s1", 2000)), storage.ErrDuplicateKey)
}

func TestSaleStore_EmptyResults(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSaleStore(pool)
	ctx := context.Background()

	sales, err := store.GetBySeller(ctx, testAddr(0x09))
	require.NoError(t, err)
	assert.Empty(t, sales)
}
