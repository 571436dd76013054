package market

import (
	"context"
	"math/big"

	"nft-market-lab/internal/domain"
)

// AssetRegistry is the external source of truth for asset ownership and the
// marketplace's transfer authority. SafeTransfer may run recipient hooks,
// which makes it a reentry surface.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, collection domain.Address, assetID uint64) (domain.Address, error)
	IsApprovedForMarketplace(ctx context.Context, collection domain.Address, assetID uint64) (bool, error)
	SafeTransfer(ctx context.Context, collection, from, to domain.Address, assetID uint64) error
}

// TokenBank moves fungible tokens. A false return without an error is a
// failure exactly like an error; callers must check both.
type TokenBank interface {
	// TransferFrom pulls amount from `from` using the marketplace's allowance.
	TransferFrom(ctx context.Context, token, from, to domain.Address, amount *big.Int) (bool, error)

	// Transfer moves amount out of `from` with no allowance check.
	Transfer(ctx context.Context, token, from, to domain.Address, amount *big.Int) (bool, error)

	// BalanceOf returns the owner's balance in the token.
	BalanceOf(ctx context.Context, token, owner domain.Address) (*big.Int, error)
}

// NativeLedger sends native currency for refunds and proceeds payouts.
// Send may run recipient hooks; same reentry surface as SafeTransfer.
type NativeLedger interface {
	Send(ctx context.Context, to domain.Address, amount *big.Int) error
}
