// Package pricing converts amounts between payment tokens using oracle prices.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/oracle"
)

var (
	// ErrInvalidOraclePrice is returned when an oracle reports a non-positive price.
	ErrInvalidOraclePrice = errors.New("invalid oracle price")

	// ErrInvalidAmount is returned for nil or negative source amounts.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Convert computes the equivalent of amount (in from's smallest unit) in to's
// smallest unit, using the current oracle price of each token.
//
//	result = amount * fromPrice * 10^to.Decimals / (toPrice * 10^from.Decimals)
//
// All multiplications happen before the single division; division truncates
// toward zero. Both feeds report at oracle.PriceDecimals precision, so the
// precision factors cancel and never appear in the formula. When the two
// tokens are the same, amount is returned unchanged and no oracle is read.
func Convert(ctx context.Context, amount *big.Int, from, to domain.TokenInfo, src oracle.Source) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	if from.Token == to.Token {
		return new(big.Int).Set(amount), nil
	}

	fromRound, err := src.LatestRound(ctx, from.PriceFeed)
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", from.PriceFeed, err)
	}
	toRound, err := src.LatestRound(ctx, to.PriceFeed)
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", to.PriceFeed, err)
	}

	if fromRound.Price == nil || fromRound.Price.Sign() <= 0 {
		return nil, fmt.Errorf("feed %s: %w", from.PriceFeed, ErrInvalidOraclePrice)
	}
	if toRound.Price == nil || toRound.Price.Sign() <= 0 {
		return nil, fmt.Errorf("feed %s: %w", to.PriceFeed, ErrInvalidOraclePrice)
	}

	num := new(big.Int).Mul(amount, fromRound.Price)
	num.Mul(num, pow10(to.Decimals))

	den := new(big.Int).Mul(toRound.Price, pow10(from.Decimals))

	return num.Quo(num, den), nil
}

// pow10 returns 10^n as a big.Int.
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
