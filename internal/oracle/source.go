// Package oracle provides price reference sources for supported payment tokens.
// A source answers "what is one whole token worth right now" in the common quote
// currency, at a fixed precision of PriceDecimals fractional digits.
package oracle

import (
	"context"
	"errors"
	"math/big"
)

// PriceDecimals is the fixed precision of oracle-reported prices.
// A price of 4000_00000000 means $4000 per whole token.
const PriceDecimals uint8 = 8

// ErrFeedUnavailable is returned when a source has no round for the feed.
var ErrFeedUnavailable = errors.New("price feed unavailable")

// Round is one oracle price reading.
type Round struct {
	Price     *big.Int // quote units per whole token, PriceDecimals precision
	UpdatedAt int64    // Unix milliseconds of the reading
}

// Source serves the latest price round per feed identifier.
// Sources do not validate price positivity; the conversion layer does.
type Source interface {
	LatestRound(ctx context.Context, feedID string) (Round, error)
}
