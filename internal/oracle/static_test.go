package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

func TestStatic_SetAndGet(t *testing.T) {
	src := NewStatic()
	ctx := context.Background()

	src.SetPriceInt64("native-usd", 400000000000, 1000)

	round, err := src.LatestRound(ctx, "native-usd")
	if err != nil {
		t.Fatalf("LatestRound failed: %v", err)
	}
	if round.Price.Cmp(big.NewInt(400000000000)) != 0 {
		t.Errorf("price mismatch: got %s", round.Price)
	}
	if round.UpdatedAt != 1000 {
		t.Errorf("updated_at mismatch: got %d", round.UpdatedAt)
	}
}

func TestStatic_UnknownFeed(t *testing.T) {
	src := NewStatic()

	_, err := src.LatestRound(context.Background(), "missing")
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Errorf("expected ErrFeedUnavailable, got %v", err)
	}
}

func TestStatic_ReturnsCopy(t *testing.T) {
	src := NewStatic()
	ctx := context.Background()

	src.SetPriceInt64("usd6-usd", 100000000, 1000)

	round, _ := src.LatestRound(ctx, "usd6-usd")
	round.Price.SetInt64(0)

	again, _ := src.LatestRound(ctx, "usd6-usd")
	if again.Price.Cmp(big.NewInt(100000000)) != 0 {
		t.Error("mutating a returned round must not affect the source")
	}
}
