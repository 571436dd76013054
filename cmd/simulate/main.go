// Package main runs a scripted end-to-end marketplace scenario against
// in-memory everything: seeds the registry and oracle, mints assets, lists
// them, settles cross-token purchases and withdraws the proceeds.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"nft-market-lab/internal/chain"
	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/events"
	"nft-market-lab/internal/market"
	"nft-market-lab/internal/oracle"
	"nft-market-lab/internal/registry"
	"nft-market-lab/internal/storage/memory"
)

func main() {
	nativePrice := flag.Int64("native-price", 4000_0000_0000, "Native currency price, 8 decimals")
	stablePrice := flag.Int64("stable-price", 1_0000_0000, "Stable token price, 8 decimals")
	flag.Parse()

	logger := log.New(os.Stderr, "[simulate] ", log.LstdFlags)
	ctx := context.Background()

	// Wallets.
	admin := mustWallet(logger)
	seller := mustWallet(logger)
	buyer := mustWallet(logger)
	marketSelf := mustWallet(logger)
	collection := mustWallet(logger)
	stable := mustWallet(logger)

	// Registry and oracle: native at $4000 / 18 decimals, a 6-decimal
	// stable token at $1.
	bus := events.NewBus()
	tokenRegistry := registry.New(admin, "native-usd", bus)
	if err := tokenRegistry.AddSupportedToken(admin, stable, "stable-usd", 6); err != nil {
		logger.Fatalf("add stable token: %v", err)
	}

	prices := oracle.NewStatic()
	now := time.Now().UnixMilli()
	prices.SetPriceInt64("native-usd", *nativePrice, now)
	prices.SetPriceInt64("stable-usd", *stablePrice, now)

	// Chain state.
	assets := chain.NewAssetCollectionSet()
	bank := chain.NewBank()
	native := chain.NewNative(marketSelf)

	saleStore := memory.NewSaleStore()
	recorder := events.NewRecorder(bus, saleStore, events.WithRecorderLogger(logger))
	recorder.Start(ctx)
	defer recorder.Stop()

	engine, err := market.New(market.Config{
		Self:     marketSelf,
		Tokens:   tokenRegistry,
		Prices:   prices,
		Assets:   assets,
		Bank:     bank,
		Native:   native,
		Listings: memory.NewListingStore(),
		Proceeds: memory.NewProceedsStore(),
		Sink:     bus,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("create market: %v", err)
	}

	// Mint two assets to the seller and approve both for sale.
	for _, id := range []uint64{1, 2} {
		if err := assets.Mint(collection, id, seller); err != nil {
			logger.Fatalf("mint asset %d: %v", id, err)
		}
		assets.Approve(collection, id, true)
	}

	// Asset 1: priced at 1000 whole stable tokens, bought with native
	// currency at the oracle cross rate.
	stableListPrice := whole(1000, 6)
	if err := engine.ListItem(ctx, seller, collection, 1, stableListPrice, stable); err != nil {
		logger.Fatalf("list asset 1: %v", err)
	}

	quote, err := engine.ListingPriceIn(ctx, collection, 1, domain.NativeToken)
	if err != nil {
		logger.Fatalf("quote asset 1: %v", err)
	}
	logger.Printf("asset 1 listed for %s stable units, quoted %s native units", stableListPrice, quote)

	// Fund the buyer and escrow the attachment into the treasury; the
	// engine settles out of the escrow.
	native.SetBalance(buyer, quote)
	if err := native.Move(buyer, marketSelf, quote); err != nil {
		logger.Fatalf("escrow native attachment: %v", err)
	}
	charged1, err := engine.BuyItem(ctx, buyer, collection, 1, domain.NativeToken, quote)
	if err != nil {
		if mvErr := native.Move(marketSelf, buyer, quote); mvErr != nil {
			logger.Printf("reverse native escrow: %v", mvErr)
		}
		logger.Fatalf("buy asset 1: %v", err)
	}

	// Asset 2: priced at half a native unit, bought with the stable token.
	nativeListPrice := new(big.Int).Div(whole(1, 18), big.NewInt(2))
	if err := engine.ListItem(ctx, seller, collection, 2, nativeListPrice, domain.NativeToken); err != nil {
		logger.Fatalf("list asset 2: %v", err)
	}

	required, err := engine.ListingPriceIn(ctx, collection, 2, stable)
	if err != nil {
		logger.Fatalf("quote asset 2: %v", err)
	}
	bank.SetBalance(stable, buyer, required)
	bank.Approve(stable, buyer, required)

	charged2, err := engine.BuyItem(ctx, buyer, collection, 2, stable, nil)
	if err != nil {
		logger.Fatalf("buy asset 2: %v", err)
	}

	// Withdraw proceeds per token.
	withdrawnNative, err := engine.WithdrawProceeds(ctx, seller, domain.NativeToken)
	if err != nil {
		logger.Fatalf("withdraw native proceeds: %v", err)
	}
	withdrawnStable, err := engine.WithdrawProceeds(ctx, seller, stable)
	if err != nil {
		logger.Fatalf("withdraw stable proceeds: %v", err)
	}

	// Let the recorder drain the purchase events.
	sales := waitForSales(ctx, logger, saleStore, seller, 2)

	fmt.Println()
	fmt.Println("=== Settlement Summary ===")
	fmt.Printf("Seller:             %s\n", seller)
	fmt.Printf("Buyer:              %s\n", buyer)
	fmt.Println()
	fmt.Printf("Asset 1 charge:     %s native units (listed %s stable units)\n", charged1, stableListPrice)
	fmt.Printf("Asset 2 charge:     %s stable units (listed %s native units)\n", charged2, nativeListPrice)
	fmt.Println()
	fmt.Printf("Withdrawn native:   %s\n", withdrawnNative)
	fmt.Printf("Withdrawn stable:   %s\n", withdrawnStable)
	fmt.Println()
	fmt.Println("Recorded sales:")
	for _, sale := range sales {
		fmt.Printf("  %s  asset=%d paid=%s token=%s\n",
			sale.SaleID[:16], sale.AssetID, sale.PaidAmount, sale.PaidToken)
	}

	owner1, _ := assets.OwnerOf(ctx, collection, 1)
	owner2, _ := assets.OwnerOf(ctx, collection, 2)
	if owner1 != buyer || owner2 != buyer {
		logger.Fatalf("assets did not reach the buyer: %s, %s", owner1, owner2)
	}
	fmt.Println()
	fmt.Println("Both assets transferred to the buyer.")
}

// mustWallet generates a wallet address or exits.
func mustWallet(logger *log.Logger) domain.Address {
	addr, err := chain.NewWalletAddress()
	if err != nil {
		logger.Fatalf("generate wallet: %v", err)
	}
	return addr
}

// whole returns n whole units of a token with the given decimals.
func whole(n int64, decimals int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)
	return scale.Mul(scale, big.NewInt(n))
}

// waitForSales polls until the recorder has persisted the expected sales.
func waitForSales(ctx context.Context, logger *log.Logger, store *memory.SaleStore, seller domain.Address, want int) []*domain.Sale {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sales, err := store.GetBySeller(ctx, seller)
		if err != nil {
			logger.Fatalf("read sales: %v", err)
		}
		if len(sales) >= want {
			return sales
		}
		time.Sleep(10 * time.Millisecond)
	}
	logger.Printf("warning: recorder persisted fewer than %d sales", want)
	sales, _ := store.GetBySeller(ctx, seller)
	return sales
}
