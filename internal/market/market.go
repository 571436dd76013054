// Package market is the settlement core: the listing ledger, the purchase
// engine and the proceeds ledger. Every operation is all-or-nothing; external
// transfer failures unwind any ledger writes already made.
package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/events"
	"nft-market-lab/internal/observability"
	"nft-market-lab/internal/oracle"
	"nft-market-lab/internal/pricing"
	"nft-market-lab/internal/storage"
)

// TokenCatalog resolves payment tokens to their oracle feed and precision.
// A false second return means the token is not supported.
type TokenCatalog interface {
	Info(token domain.Address) (domain.TokenInfo, bool)
}

// Config wires a Market's collaborators and stores.
type Config struct {
	// Self is the marketplace's own identity; pulled fungible payments land
	// here until the seller withdraws them.
	Self domain.Address

	Tokens   TokenCatalog
	Prices   oracle.Source
	Assets   AssetRegistry
	Bank     TokenBank
	Native   NativeLedger
	Listings storage.ListingStore
	Proceeds storage.ProceedsStore

	Sink   events.Sink // optional, defaults to events.Discard
	Logger *log.Logger // optional, defaults to log.Default
}

// Market executes listing mutations, purchases and withdrawals.
//
// The host serializes operations; Market is not safe for concurrent callers.
// What it defends against is reentry: a transfer hook calling back in on the
// same goroutine while a purchase or withdrawal is in flight.
type Market struct {
	self     domain.Address
	tokens   TokenCatalog
	prices   oracle.Source
	assets   AssetRegistry
	bank     TokenBank
	native   NativeLedger
	listings storage.ListingStore
	proceeds storage.ProceedsStore
	sink     events.Sink
	logger   *log.Logger

	entered bool
}

// New validates the config and creates a Market.
func New(cfg Config) (*Market, error) {
	switch {
	case cfg.Self == "":
		return nil, errors.New("market: missing self identity")
	case cfg.Tokens == nil:
		return nil, errors.New("market: missing token catalog")
	case cfg.Prices == nil:
		return nil, errors.New("market: missing price source")
	case cfg.Assets == nil:
		return nil, errors.New("market: missing asset registry")
	case cfg.Bank == nil:
		return nil, errors.New("market: missing token bank")
	case cfg.Native == nil:
		return nil, errors.New("market: missing native ledger")
	case cfg.Listings == nil:
		return nil, errors.New("market: missing listing store")
	case cfg.Proceeds == nil:
		return nil, errors.New("market: missing proceeds store")
	}

	if cfg.Sink == nil {
		cfg.Sink = events.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Market{
		self:     cfg.Self,
		tokens:   cfg.Tokens,
		prices:   cfg.Prices,
		assets:   cfg.Assets,
		bank:     cfg.Bank,
		native:   cfg.Native,
		listings: cfg.Listings,
		proceeds: cfg.Proceeds,
		sink:     cfg.Sink,
		logger:   cfg.Logger,
	}, nil
}

// enter flips the reentrancy flag for the guarded operations.
func (m *Market) enter() error {
	if m.entered {
		return ErrReentrant
	}
	m.entered = true
	return nil
}

func (m *Market) leave() {
	m.entered = false
}

// ListItem creates a listing. The caller must own the asset and have granted
// the marketplace transfer authority over it.
func (m *Market) ListItem(ctx context.Context, caller, collection domain.Address, assetID uint64, price *big.Int, paymentToken domain.Address) error {
	if price == nil || price.Sign() <= 0 {
		return ErrPriceMustBeAboveZero
	}

	owner, err := m.assets.OwnerOf(ctx, collection, assetID)
	if err != nil {
		return fmt.Errorf("resolve owner: %w", err)
	}
	if owner != caller {
		return ErrNotOwner
	}

	approved, err := m.assets.IsApprovedForMarketplace(ctx, collection, assetID)
	if err != nil {
		return fmt.Errorf("check approval: %w", err)
	}
	if !approved {
		return ErrNotApprovedForMarketplace
	}

	if _, err := m.listings.Get(ctx, collection, assetID); err == nil {
		return ErrAlreadyListed
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load listing: %w", err)
	}

	if _, ok := m.tokens.Info(paymentToken); !ok {
		return ErrTokenNotSupported
	}

	listing := &domain.Listing{
		Collection:   collection,
		AssetID:      assetID,
		Seller:       caller,
		Price:        new(big.Int).Set(price),
		PaymentToken: paymentToken,
	}
	if err := m.listings.Insert(ctx, listing); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return ErrAlreadyListed
		}
		return fmt.Errorf("insert listing: %w", err)
	}

	m.sink.Publish(domain.ItemListed{
		Seller:       caller,
		Collection:   collection,
		AssetID:      assetID,
		Price:        new(big.Int).Set(price),
		PaymentToken: paymentToken,
	})
	return nil
}

// UpdateListing overwrites an existing listing's price and payment token.
// Only the recorded seller may update.
func (m *Market) UpdateListing(ctx context.Context, caller, collection domain.Address, assetID uint64, newPrice *big.Int, newPaymentToken domain.Address) error {
	listing, err := m.listings.Get(ctx, collection, assetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotListed
		}
		return fmt.Errorf("load listing: %w", err)
	}
	if listing.Seller != caller {
		return ErrNotOwner
	}
	if newPrice == nil || newPrice.Sign() <= 0 {
		return ErrPriceMustBeAboveZero
	}
	if _, ok := m.tokens.Info(newPaymentToken); !ok {
		return ErrTokenNotSupported
	}

	listing.Price = new(big.Int).Set(newPrice)
	listing.PaymentToken = newPaymentToken
	if err := m.listings.Update(ctx, listing); err != nil {
		return fmt.Errorf("update listing: %w", err)
	}

	// Updates are observationally identical to fresh listings.
	m.sink.Publish(domain.ItemListed{
		Seller:       caller,
		Collection:   collection,
		AssetID:      assetID,
		Price:        new(big.Int).Set(newPrice),
		PaymentToken: newPaymentToken,
	})
	return nil
}

// CancelListing removes a listing. Only the recorded seller may cancel; the
// listing's payment token does not need to still be supported.
func (m *Market) CancelListing(ctx context.Context, caller, collection domain.Address, assetID uint64) error {
	listing, err := m.listings.Get(ctx, collection, assetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotListed
		}
		return fmt.Errorf("load listing: %w", err)
	}
	if listing.Seller != caller {
		return ErrNotOwner
	}

	if err := m.listings.Delete(ctx, collection, assetID); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}

	m.sink.Publish(domain.ItemCanceled{
		Seller:     caller,
		Collection: collection,
		AssetID:    assetID,
	})
	return nil
}

// GetListing returns the listing, or a zero-price listing when absent.
func (m *Market) GetListing(ctx context.Context, collection domain.Address, assetID uint64) (*domain.Listing, error) {
	listing, err := m.listings.Get(ctx, collection, assetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &domain.Listing{Collection: collection, AssetID: assetID, Price: new(big.Int)}, nil
		}
		return nil, fmt.Errorf("load listing: %w", err)
	}
	return listing, nil
}

// ListingPriceIn converts a listing's price into the given payment token at
// current oracle rates.
func (m *Market) ListingPriceIn(ctx context.Context, collection domain.Address, assetID uint64, token domain.Address) (*big.Int, error) {
	listing, err := m.listings.Get(ctx, collection, assetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotListed
		}
		return nil, fmt.Errorf("load listing: %w", err)
	}

	payInfo, ok := m.tokens.Info(token)
	if !ok {
		return nil, ErrTokenNotSupported
	}
	listingInfo, ok := m.tokens.Info(listing.PaymentToken)
	if !ok {
		return nil, fmt.Errorf("listing denomination %s: %w", listing.PaymentToken, ErrTokenNotSupported)
	}

	return pricing.Convert(ctx, listing.Price, listingInfo, payInfo, m.prices)
}

// BuyItem purchases a listed asset, paying with payWithToken. Returns the
// amount actually charged.
//
// For native payment the host moves attachedNative into the treasury before
// the call. On success the engine refunds the excess over the required
// amount and keeps the rest for the seller's withdrawal; on an error return
// the host reverses whatever the treasury still holds of the attachment, so
// a failed buy leaves the buyer whole.
//
// Ledger writes happen before any external transfer, so a reentrant call
// observes the listing already gone; an external failure afterwards unwinds
// the writes and leaves the listing intact.
func (m *Market) BuyItem(ctx context.Context, buyer, collection domain.Address, assetID uint64, payWithToken domain.Address, attachedNative *big.Int) (*big.Int, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.leave()

	listing, err := m.listings.Get(ctx, collection, assetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotListed
		}
		return nil, fmt.Errorf("load listing: %w", err)
	}

	payInfo, ok := m.tokens.Info(payWithToken)
	if !ok {
		return nil, ErrTokenNotSupported
	}
	listingInfo, ok := m.tokens.Info(listing.PaymentToken)
	if !ok {
		// The listing survives its token's removal but cannot be priced.
		return nil, fmt.Errorf("listing denomination %s: %w", listing.PaymentToken, ErrTokenNotSupported)
	}

	required, err := pricing.Convert(ctx, listing.Price, listingInfo, payInfo, m.prices)
	if err != nil {
		return nil, fmt.Errorf("convert price: %w", err)
	}

	payNative := payWithToken.IsNative()
	if payNative {
		if attachedNative == nil || attachedNative.Cmp(required) < 0 {
			return nil, ErrPriceNotMet
		}
	}

	// Effects before interactions: a hook re-entering from the transfers
	// below must see the listing gone and the seller already credited.
	if err := m.listings.Delete(ctx, collection, assetID); err != nil {
		return nil, fmt.Errorf("delete listing: %w", err)
	}
	if err := m.proceeds.Credit(ctx, listing.Seller, payWithToken, required); err != nil {
		m.restoreListing(ctx, listing)
		return nil, fmt.Errorf("credit proceeds: %w", err)
	}

	if payNative {
		// The host escrows attachedNative for the duration of the call;
		// only the excess moves here.
		excess := new(big.Int).Sub(attachedNative, required)
		if excess.Sign() > 0 {
			if err := m.native.Send(ctx, buyer, excess); err != nil {
				m.unwind(ctx, listing, payWithToken, required)
				return nil, fmt.Errorf("refund excess: %w (%v)", ErrTransferFailed, err)
			}
			observability.DefaultMetrics.NativeRefundsTotal.Inc()
		}
	} else {
		ok, err := m.bank.TransferFrom(ctx, payWithToken, buyer, m.self, required)
		if err != nil || !ok {
			m.unwind(ctx, listing, payWithToken, required)
			if err != nil {
				return nil, fmt.Errorf("pull payment: %w (%v)", ErrTransferFailed, err)
			}
			return nil, fmt.Errorf("pull payment: %w", ErrTransferFailed)
		}
	}

	if err := m.assets.SafeTransfer(ctx, collection, listing.Seller, buyer, assetID); err != nil {
		if !payNative {
			// Return the pulled payment before unwinding the ledger.
			if ok, rerr := m.bank.Transfer(ctx, payWithToken, m.self, buyer, required); rerr != nil || !ok {
				m.logger.Printf("market: returning payment to %s failed: %v", buyer, rerr)
			}
		}
		m.unwind(ctx, listing, payWithToken, required)
		return nil, fmt.Errorf("transfer asset: %w (%v)", ErrTransferFailed, err)
	}

	m.sink.Publish(domain.ItemBought{
		Buyer:        buyer,
		Seller:       listing.Seller,
		Collection:   collection,
		AssetID:      assetID,
		Amount:       new(big.Int).Set(required),
		PaymentToken: payWithToken,
		ListingPrice: new(big.Int).Set(listing.Price),
		ListingToken: listing.PaymentToken,
	})
	return required, nil
}

// WithdrawProceeds pays out the caller's full balance in the given token.
// The balance is zeroed before the payout and restored if the payout fails.
func (m *Market) WithdrawProceeds(ctx context.Context, caller, token domain.Address) (*big.Int, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.leave()

	amount, err := m.proceeds.Take(ctx, caller, token)
	if err != nil {
		return nil, fmt.Errorf("take proceeds: %w", err)
	}
	if amount.Sign() == 0 {
		return nil, ErrNoProceeds
	}

	var payoutErr error
	if token.IsNative() {
		payoutErr = m.native.Send(ctx, caller, amount)
	} else {
		ok, err := m.bank.Transfer(ctx, token, m.self, caller, amount)
		if err != nil {
			payoutErr = err
		} else if !ok {
			payoutErr = errors.New("transfer returned false")
		}
	}

	if payoutErr != nil {
		if err := m.proceeds.Credit(ctx, caller, token, amount); err != nil {
			m.logger.Printf("market: restoring %s proceeds for %s failed: %v", token, caller, err)
		}
		return nil, fmt.Errorf("pay out proceeds: %w (%v)", ErrTransferFailed, payoutErr)
	}
	return amount, nil
}

// Proceeds returns the seller's withdrawable balance in the given token.
func (m *Market) Proceeds(ctx context.Context, seller, token domain.Address) (*big.Int, error) {
	return m.proceeds.Balance(ctx, seller, token)
}

// unwind reverses a purchase's ledger writes after an external failure.
func (m *Market) unwind(ctx context.Context, listing *domain.Listing, token domain.Address, amount *big.Int) {
	if err := m.proceeds.Debit(ctx, listing.Seller, token, amount); err != nil {
		m.logger.Printf("market: debiting %s proceeds for %s failed: %v", token, listing.Seller, err)
	}
	m.restoreListing(ctx, listing)
}

func (m *Market) restoreListing(ctx context.Context, listing *domain.Listing) {
	if err := m.listings.Insert(ctx, listing); err != nil {
		m.logger.Printf("market: restoring listing %s/%d failed: %v", listing.Collection, listing.AssetID, err)
	}
}
