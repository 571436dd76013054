package market

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-market-lab/internal/chain"
	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/events"
	"nft-market-lab/internal/oracle"
	"nft-market-lab/internal/registry"
	"nft-market-lab/internal/storage/memory"
)

func testAddr(b byte) domain.Address {
	return domain.Address(base58.Encode(bytes.Repeat([]byte{b}, 32)))
}

var (
	admin      = testAddr(0x01)
	alice      = testAddr(0x02) // seller
	bob        = testAddr(0x03) // buyer
	carol      = testAddr(0x04)
	marketAddr = testAddr(0x0f)
	collection = testAddr(0x20)
	usd6       = testAddr(0x10) // 6-decimal stable token

	nativeFeed = "native-usd"
	usd6Feed   = "usd6-usd"
)

// exp10 returns 10^n.
func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func mul(a *big.Int, b int64) *big.Int {
	return new(big.Int).Mul(a, big.NewInt(b))
}

type fixture struct {
	market   *Market
	registry *registry.TokenRegistry
	prices   *oracle.Static
	assets   *chain.AssetCollectionSet
	bank     *chain.Bank
	native   *chain.Native
	listings *memory.ListingStore
	proceeds *memory.ProceedsStore
	bus      *events.Bus
}

// newFixture builds a market over in-memory everything: the native currency
// at $4000 / 18 decimals, a 6-decimal stable token at $1, and asset #1 of
// the test collection minted to alice and approved for sale.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		prices:   oracle.NewStatic(),
		assets:   chain.NewAssetCollectionSet(),
		bank:     chain.NewBank(),
		native:   chain.NewNative(marketAddr),
		listings: memory.NewListingStore(),
		proceeds: memory.NewProceedsStore(),
		bus:      events.NewBus(),
	}

	f.registry = registry.New(admin, nativeFeed, f.bus)
	require.NoError(t, f.registry.AddSupportedToken(admin, usd6, usd6Feed, 6))

	// Oracle prices at 8 decimals: native $4000, stable $1.
	f.prices.SetPriceInt64(nativeFeed, 4000_0000_0000, 1000)
	f.prices.SetPriceInt64(usd6Feed, 1_0000_0000, 1000)

	require.NoError(t, f.assets.Mint(collection, 1, alice))
	f.assets.Approve(collection, 1, true)

	m, err := New(Config{
		Self:     marketAddr,
		Tokens:   f.registry,
		Prices:   f.prices,
		Assets:   f.assets,
		Bank:     f.bank,
		Native:   f.native,
		Listings: f.listings,
		Proceeds: f.proceeds,
		Sink:     f.bus,
	})
	require.NoError(t, err)
	f.market = m
	return f
}

func (f *fixture) list(t *testing.T, price *big.Int, token domain.Address) {
	t.Helper()
	require.NoError(t, f.market.ListItem(context.Background(), alice, collection, 1, price, token))
}

// buyNative performs the host side of a native purchase: fund bob with the
// attachment, escrow it into the treasury, run the engine and reverse the
// escrow if settlement fails.
func (f *fixture) buyNative(t *testing.T, assetID uint64, attached *big.Int) (*big.Int, error) {
	t.Helper()
	ctx := context.Background()

	escrowed := attached != nil && attached.Sign() > 0
	if escrowed {
		f.native.SetBalance(bob, attached)
		require.NoError(t, f.native.Move(bob, marketAddr, attached))
	}
	charged, err := f.market.BuyItem(ctx, bob, collection, assetID, domain.NativeToken, attached)
	if err != nil && escrowed {
		require.NoError(t, f.native.Move(marketAddr, bob, attached))
	}
	return charged, err
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	f := newFixture(t)
	cfg := Config{
		Self:     marketAddr,
		Tokens:   f.registry,
		Prices:   f.prices,
		Assets:   f.assets,
		Bank:     f.bank,
		Native:   f.native,
		Listings: f.listings,
	}
	_, err = New(cfg) // proceeds missing
	assert.Error(t, err)

	cfg.Proceeds = f.proceeds
	_, err = New(cfg)
	assert.NoError(t, err)
}

func TestListItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, unsubscribe := f.bus.Subscribe(domain.EventItemListed)
	defer unsubscribe()

	price := mul(exp10(6), 1000)
	f.list(t, price, usd6)

	listing, err := f.market.GetListing(ctx, collection, 1)
	require.NoError(t, err)
	assert.True(t, listing.Listed())
	assert.Equal(t, alice, listing.Seller)
	assert.Zero(t, price.Cmp(listing.Price))
	assert.Equal(t, usd6, listing.PaymentToken)

	event := (<-ch).(domain.ItemListed)
	assert.Equal(t, alice, event.Seller)
	assert.Equal(t, uint64(1), event.AssetID)
	assert.Zero(t, price.Cmp(event.Price))
}

func TestListItem_ZeroPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, token := range []domain.Address{domain.NativeToken, usd6} {
		err := f.market.ListItem(ctx, alice, collection, 1, big.NewInt(0), token)
		assert.ErrorIs(t, err, ErrPriceMustBeAboveZero)

		err = f.market.ListItem(ctx, bob, collection, 1, nil, token)
		assert.ErrorIs(t, err, ErrPriceMustBeAboveZero)
	}
}

func TestListItem_NotOwner(t *testing.T) {
	f := newFixture(t)

	err := f.market.ListItem(context.Background(), bob, collection, 1, big.NewInt(100), usd6)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestListItem_NotApproved(t *testing.T) {
	f := newFixture(t)
	f.assets.Approve(collection, 1, false)

	err := f.market.ListItem(context.Background(), alice, collection, 1, big.NewInt(100), usd6)
	assert.ErrorIs(t, err, ErrNotApprovedForMarketplace)
}

func TestListItem_AlreadyListed(t *testing.T) {
	f := newFixture(t)
	f.list(t, big.NewInt(100), usd6)

	err := f.market.ListItem(context.Background(), alice, collection, 1, big.NewInt(200), usd6)
	assert.ErrorIs(t, err, ErrAlreadyListed)

	// The duplicate wins over a bad payment token.
	err = f.market.ListItem(context.Background(), alice, collection, 1, big.NewInt(200), testAddr(0x66))
	assert.ErrorIs(t, err, ErrAlreadyListed)
}

func TestListItem_UnsupportedToken(t *testing.T) {
	f := newFixture(t)

	err := f.market.ListItem(context.Background(), alice, collection, 1, big.NewInt(100), testAddr(0x66))
	assert.ErrorIs(t, err, ErrTokenNotSupported)
}

func TestUpdateListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// List for one whole native unit, then reprice in the stable token.
	f.list(t, exp10(18), domain.NativeToken)

	ch, unsubscribe := f.bus.Subscribe(domain.EventItemListed)
	defer unsubscribe()

	newPrice := mul(exp10(6), 2000)
	require.NoError(t, f.market.UpdateListing(ctx, alice, collection, 1, newPrice, usd6))

	listing, err := f.market.GetListing(ctx, collection, 1)
	require.NoError(t, err)
	assert.Zero(t, newPrice.Cmp(listing.Price))
	assert.Equal(t, usd6, listing.PaymentToken)

	// Updates emit the same event shape as a fresh listing.
	event := (<-ch).(domain.ItemListed)
	assert.Zero(t, newPrice.Cmp(event.Price))
	assert.Equal(t, usd6, event.PaymentToken)
}

func TestUpdateListing_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.market.UpdateListing(ctx, alice, collection, 1, big.NewInt(100), usd6)
	assert.ErrorIs(t, err, ErrNotListed)

	f.list(t, big.NewInt(100), usd6)

	err = f.market.UpdateListing(ctx, bob, collection, 1, big.NewInt(200), usd6)
	assert.ErrorIs(t, err, ErrNotOwner)

	err = f.market.UpdateListing(ctx, alice, collection, 1, big.NewInt(0), usd6)
	assert.ErrorIs(t, err, ErrPriceMustBeAboveZero)

	err = f.market.UpdateListing(ctx, alice, collection, 1, big.NewInt(200), testAddr(0x66))
	assert.ErrorIs(t, err, ErrTokenNotSupported)
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.list(t, big.NewInt(100), usd6)

	ch, unsubscribe := f.bus.Subscribe(domain.EventItemCanceled)
	defer unsubscribe()

	require.NoError(t, f.market.CancelListing(ctx, alice, collection, 1))

	listing, err := f.market.GetListing(ctx, collection, 1)
	require.NoError(t, err)
	assert.False(t, listing.Listed())
	assert.Zero(t, listing.Price.Sign())

	event := (<-ch).(domain.ItemCanceled)
	assert.Equal(t, alice, event.Seller)
	assert.Equal(t, uint64(1), event.AssetID)
}

func TestCancelListing_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.market.CancelListing(ctx, alice, collection, 1)
	assert.ErrorIs(t, err, ErrNotListed)

	f.list(t, big.NewInt(100), usd6)

	err = f.market.CancelListing(ctx, bob, collection, 1)
	assert.ErrorIs(t, err, ErrNotOwner)
}

// A $1000 listing in the 6-decimal stable token costs exactly a quarter of a
// $4000 native unit.
func TestBuyItem_CrossTokenNativePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, mul(exp10(6), 1000), usd6)

	ch, unsubscribe := f.bus.Subscribe(domain.EventItemBought)
	defer unsubscribe()

	want := mul(exp10(16), 25) // 0.25 * 10^18
	charged, err := f.buyNative(t, 1, want)
	require.NoError(t, err)
	assert.Zero(t, want.Cmp(charged))

	// Listing gone, asset moved.
	listing, err := f.market.GetListing(ctx, collection, 1)
	require.NoError(t, err)
	assert.False(t, listing.Listed())

	owner, err := f.assets.OwnerOf(ctx, collection, 1)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	// Proceeds accrue in the buyer's token, not the listing's.
	nativeProceeds, err := f.market.Proceeds(ctx, alice, domain.NativeToken)
	require.NoError(t, err)
	assert.Zero(t, want.Cmp(nativeProceeds))

	usdProceeds, err := f.market.Proceeds(ctx, alice, usd6)
	require.NoError(t, err)
	assert.Zero(t, usdProceeds.Sign())

	event := (<-ch).(domain.ItemBought)
	assert.Equal(t, bob, event.Buyer)
	assert.Equal(t, alice, event.Seller)
	assert.Zero(t, want.Cmp(event.Amount))
	assert.Equal(t, domain.NativeToken, event.PaymentToken)
	assert.Equal(t, usd6, event.ListingToken)
}

func TestBuyItem_RefundsNativeOverpayment(t *testing.T) {
	f := newFixture(t)

	f.list(t, mul(exp10(6), 1000), usd6)

	required := mul(exp10(16), 25)
	attached := mul(exp10(16), 30)

	charged, err := f.buyNative(t, 1, attached)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(charged))

	// The excess came back to the buyer; the treasury holds exactly the
	// seller's proceeds.
	refund := new(big.Int).Sub(attached, required)
	assert.Zero(t, refund.Cmp(f.native.BalanceOf(bob)))
	assert.Zero(t, required.Cmp(f.native.BalanceOf(marketAddr)))
}

func TestBuyItem_PriceNotMet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, mul(exp10(6), 1000), usd6)

	short := mul(exp10(16), 24)
	_, err := f.buyNative(t, 1, short)
	assert.ErrorIs(t, err, ErrPriceNotMet)

	// The reversed escrow left the buyer whole.
	assert.Zero(t, short.Cmp(f.native.BalanceOf(bob)))

	_, err = f.buyNative(t, 1, nil)
	assert.ErrorIs(t, err, ErrPriceNotMet)

	// Failed buy leaves the listing in place.
	listing, err := f.market.GetListing(ctx, collection, 1)
	require.NoError(t, err)
	assert.True(t, listing.Listed())
}

func TestBuyItem_FungiblePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// One whole native unit = $4000 = 4000 whole stable tokens.
	f.list(t, exp10(18), domain.NativeToken)

	required := mul(exp10(6), 4000)
	f.bank.SetBalance(usd6, bob, required)
	f.bank.Approve(usd6, bob, required)

	charged, err := f.market.BuyItem(ctx, bob, collection, 1, usd6, nil)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(charged))

	// Payment sits in the treasury until withdrawal.
	treasury, err := f.bank.BalanceOf(ctx, usd6, marketAddr)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(treasury))

	proceeds, err := f.market.Proceeds(ctx, alice, usd6)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(proceeds))
}

func TestBuyItem_SilentTransferFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, exp10(18), domain.NativeToken)

	// No balance, no allowance, and failures report false without an error.
	f.bank.FailSilently(usd6, true)

	_, err := f.market.BuyItem(ctx, bob, collection, 1, usd6, nil)
	assert.ErrorIs(t, err, ErrTransferFailed)

	// The failed buy left no trace: listing intact, no proceeds.
	listing, err := f.market.GetListing(ctx, collection, 1)
	require.NoError(t, err)
	assert.True(t, listing.Listed())

	proceeds, err := f.market.Proceeds(ctx, alice, usd6)
	require.NoError(t, err)
	assert.Zero(t, proceeds.Sign())
}

func TestBuyItem_ErroringTransferFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, exp10(18), domain.NativeToken)

	_, err := f.market.BuyItem(ctx, bob, collection, 1, usd6, nil)
	assert.ErrorIs(t, err, ErrTransferFailed)

	listing, err := f.market.GetListing(ctx, collection, 1)
	require.NoError(t, err)
	assert.True(t, listing.Listed())
}

func TestBuyItem_Unlisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, token := range []domain.Address{domain.NativeToken, usd6} {
		_, err := f.market.BuyItem(ctx, bob, collection, 99, token, exp10(18))
		assert.ErrorIs(t, err, ErrNotListed)
	}
}

func TestBuyItem_UnsupportedPaymentToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, big.NewInt(100), usd6)

	_, err := f.market.BuyItem(ctx, bob, collection, 1, testAddr(0x66), nil)
	assert.ErrorIs(t, err, ErrTokenNotSupported)
}

// Removing a token leaves its listings cancelable but not purchasable.
func TestBuyItem_RemovedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, mul(exp10(6), 1000), usd6)
	require.NoError(t, f.registry.RemoveSupportedToken(admin, usd6))

	// Paying with the removed token.
	_, err := f.market.BuyItem(ctx, bob, collection, 1, usd6, nil)
	assert.ErrorIs(t, err, ErrTokenNotSupported)

	// Paying with a supported token: the listing's denomination can no
	// longer be priced.
	_, err = f.buyNative(t, 1, exp10(18))
	assert.ErrorIs(t, err, ErrTokenNotSupported)

	// The listing survives and the seller can still cancel.
	listing, err := f.market.GetListing(ctx, collection, 1)
	require.NoError(t, err)
	assert.True(t, listing.Listed())
	assert.NoError(t, f.market.CancelListing(ctx, alice, collection, 1))
}

func TestBuyItem_AssetTransferFailureReturnsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, exp10(18), domain.NativeToken)

	required := mul(exp10(6), 4000)
	f.bank.SetBalance(usd6, bob, required)
	f.bank.Approve(usd6, bob, required)

	// The recipient refuses the asset after payment was already pulled.
	f.assets.SetReceiveHook(bob, func(domain.Address, domain.Address, uint64) error {
		return assert.AnError
	})

	_, err := f.market.BuyItem(ctx, bob, collection, 1, usd6, nil)
	assert.ErrorIs(t, err, ErrTransferFailed)

	// Buyer got the payment back, seller kept the asset and the listing.
	balance, err := f.bank.BalanceOf(ctx, usd6, bob)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(balance))

	owner, err := f.assets.OwnerOf(ctx, collection, 1)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)

	listing, err := f.market.GetListing(ctx, collection, 1)
	require.NoError(t, err)
	assert.True(t, listing.Listed())

	proceeds, err := f.market.Proceeds(ctx, alice, usd6)
	require.NoError(t, err)
	assert.Zero(t, proceeds.Sign())
}

// A hostile recipient whose receive hook re-enters the engine has the nested
// calls rejected while the outer purchase completes once.
func TestBuyItem_ReentrantHook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, mul(exp10(6), 1000), usd6)

	var nestedBuy, nestedWithdraw error
	f.assets.SetReceiveHook(bob, func(domain.Address, domain.Address, uint64) error {
		_, nestedBuy = f.market.BuyItem(ctx, bob, collection, 1, domain.NativeToken, exp10(18))
		_, nestedWithdraw = f.market.WithdrawProceeds(ctx, bob, domain.NativeToken)
		return nil
	})

	required := mul(exp10(16), 25)
	charged, err := f.buyNative(t, 1, required)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(charged))

	assert.ErrorIs(t, nestedBuy, ErrReentrant)
	assert.ErrorIs(t, nestedWithdraw, ErrReentrant)

	// Exactly one completed purchase.
	owner, err := f.assets.OwnerOf(ctx, collection, 1)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)

	proceeds, err := f.market.Proceeds(ctx, alice, domain.NativeToken)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(proceeds))
}

func TestWithdrawProceeds_Native(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, mul(exp10(6), 1000), usd6)
	required := mul(exp10(16), 25)
	_, err := f.buyNative(t, 1, required)
	require.NoError(t, err)

	withdrawn, err := f.market.WithdrawProceeds(ctx, alice, domain.NativeToken)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(withdrawn))
	assert.Zero(t, required.Cmp(f.native.BalanceOf(alice)))

	// The payout drained the escrowed attachment; nothing was minted.
	assert.Zero(t, f.native.BalanceOf(marketAddr).Sign())

	// Nothing left to withdraw.
	_, err = f.market.WithdrawProceeds(ctx, alice, domain.NativeToken)
	assert.ErrorIs(t, err, ErrNoProceeds)
}

func TestWithdrawProceeds_Fungible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, exp10(18), domain.NativeToken)
	required := mul(exp10(6), 4000)
	f.bank.SetBalance(usd6, bob, required)
	f.bank.Approve(usd6, bob, required)
	_, err := f.market.BuyItem(ctx, bob, collection, 1, usd6, nil)
	require.NoError(t, err)

	withdrawn, err := f.market.WithdrawProceeds(ctx, alice, usd6)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(withdrawn))

	balance, err := f.bank.BalanceOf(ctx, usd6, alice)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(balance))
}

func TestWithdrawProceeds_NoProceeds(t *testing.T) {
	f := newFixture(t)

	_, err := f.market.WithdrawProceeds(context.Background(), carol, domain.NativeToken)
	assert.ErrorIs(t, err, ErrNoProceeds)
}

func TestWithdrawProceeds_PayoutFailureRestoresBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, mul(exp10(6), 1000), usd6)
	required := mul(exp10(16), 25)
	_, err := f.buyNative(t, 1, required)
	require.NoError(t, err)

	f.native.Reject(alice, true)

	_, err = f.market.WithdrawProceeds(ctx, alice, domain.NativeToken)
	assert.ErrorIs(t, err, ErrTransferFailed)

	// Zeroing was undone; a later withdrawal still works.
	proceeds, err := f.market.Proceeds(ctx, alice, domain.NativeToken)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(proceeds))

	f.native.Reject(alice, false)
	withdrawn, err := f.market.WithdrawProceeds(ctx, alice, domain.NativeToken)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(withdrawn))
}

// A seller whose payout hook re-enters the engine cannot double-withdraw.
func TestWithdrawProceeds_ReentrantHook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, mul(exp10(6), 1000), usd6)
	required := mul(exp10(16), 25)
	_, err := f.buyNative(t, 1, required)
	require.NoError(t, err)

	var nested error
	f.native.SetReceiveHook(alice, func(domain.Address, *big.Int) error {
		_, nested = f.market.WithdrawProceeds(ctx, alice, domain.NativeToken)
		return nil
	})

	withdrawn, err := f.market.WithdrawProceeds(ctx, alice, domain.NativeToken)
	require.NoError(t, err)
	assert.Zero(t, required.Cmp(withdrawn))
	assert.ErrorIs(t, nested, ErrReentrant)

	// Paid out exactly once.
	assert.Zero(t, required.Cmp(f.native.BalanceOf(alice)))
}

// Two sales in different tokens settle into independent proceeds slots.
func TestWithdrawProceeds_PerTokenIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.assets.Mint(collection, 2, alice))
	f.assets.Approve(collection, 2, true)

	// Asset 1 sold for native, asset 2 for the stable token.
	f.list(t, mul(exp10(6), 1000), usd6)
	nativeAmount := mul(exp10(16), 25)
	_, err := f.buyNative(t, 1, nativeAmount)
	require.NoError(t, err)

	usdAmount := mul(exp10(6), 500)
	require.NoError(t, f.market.ListItem(ctx, alice, collection, 2, usdAmount, usd6))
	f.bank.SetBalance(usd6, bob, usdAmount)
	f.bank.Approve(usd6, bob, usdAmount)
	_, err = f.market.BuyItem(ctx, bob, collection, 2, usd6, nil)
	require.NoError(t, err)

	// Withdrawing one token leaves the other balance untouched.
	withdrawn, err := f.market.WithdrawProceeds(ctx, alice, domain.NativeToken)
	require.NoError(t, err)
	assert.Zero(t, nativeAmount.Cmp(withdrawn))

	usdProceeds, err := f.market.Proceeds(ctx, alice, usd6)
	require.NoError(t, err)
	assert.Zero(t, usdAmount.Cmp(usdProceeds))

	withdrawn, err = f.market.WithdrawProceeds(ctx, alice, usd6)
	require.NoError(t, err)
	assert.Zero(t, usdAmount.Cmp(withdrawn))

	nativeProceeds, err := f.market.Proceeds(ctx, alice, domain.NativeToken)
	require.NoError(t, err)
	assert.Zero(t, nativeProceeds.Sign())
}

func TestListingPriceIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(t, mul(exp10(6), 1000), usd6)

	// Quoted in native currency.
	quote, err := f.market.ListingPriceIn(ctx, collection, 1, domain.NativeToken)
	require.NoError(t, err)
	assert.Zero(t, mul(exp10(16), 25).Cmp(quote))

	// Quoted in the listing's own token: identity.
	quote, err = f.market.ListingPriceIn(ctx, collection, 1, usd6)
	require.NoError(t, err)
	assert.Zero(t, mul(exp10(6), 1000).Cmp(quote))

	_, err = f.market.ListingPriceIn(ctx, collection, 99, domain.NativeToken)
	assert.ErrorIs(t, err, ErrNotListed)

	_, err = f.market.ListingPriceIn(ctx, collection, 1, testAddr(0x66))
	assert.ErrorIs(t, err, ErrTokenNotSupported)
}
