package domain

import "math/big"

// EventType identifies a marketplace notification kind.
type EventType string

const (
	EventItemListed   EventType = "ITEM_LISTED"
	EventItemCanceled EventType = "ITEM_CANCELED"
	EventItemBought   EventType = "ITEM_BOUGHT"
	EventTokenAdded   EventType = "TOKEN_ADDED"
	EventTokenRemoved EventType = "TOKEN_REMOVED"
)

// Event is a marketplace notification.
type Event interface {
	Type() EventType
}

// ItemListed is emitted when a listing is created or updated.
// Create and update are observationally identical to subscribers.
type ItemListed struct {
	Seller       Address  `json:"seller"`
	Collection   Address  `json:"collection"`
	AssetID      uint64   `json:"asset_id"`
	Price        *big.Int `json:"price"`
	PaymentToken Address  `json:"payment_token"`
}

func (ItemListed) Type() EventType { return EventItemListed }

// ItemCanceled is emitted when a seller cancels a listing.
type ItemCanceled struct {
	Seller     Address `json:"seller"`
	Collection Address `json:"collection"`
	AssetID    uint64  `json:"asset_id"`
}

func (ItemCanceled) Type() EventType { return EventItemCanceled }

// ItemBought is emitted after a successful purchase.
// Amount and PaymentToken are the buyer's side, not the listing's.
type ItemBought struct {
	Buyer        Address  `json:"buyer"`
	Seller       Address  `json:"seller"`
	Collection   Address  `json:"collection"`
	AssetID      uint64   `json:"asset_id"`
	Amount       *big.Int `json:"amount"`
	PaymentToken Address  `json:"payment_token"`
	ListingPrice *big.Int `json:"listing_price"`
	ListingToken Address  `json:"listing_token"`
}

func (ItemBought) Type() EventType { return EventItemBought }

// TokenAdded is emitted when the administrator registers a payment token.
type TokenAdded struct {
	Token     Address `json:"token"`
	PriceFeed string  `json:"price_feed"`
	Decimals  uint8   `json:"decimals"`
}

func (TokenAdded) Type() EventType { return EventTokenAdded }

// TokenRemoved is emitted when the administrator deregisters a payment token.
type TokenRemoved struct {
	Token Address `json:"token"`
}

func (TokenRemoved) Type() EventType { return EventTokenRemoved }
