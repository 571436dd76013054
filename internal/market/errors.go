package market

import "errors"

var (
	// ErrPriceMustBeAboveZero is returned for a zero or negative listing price.
	ErrPriceMustBeAboveZero = errors.New("price must be above zero")

	// ErrNotOwner is returned when the caller is neither the asset's owner
	// nor the recorded seller, depending on the operation.
	ErrNotOwner = errors.New("not owner")

	// ErrNotApprovedForMarketplace is returned when the marketplace lacks
	// transfer authority over the asset.
	ErrNotApprovedForMarketplace = errors.New("not approved for marketplace")

	// ErrAlreadyListed is returned when listing an asset that has an active listing.
	ErrAlreadyListed = errors.New("already listed")

	// ErrNotListed is returned for operations on an absent listing.
	ErrNotListed = errors.New("not listed")

	// ErrTokenNotSupported is returned when an unregistered token is used as
	// a listing or payment denomination.
	ErrTokenNotSupported = errors.New("token not supported")

	// ErrPriceNotMet is returned when the attached native amount is below
	// the required payment.
	ErrPriceNotMet = errors.New("price not met")

	// ErrNoProceeds is returned on withdrawal with a zero balance.
	ErrNoProceeds = errors.New("no proceeds")

	// ErrTransferFailed is returned for any asset, fungible or native
	// transfer failure, including a silent false return.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrReentrant is returned for a nested call into a guarded operation.
	ErrReentrant = errors.New("reentrant call")
)
