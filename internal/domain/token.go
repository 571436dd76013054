package domain

// TokenInfo describes a payment-capable token registered with the marketplace.
type TokenInfo struct {
	Token     Address // token mint address, or NativeToken
	PriceFeed string  // oracle feed identifier for this token
	Decimals  uint8   // fractional digits per whole unit (native uses 18)
}

// NativeDecimals is the decimal precision of the native currency.
const NativeDecimals uint8 = 18
