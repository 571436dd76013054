// Package registry maintains the administrator-gated catalog of payment tokens.
package registry

import (
	"errors"
	"sync"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/events"
)

// ErrNotAdministrator is returned when a non-administrator calls a mutating method.
var ErrNotAdministrator = errors.New("not administrator")

// TokenRegistry maps token addresses to their price feed and decimal precision.
// The administrator identity is fixed at construction; there is no transfer.
type TokenRegistry struct {
	admin domain.Address
	sink  events.Sink

	mu     sync.RWMutex
	tokens map[domain.Address]domain.TokenInfo
}

// New creates a registry with the native currency pre-registered at 18 decimals.
func New(admin domain.Address, nativePriceFeed string, sink events.Sink) *TokenRegistry {
	if sink == nil {
		sink = events.Discard{}
	}
	r := &TokenRegistry{
		admin:  admin,
		sink:   sink,
		tokens: make(map[domain.Address]domain.TokenInfo),
	}
	r.tokens[domain.NativeToken] = domain.TokenInfo{
		Token:     domain.NativeToken,
		PriceFeed: nativePriceFeed,
		Decimals:  domain.NativeDecimals,
	}
	return r
}

// Admin returns the administrator identity.
func (r *TokenRegistry) Admin() domain.Address {
	return r.admin
}

// AddSupportedToken inserts or overwrites a token entry.
// Decimals is trusted administrator input and is not validated further.
func (r *TokenRegistry) AddSupportedToken(caller, token domain.Address, priceFeed string, decimals uint8) error {
	if caller != r.admin {
		return ErrNotAdministrator
	}

	r.mu.Lock()
	r.tokens[token] = domain.TokenInfo{Token: token, PriceFeed: priceFeed, Decimals: decimals}
	r.mu.Unlock()

	r.sink.Publish(domain.TokenAdded{Token: token, PriceFeed: priceFeed, Decimals: decimals})
	return nil
}

// RemoveSupportedToken deletes a token entry. Existing listings denominated in
// the token survive; new listings and purchases with it are blocked.
func (r *TokenRegistry) RemoveSupportedToken(caller, token domain.Address) error {
	if caller != r.admin {
		return ErrNotAdministrator
	}

	r.mu.Lock()
	delete(r.tokens, token)
	r.mu.Unlock()

	r.sink.Publish(domain.TokenRemoved{Token: token})
	return nil
}

// IsSupported reports whether the token has a registry entry.
func (r *TokenRegistry) IsSupported(token domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[token]
	return ok
}

// Info returns the token entry, or a zero struct and false when unsupported.
func (r *TokenRegistry) Info(token domain.Address) (domain.TokenInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tokens[token]
	return info, ok
}
