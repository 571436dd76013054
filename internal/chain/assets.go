// Package chain provides in-memory stand-ins for the external contracts the
// marketplace settles against: asset collections, fungible token banks and
// the native currency ledger. Simulations and tests script their behavior,
// including the hostile cases (transfer hooks, silent transfer failures,
// payment-rejecting recipients).
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nft-market-lab/internal/domain"
)

var (
	// ErrUnknownAsset is returned for assets that were never minted.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrNotAssetOwner is returned when a transfer names the wrong owner.
	ErrNotAssetOwner = errors.New("not asset owner")

	// ErrTransferNotAuthorized is returned when the operator lacks approval.
	ErrTransferNotAuthorized = errors.New("transfer not authorized")
)

// ReceiveAssetHook runs after an asset lands on its new owner. A non-nil
// return fails the transfer. This is the reentry surface a hostile recipient
// uses to call back into the marketplace mid-settlement.
type ReceiveAssetHook func(to, collection domain.Address, assetID uint64) error

type assetKey struct {
	collection domain.Address
	assetID    uint64
}

// AssetCollectionSet tracks ownership and marketplace approvals for any
// number of asset collections.
type AssetCollectionSet struct {
	mu       sync.Mutex
	owners   map[assetKey]domain.Address
	approved map[assetKey]bool
	hooks    map[domain.Address]ReceiveAssetHook
}

// NewAssetCollectionSet creates an empty collection set.
func NewAssetCollectionSet() *AssetCollectionSet {
	return &AssetCollectionSet{
		owners:   make(map[assetKey]domain.Address),
		approved: make(map[assetKey]bool),
		hooks:    make(map[domain.Address]ReceiveAssetHook),
	}
}

// Mint assigns a fresh asset to owner. Re-minting an existing asset is an error.
func (s *AssetCollectionSet) Mint(collection domain.Address, assetID uint64, owner domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := assetKey{collection, assetID}
	if _, exists := s.owners[key]; exists {
		return fmt.Errorf("asset %s/%d already minted", collection, assetID)
	}
	s.owners[key] = owner
	return nil
}

// Approve grants or revokes the marketplace's transfer authority over an asset.
func (s *AssetCollectionSet) Approve(collection domain.Address, assetID uint64, granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[assetKey{collection, assetID}] = granted
}

// SetReceiveHook installs a hook that fires whenever owner receives an asset.
// A nil hook removes it.
func (s *AssetCollectionSet) SetReceiveHook(owner domain.Address, hook ReceiveAssetHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hook == nil {
		delete(s.hooks, owner)
		return
	}
	s.hooks[owner] = hook
}

// OwnerOf returns the asset's current owner.
func (s *AssetCollectionSet) OwnerOf(_ context.Context, collection domain.Address, assetID uint64) (domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.owners[assetKey{collection, assetID}]
	if !ok {
		return "", ErrUnknownAsset
	}
	return owner, nil
}

// IsApprovedForMarketplace reports whether the marketplace may move the asset.
func (s *AssetCollectionSet) IsApprovedForMarketplace(_ context.Context, collection domain.Address, assetID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owners[assetKey{collection, assetID}]; !ok {
		return false, ErrUnknownAsset
	}
	return s.approved[assetKey{collection, assetID}], nil
}

// SafeTransfer moves the asset from its current owner to the recipient,
// then runs the recipient's receive hook. A hook error undoes the move.
func (s *AssetCollectionSet) SafeTransfer(_ context.Context, collection, from, to domain.Address, assetID uint64) error {
	key := assetKey{collection, assetID}

	s.mu.Lock()
	owner, ok := s.owners[key]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownAsset
	}
	if owner != from {
		s.mu.Unlock()
		return ErrNotAssetOwner
	}
	if !s.approved[key] {
		s.mu.Unlock()
		return ErrTransferNotAuthorized
	}

	s.owners[key] = to
	s.approved[key] = false
	hook := s.hooks[to]
	// Released before the hook runs; the hook may call back into the
	// marketplace, which reads ownership through this lock.
	s.mu.Unlock()

	if hook != nil {
		if err := hook(to, collection, assetID); err != nil {
			s.mu.Lock()
			s.owners[key] = from
			s.approved[key] = true
			s.mu.Unlock()
			return fmt.Errorf("recipient rejected asset: %w", err)
		}
	}
	return nil
}
