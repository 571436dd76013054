package domain

import "math/big"

// Listing is an active sell offer for one asset.
// A listing exists iff Price > 0; the zero value means "not listed".
type Listing struct {
	Collection   Address  // asset collection address
	AssetID      uint64   // asset id within the collection
	Seller       Address  // wallet that created the listing
	Price        *big.Int // in PaymentToken's smallest unit, always > 0 when listed
	PaymentToken Address  // token the price is denominated in
}

// Listed reports whether the listing represents an active offer.
func (l *Listing) Listed() bool {
	return l != nil && l.Price != nil && l.Price.Sign() > 0
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	cp := *l
	if l.Price != nil {
		cp.Price = new(big.Int).Set(l.Price)
	}
	return &cp
}
