package domain

import "math/big"

// Sale is the durable record of one completed purchase.
type Sale struct {
	SaleID       string   // deterministic hash, see idhash
	Collection   Address  // asset collection
	AssetID      uint64   // asset id
	Seller       Address  // recorded seller at time of sale
	Buyer        Address  // purchasing wallet
	ListingPrice *big.Int // price the asset was listed at
	ListingToken Address  // token the listing was denominated in
	PaidAmount   *big.Int // amount actually paid, in PaidToken's smallest unit
	PaidToken    Address  // token the buyer paid with
	Timestamp    int64    // sale time, Unix milliseconds
}

// Clone returns a deep copy of the sale.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	cp := *s
	if s.ListingPrice != nil {
		cp.ListingPrice = new(big.Int).Set(s.ListingPrice)
	}
	if s.PaidAmount != nil {
		cp.PaidAmount = new(big.Int).Set(s.PaidAmount)
	}
	return &cp
}
