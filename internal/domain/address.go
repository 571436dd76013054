package domain

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Address is a 32-byte chain identity rendered in base58 (Bitcoin alphabet).
// It identifies wallets, asset collections and fungible token mints alike.
type Address string

// NativeToken is the sentinel token address for the chain's native currency.
// It never corresponds to a deployed token contract.
const NativeToken Address = "11111111111111111111111111111111"

// addressByteLen is the raw length of a decoded address.
const addressByteLen = 32

// ParseAddress validates s as a base58-encoded 32-byte address.
func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(raw) != addressByteLen {
		return "", fmt.Errorf("address %q: expected %d bytes, got %d", s, addressByteLen, len(raw))
	}
	return Address(s), nil
}

// Bytes returns the decoded 32-byte form of the address.
// Returns an error for addresses that were never validated.
func (a Address) Bytes() ([]byte, error) {
	raw, err := base58.Decode(string(a))
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", a, err)
	}
	if len(raw) != addressByteLen {
		return nil, fmt.Errorf("address %q: expected %d bytes, got %d", a, addressByteLen, len(raw))
	}
	return raw, nil
}

// IsOnCurve reports whether the address decodes to a valid ed25519 point.
// Wallet identities are on-curve; derived program addresses need not be.
func (a Address) IsOnCurve() bool {
	raw, err := a.Bytes()
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// IsNative reports whether the address is the native-currency sentinel.
func (a Address) IsNative() bool {
	return a == NativeToken
}

func (a Address) String() string {
	return string(a)
}
