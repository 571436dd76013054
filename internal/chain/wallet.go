package chain

import (
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"nft-market-lab/internal/domain"
)

// NewWalletAddress generates a random on-curve address for simulations.
func NewWalletAddress() (domain.Address, error) {
	seed := make([]byte, 64)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}

	scalar, err := new(edwards25519.Scalar).SetUniformBytes(seed)
	if err != nil {
		return "", fmt.Errorf("derive scalar: %w", err)
	}

	point := new(edwards25519.Point).ScalarBaseMult(scalar)
	return domain.Address(base58.Encode(point.Bytes())), nil
}
