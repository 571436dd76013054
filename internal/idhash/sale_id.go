package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"nft-market-lab/internal/domain"
)

// ComputeSaleID computes a deterministic sale_id using SHA256.
// Formula: SHA256(collection|asset_id|buyer|timestamp_ms)
// Returns hex-encoded hash (64 characters).
func ComputeSaleID(
	collection domain.Address,
	assetID uint64,
	buyer domain.Address,
	timestampMs int64,
) string {
	data := fmt.Sprintf("%s|%d|%s|%d",
		string(collection),
		assetID,
		string(buyer),
		timestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
