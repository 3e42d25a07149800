package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PointID derives the stable physical key for an event from its original id.
// The key is the first 128 bits of the SHA-256 digest rendered as a
// hyphenated UUID string, so the same original id always lands on the same
// point and re-deliveries overwrite instead of duplicating.
func PointID(originalID string) string {
	sum := sha256.Sum256([]byte(originalID))
	h := hex.EncodeToString(sum[:16])
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32])
}
