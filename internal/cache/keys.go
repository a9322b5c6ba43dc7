package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const summaryVersionKey = "history:version"

// SummariesKey builds the cache key for one history listing. The filter
// hash keys distinct filters; the version namespaces out stale listings
// after a write or reconciliation.
func SummariesKey(version int64, filterHash string) string {
	return fmt.Sprintf("history:v%d:%s", version, filterHash)
}

// HashFilter derives a stable hash for an arbitrary filter representation.
func HashFilter(repr string) string {
	sum := sha256.Sum256([]byte(repr))
	return hex.EncodeToString(sum[:8])
}
