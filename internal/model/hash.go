package model

import (
	"crypto/md5" //nolint:gosec // content addressing, not authentication
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// timestampFields are excluded from canonical hashing so that two payloads
// differing only in bookkeeping timestamps compare as identical.
var timestampFields = map[string]bool{
	"updated_at":   true,
	"modified_at":  true,
	"last_updated": true,
	"timestamp":    true,
}

// ContentHash returns the md5 hex digest of the canonical JSON encoding of v.
// encoding/json sorts map keys, so equal maps hash equally regardless of
// construction order.
func ContentHash(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Maps of JSON-compatible values cannot fail to marshal; fall back
		// to the formatted value so the hash is still deterministic.
		b = fmt.Appendf(nil, "%v", v)
	}
	sum := md5.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// CanonicalHash hashes payload with top-level timestamp fields removed.
// Two payloads that differ only in updated_at / modified_at / last_updated /
// timestamp hash identically.
func CanonicalHash(payload map[string]any) string {
	cleaned := make(map[string]any, len(payload))
	for k, v := range payload {
		if timestampFields[k] {
			continue
		}
		cleaned[k] = v
	}
	return ContentHash(cleaned)
}

// IsTimestampField reports whether key is one of the canonical-hash
// exclusions.
func IsTimestampField(key string) bool {
	return timestampFields[key]
}
