// Package checksum derives content digests for conditional HTTP responses.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns a strong entity tag for data, quoted as HTTP requires.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

// Match reports whether an If-None-Match header value names etag. It accepts
// a comma-separated list, weak validators and the "*" wildcard.
func Match(header, etag string) bool {
	for len(header) > 0 {
		var item string
		item, header, _ = strings.Cut(header, ",")
		item = strings.TrimSpace(item)
		if item == "*" || item == etag || item == "W/"+etag {
			return true
		}
	}
	return false
}
