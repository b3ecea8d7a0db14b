package eutils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// credentialParams are excluded from fingerprints so that the same logical
// request hashes identically whether or not an API key or contact address
// is configured.
var credentialParams = map[string]bool{
	"api_key": true,
	"email":   true,
	"tool":    true,
}

// Fingerprint returns a deterministic key for an upstream request, used as
// both the cache key and the in-flight deduplication key.
//
// The canonical form is the operation name followed by "key=value" pairs
// over all non-credential query parameters, sorted by key (multi-valued
// parameters join their values with commas), hashed with SHA-256. Two
// logically identical requests therefore always yield the same fingerprint
// regardless of the order parameters were assembled in. The hex digest is
// filesystem-safe, so it doubles as the disk-cache filename.
func Fingerprint(operation string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if credentialParams[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(operation)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(params[k], ","))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
