package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Fingerprint returns the deterministic cache key for one API call: the hex
// SHA-256 of the API kind joined with the canonical parameter serialization.
func Fingerprint(apiKind string, params map[string]string) string {
	sum := sha256.Sum256([]byte(apiKind + ":" + CanonicalParams(params)))
	return hex.EncodeToString(sum[:])
}

// CanonicalParams renders params as a JSON array of [key, value] pairs sorted
// by key, so insertion order never changes the rendering.
func CanonicalParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, [2]string{key, params[key]})
	}
	encoded, _ := json.Marshal(pairs)
	return string(encoded)
}
