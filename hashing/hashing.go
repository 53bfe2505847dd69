// Package hashing provides the content hashing used for cache keys.
// Identical input bytes always produce the same digest, on any machine,
// so cache paths derived from these digests are shareable across
// processes and hosts.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded sha256 digest of b.
func Sum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SumString returns the hex-encoded sha256 digest of s.
func SumString(s string) string {
	return Sum([]byte(s))
}
