// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package codec

import (
	"crypto/sha1" //nolint:gosec // shard layout only, not a security boundary
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the content hash (hex SHA-256) of canonical document bytes.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString is Hash for a document already held as a string.
func HashString(s string) string {
	return Hash([]byte(s))
}

// ShardPrefix returns the first n hex characters of the SHA-1 of name.
// The file backend uses it to spread documents over nested directories.
func ShardPrefix(name string, n int) string {
	sum := sha1.Sum([]byte(name)) //nolint:gosec
	hx := hex.EncodeToString(sum[:])
	if n > len(hx) {
		n = len(hx)
	}
	return hx[:n]
}
