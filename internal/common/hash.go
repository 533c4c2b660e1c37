package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex returns the SHA-256 digest of the input encoded as lowercase hex.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// ScopedKey namespaces a hashed identifier under prefix, e.g. "wh:<sha256>".
func ScopedKey(prefix, raw string) string {
	return prefix + ":" + Sha256Hex(raw)
}
