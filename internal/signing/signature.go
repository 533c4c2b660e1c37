package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Sign computes the lowercase hex HMAC-SHA256 of the canonical string keyed by secret.
func Sign(canonical, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the MAC for canonical and compares it with candidate in
// constant time. Candidates are accepted in either hex case.
func Verify(canonical, secret, candidate string) bool {
	if secret == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(candidate))
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(canonical))
	return hmac.Equal(mac.Sum(nil), provided)
}

// NonceBytes is the amount of entropy carried by each nonce.
const NonceBytes = 32

// NewNonce returns a random URL-safe token of NonceBytes entropy (43 characters).
func NewNonce() (string, error) {
	buf := make([]byte, NonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
