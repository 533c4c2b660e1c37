package signing_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gocardless-connect/internal/signing"
)

func TestSignMatchesHMACSHA256(t *testing.T) {
	msg := "amount=10.00&nonce=abc"
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(msg))
	require.Equal(t, hex.EncodeToString(mac.Sum(nil)), signing.Sign(msg, "secret"))
	require.Len(t, signing.Sign(msg, "secret"), 64)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	for _, msg := range []string{"", "a=1", "bill[amount]=20.00&client_id=app&nonce=x&timestamp=2024-01-01T00%3A00%3A00Z"} {
		sig := signing.Sign(msg, "k3y")
		require.True(t, signing.Verify(msg, "k3y", sig))
		require.True(t, signing.Verify(msg, "k3y", strings.ToUpper(sig)))
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	msg := "resource_id=X&resource_type=bill"
	sig := signing.Sign(msg, "secret")
	for i := range msg {
		tampered := []byte(msg)
		tampered[i] ^= 0x01
		require.False(t, signing.Verify(string(tampered), "secret", sig), "index %d", i)
	}
	require.False(t, signing.Verify(msg, "other", sig))
	require.False(t, signing.Verify(msg, "", sig))
	require.False(t, signing.Verify(msg, "secret", ""))
	require.False(t, signing.Verify(msg, "secret", "not-hex"))
	require.False(t, signing.Verify(msg, "secret", sig[:62]))
}

func TestNewNonce(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		n, err := signing.NewNonce()
		require.NoError(t, err)
		require.Len(t, n, 43)
		require.Equal(t, n, signing.Escape(n), "nonce must not need escaping")
		_, dup := seen[n]
		require.False(t, dup)
		seen[n] = struct{}{}
	}
}
