package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// ValidSignature reports whether the provided webhook signature matches
// the HMAC-SHA512 hex digest of the raw request body under the shared
// secret. Comparison is constant time. An empty signature never matches.
func ValidSignature(rawBody []byte, secret, provided string) bool {
	if provided == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}
