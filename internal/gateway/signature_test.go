package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func signBody(t *testing.T, secret string, body []byte) string {
	t.Helper()
	mac := hmac.New(sha512.New, []byte(secret))
	_, err := mac.Write(body)
	require.NoError(t, err)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"PAY-1"}}`)
	sig := signBody(t, "sk_test_secret", body)

	require.True(t, ValidSignature(body, "sk_test_secret", sig))
}

func TestValidSignatureFixedVector(t *testing.T) {
	// Digest precomputed so the encoding can never drift silently.
	body := []byte("hello")
	const expected = "ff06ab36757777815c008d32c8e14a705b4e7bf310351a06a23b612dc4c7433e" +
		"7757d20525a5593b71020ea2ee162d2311b247e9855862b270122419652c0c92"

	require.True(t, ValidSignature(body, "key", expected))
}

func TestValidSignatureMismatch(t *testing.T) {
	body := []byte(`{"event":"charge.success"}`)
	sig := signBody(t, "right-secret", body)

	require.False(t, ValidSignature(body, "wrong-secret", sig))
	require.False(t, ValidSignature(append(body, ' '), "right-secret", sig))
}

func TestValidSignatureEmptyInputs(t *testing.T) {
	body := []byte(`{}`)
	require.False(t, ValidSignature(body, "secret", ""))
	require.False(t, ValidSignature(body, "", signBody(t, "", body)))
}
