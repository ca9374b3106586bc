package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientInitialize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

		var req InitializeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "PAY-1", req.Reference)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]interface{}{
				"authorization_url": "https://checkout.example/abc",
				"access_code":       "ac_123",
				"reference":         req.Reference,
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, SecretKey: "sk_test_123", Timeout: time.Second}, nil)
	resp, err := client.Initialize(context.Background(), InitializeRequest{
		Email:     "ada@uni.edu.ng",
		Amount:    50000,
		Reference: "PAY-1",
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.example/abc", resp.AuthorizationURL)
	require.Equal(t, "ac_123", resp.AccessCode)
}

func TestClientVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/verify/GW-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]interface{}{
				"status":    "success",
				"reference": "GW-1",
				"amount":    50000,
				"channel":   "card",
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, SecretKey: "sk_test_123"}, nil)
	tx, err := client.Verify(context.Background(), "GW-1")
	require.NoError(t, err)
	require.Equal(t, "success", tx.Status)
	require.Equal(t, int64(50000), tx.Amount)
}

func TestClientSurfacesGatewayFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  false,
			"message": "Invalid key",
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, SecretKey: "bad"}, nil)
	_, err := client.Verify(context.Background(), "GW-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid key")
}
