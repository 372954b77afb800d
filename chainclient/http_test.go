package chainclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coresig/signer/retry"
	"github.com/stretchr/testify/require"
)

func TestHTTPChainClientGetCurrentRewardCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "getCurrentRewardCycle", req.Method)
		result, _ := json.Marshal(42)
		_ = json.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: req.ID, Result: result})
	}))
	defer srv.Close()

	policy := retry.Policy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: time.Second, MaxRetries: 3}
	client := NewHTTPChainClient(srv.URL, "", nil, policy)

	cycle, err := client.GetCurrentRewardCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(42), cycle)
}

func TestHTTPChainClientRetriesOn5xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, _ := json.Marshal(7)
		_ = json.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: req.ID, Result: result})
	}))
	defer srv.Close()

	policy := retry.Policy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: time.Second, MaxRetries: 5}
	client := NewHTTPChainClient(srv.URL, "", nil, policy)

	cycle, err := client.GetCurrentRewardCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(7), cycle)
	require.Equal(t, 2, attempts)
}

func TestHTTPChainClientNoAggregateKeyYet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(response{JSONRPC: "2.0", ID: req.ID, Result: []byte("null")})
	}))
	defer srv.Close()

	policy := retry.Policy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: time.Second, MaxRetries: 3}
	client := NewHTTPChainClient(srv.URL, "", nil, policy)

	_, ok, err := client.GetAggregatePublicKey(context.Background(), 3)
	require.NoError(t, err)
	require.False(t, ok)
}
