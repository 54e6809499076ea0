package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestClientRouteSuccess(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/v1/route", r.URL.Path)

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "default-model", req.Model)

		json.NewEncoder(w).Encode(Response{
			Content:      "hello",
			Outcome:      OutcomeSuccess,
			InputTokens:  10,
			OutputTokens: 5,
			ModelID:      "default-model",
			FinishReason: "stop",
		})
	}))
	defer server.Close()

	client := NewClient("secret", server.URL, ClientOptions{Model: "default-model", RetryConfig: fastRetry()})
	resp, err := client.Route(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, OutcomeSuccess, resp.Outcome)
	assert.Equal(t, 10, resp.InputTokens)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Response{Content: "ok", Outcome: OutcomeSuccess})
	}))
	defer server.Close()

	client := NewClient("", server.URL, ClientOptions{RetryConfig: fastRetry()})
	resp, err := client.Route(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "ok", resp.Content)
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient("", server.URL, ClientOptions{RetryConfig: fastRetry()})
	_, err := client.Route(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cbConfig := CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute}
	client := NewClient("", server.URL, ClientOptions{
		RetryConfig:          &RetryConfig{MaxRetries: 0, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1},
		CircuitBreakerConfig: &cbConfig,
	})

	for i := 0; i < 2; i++ {
		_, err := client.Route(context.Background(), Request{})
		require.Error(t, err)
	}
	assert.Equal(t, "open", client.breaker.State())

	// Further calls fail fast without touching the server.
	_, err := client.Route(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
