package embedprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/leadpipeline/leadpipe/internal/resilience"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", srv.URL,
		WithRateLimit(rate.NewLimiter(rate.Inf, 0)),
		WithRetryConfig(resilience.RetryConfig{MaxAttempts: 1}),
	)
}

func TestEmbed_RealignsResponseToInputOrderByIndex(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"a", "b", "c"}, req.Input)

		// Provider returns results out of order; index must be honored.
		json.NewEncoder(w).Encode(embedResponse{Data: []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{
			{Index: 2, Embedding: []float32{3}},
			{Index: 0, Embedding: []float32{1}},
			{Index: 1, Embedding: []float32{2}},
		}})
	})

	vectors, err := c.Embed(context.Background(), "text-embedding-3-small", []string{"a", "b", "c"})

	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1}, vectors[0])
	assert.Equal(t, []float32{2}, vectors[1])
	assert.Equal(t, []float32{3}, vectors[2])
}

func TestEmbed_EmptyInputReturnsNilWithoutCallingProvider(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	vectors, err := c.Embed(context.Background(), "model", nil)

	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.False(t, called)
}

func TestEmbed_RejectsBatchOverMax(t *testing.T) {
	c := NewClient("key", "http://unused")
	inputs := make([]string, MaxBatchSize+1)

	_, err := c.Embed(context.Background(), "model", inputs)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
}

func TestEmbed_MismatchedResponseCountErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Data: []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{{Index: 0, Embedding: []float32{1}}}})
	})

	_, err := c.Embed(context.Background(), "model", []string{"a", "b"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2")
}

func TestEmbed_UnexpectedStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Embed(context.Background(), "model", []string{"a"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestEmbed_RetriesOnTransientStatus(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Data: []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{{Index: 0, Embedding: []float32{1}}}})
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, WithRateLimit(rate.NewLimiter(rate.Inf, 0)),
		WithRetryConfig(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: 1}))

	vectors, err := c.Embed(context.Background(), "model", []string{"a"})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []float32{1}, vectors[0])
}

func TestEmbed_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("key", srv.URL, WithRateLimit(rate.NewLimiter(rate.Inf, 0)),
		WithRetryConfig(resilience.RetryConfig{MaxAttempts: 1}),
		WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})))

	_, _ = c.Embed(context.Background(), "model", []string{"a"})
	_, _ = c.Embed(context.Background(), "model", []string{"a"})
	_, err := c.Embed(context.Background(), "model", []string{"a"})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
