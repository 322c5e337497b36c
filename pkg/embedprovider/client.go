// Package embedprovider is a thin client for the text embedding
// provider used to build the vector representations matched leads and
// CRM leads are re-ranked against, per spec.md §6.
package embedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/leadpipeline/leadpipe/internal/resilience"
)

const (
	defaultTimeout = 60 * time.Second
	// MaxBatchSize is the largest number of inputs sent in a single
	// request, per spec.md §6.
	MaxBatchSize = 2048
	// defaultRateLimit bounds outbound embedding requests; batches
	// already amortize this, so a single provider-wide budget is enough.
	defaultRateLimit = 5
)

// Client embeds text into fixed-length vectors.
type Client interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit overrides the default outbound request rate.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *httpClient) { c.limiter = l }
}

// WithCircuitBreaker overrides the default per-client circuit breaker.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) { c.breaker = cb }
}

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retryCfg = cfg }
}

type httpClient struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
}

// NewClient builds an embedding provider client.
func NewClient(apiKey, baseURL string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:  rate.NewLimiter(defaultRateLimit, defaultRateLimit),
		breaker:  resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		retryCfg: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	c.retryCfg.OnRetry = resilience.RetryLogger("embedprovider", "embed")
	return c
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed sends up to MaxBatchSize inputs in a single request and returns
// their vectors realigned to the input order via the response's
// data[i].index field — the provider is not guaranteed to return
// results in request order.
func (c *httpClient) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if len(inputs) > MaxBatchSize {
		return nil, eris.Errorf("embedprovider: batch of %d exceeds max %d", len(inputs), MaxBatchSize)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "embedprovider: rate limit wait")
		}
	}

	body, err := json.Marshal(embedRequest{Model: model, Input: inputs})
	if err != nil {
		return nil, eris.Wrap(err, "embedprovider: marshal request")
	}

	var out embedResponse
	do := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
		if err != nil {
			return resilience.NewPermanentInfraError(eris.Wrap(err, "embedprovider: create request"))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "embedprovider: send request")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "embedprovider: read response")
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := eris.Errorf("embedprovider: unexpected status %d: %s", resp.StatusCode, string(respBody))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return resilience.NewPermanentInfraError(statusErr)
		}
		if err := json.Unmarshal(respBody, &out); err != nil {
			return resilience.NewPermanentInfraError(eris.Wrap(err, "embedprovider: unmarshal response"))
		}
		return nil
	}

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, c.retryCfg, do)
	})
	if err != nil {
		return nil, err
	}

	if len(out.Data) != len(inputs) {
		return nil, eris.Errorf("embedprovider: expected %d embeddings, got %d", len(inputs), len(out.Data))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, eris.Errorf("embedprovider: response index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
