// Package followupboss is a thin client for the CRM this pipeline
// matches leads against. Wire-level detail beyond paging /people and
// resolving user ids is out of scope per spec.md §1.
package followupboss

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/leadpipeline/leadpipe/internal/resilience"
)

const defaultTimeout = 30 * time.Second

// defaultRateLimit keeps the puller under FollowUpBoss's per-second
// request cap even when pages are fetched back to back.
const defaultRateLimit = 10

// Client pages CRM person records and resolves users.
type Client interface {
	Verify(ctx context.Context) error
	ListUsers(ctx context.Context) ([]User, error)
	ListPeople(ctx context.Context, offset, limit int, updatedAfter *time.Time) (*PeoplePage, error)
}

// User is a CRM-side assignable user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Person is one CRM contact record.
type Person struct {
	ID             string    `json:"id"`
	Emails         []Contact `json:"emails"`
	Phones         []Contact `json:"phones"`
	Addresses      []Address `json:"addresses"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	AssignedUserID string    `json:"assignedUserId"`
	Stage          string    `json:"stage"`
	Source         string    `json:"source"`
	Tags           []string  `json:"tags"`
	Updated        time.Time `json:"updated"`
}

// Contact is one entry in an email or phone list; the CRM allows several
// per person, first one wins per spec.md §4.8.
type Contact struct {
	Value string `json:"value"`
}

// Address is one entry in a person's address list.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// PeoplePage is one page of the /people collection.
type PeoplePage struct {
	Metadata Metadata `json:"_metadata"`
	People   []Person `json:"people"`
}

// Metadata carries the CRM's offset/limit/total pagination envelope.
type Metadata struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
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

// NewClient creates a CRM client. apiKey is sent as the Basic-auth
// username with an empty password, base64 encoded, per spec.md §6.
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
	c.retryCfg.OnRetry = resilience.RetryLogger("followupboss", "get")
	return c
}

func (c *httpClient) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.apiKey+":"))
}

// Verify performs a low-cost credentialed call, used by the puller to
// fail fast on bad credentials before doing any real work.
func (c *httpClient) Verify(ctx context.Context) error {
	_, err := c.ListPeople(ctx, 0, 1, nil)
	return err
}

func (c *httpClient) ListUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := c.get(ctx, "/users", nil, &out); err != nil {
		return nil, eris.Wrap(err, "followupboss: list users")
	}
	return out.Users, nil
}

func (c *httpClient) ListPeople(ctx context.Context, offset, limit int, updatedAfter *time.Time) (*PeoplePage, error) {
	q := map[string]string{
		"offset": strconv.Itoa(offset),
		"limit":  strconv.Itoa(limit),
	}
	if updatedAfter != nil {
		q["updatedAfter"] = updatedAfter.UTC().Format(time.RFC3339)
	}
	var page PeoplePage
	if err := c.get(ctx, "/people", q, &page); err != nil {
		return nil, eris.Wrap(err, "followupboss: list people")
	}
	return &page, nil
}

// get issues one authenticated GET, retried with backoff on transient
// failures and short-circuited by a per-client breaker once the CRM is
// consistently failing, so a struggling upstream doesn't tie up the
// puller retrying calls that keep timing out.
func (c *httpClient) get(ctx context.Context, path string, query map[string]string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "followupboss: rate limit wait")
		}
	}

	do := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return resilience.NewPermanentInfraError(eris.Wrap(err, "followupboss: create request"))
		}
		req.Header.Set("Authorization", c.authHeader())
		req.Header.Set("Accept", "application/json")

		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "followupboss: send request")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "followupboss: read response")
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := eris.Errorf("followupboss: unexpected status %d: %s", resp.StatusCode, string(body))
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return resilience.NewPermanentInfraError(statusErr)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return resilience.NewPermanentInfraError(eris.Wrap(err, "followupboss: unmarshal response"))
		}
		return nil
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, c.retryCfg, do)
	})
}
