// Package identitytoolkit implements the identity.Verifier port against the
// Identity Toolkit accounts:lookup endpoint. Verified claims are cached
// in-process so repeated requests with the same bearer token skip the
// network round-trip.
package identitytoolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/flap-ai/flapd/internal/domain"
	"github.com/flap-ai/flapd/internal/port/identity"
	"github.com/flap-ai/flapd/internal/resilience"
)

const (
	defaultBaseURL  = "https://identitytoolkit.googleapis.com/v1"
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 5 * time.Minute
	cacheMaxCost    = 1 << 20 // 1 MiB of cached claims
)

// Verifier checks bearer tokens against the accounts:lookup endpoint.
type Verifier struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
	cache      *ristretto.Cache[string, identity.Claims]
	cacheTTL   time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithBaseURL overrides the endpoint, mainly for tests.
func WithBaseURL(u string) Option { return func(v *Verifier) { v.baseURL = u } }

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(v *Verifier) { v.httpClient = c } }

// WithCacheTTL overrides how long verified claims stay cached.
func WithCacheTTL(ttl time.Duration) Option { return func(v *Verifier) { v.cacheTTL = ttl } }

// WithBreaker wraps lookup calls in a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option { return func(v *Verifier) { v.breaker = b } }

// New creates a Verifier for the given API key.
func New(apiKey string, opts ...Option) (*Verifier, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, identity.Claims]{
		NumCounters: 10_000,
		MaxCost:     cacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create claims cache: %w", err)
	}

	v := &Verifier{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		cache:      cache,
		cacheTTL:   defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Close releases the claims cache.
func (v *Verifier) Close() { v.cache.Close() }

type lookupRequest struct {
	IDToken string `json:"idToken"`
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		DisplayName   string `json:"displayName"`
		EmailVerified bool   `json:"emailVerified"`
	} `json:"users"`
}

// Verify resolves a bearer token to claims. Rejected and unknown tokens
// return domain.ErrUnauthorized; transport faults return the underlying
// error so callers can distinguish "bad token" from "identity service down".
func (v *Verifier) Verify(ctx context.Context, token string) (*identity.Claims, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	if claims, ok := v.cache.Get(token); ok {
		return &claims, nil
	}

	// A rejected token means the upstream is healthy; only transport and
	// server faults count against the breaker.
	var claims *identity.Claims
	var denied error
	lookup := func() error {
		var err error
		claims, err = v.lookup(ctx, token)
		if errors.Is(err, domain.ErrUnauthorized) {
			denied = err
			return nil
		}
		return err
	}
	var err error
	if v.breaker != nil {
		err = v.breaker.Execute(lookup)
	} else {
		err = lookup()
	}
	if err != nil {
		return nil, err
	}
	if denied != nil {
		return nil, denied
	}

	v.cache.SetWithTTL(token, *claims, 1, v.cacheTTL)
	return claims, nil
}

func (v *Verifier) lookup(ctx context.Context, token string) (*identity.Claims, error) {
	body, err := json.Marshal(lookupRequest{IDToken: token})
	if err != nil {
		return nil, fmt.Errorf("marshal lookup request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/accounts:lookup?key=%s", v.baseURL, url.QueryEscape(v.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusBadRequest {
		// The endpoint reports invalid and expired tokens as 400.
		return nil, domain.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("identity lookup: status %d: %s", resp.StatusCode, snippet)
	}

	var parsed lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	if len(parsed.Users) == 0 {
		return nil, domain.ErrUnauthorized
	}

	u := parsed.Users[0]
	return &identity.Claims{
		UID:           u.LocalID,
		Email:         u.Email,
		Name:          u.DisplayName,
		EmailVerified: u.EmailVerified,
	}, nil
}
