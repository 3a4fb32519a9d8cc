// Package brave implements the ranked search engine port on the Brave Search
// API. It is the preferred engine when its API key is configured.
package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/flap-ai/flapd/internal/domain/search"
)

const defaultBaseURL = "https://api.search.brave.com/res/v1"

// Engine is the Brave Search adapter.
type Engine struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures an Engine.
type Option func(*Engine)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) Option { return func(e *Engine) { e.baseURL = u } }

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(e *Engine) { e.httpClient = hc } }

// New creates a Brave Search engine with the given API key.
func New(apiKey string, opts ...Option) *Engine {
	e := &Engine{apiKey: apiKey, baseURL: defaultBaseURL, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements websearch.Engine.
func (e *Engine) Name() string { return "brave" }

type apiResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search implements websearch.Engine.
func (e *Engine) Search(ctx context.Context, query string, max int) ([]search.Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(max))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("brave: unexpected status %d: %s", resp.StatusCode, body)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]search.Result, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		if len(results) >= max {
			break
		}
		results = append(results, search.Result{Title: r.Title, Snippet: r.Description, URL: r.URL})
	}
	return results, nil
}
