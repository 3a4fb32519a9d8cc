// Package duckduckgo implements the keyless search engine port on the
// DuckDuckGo Instant Answer API. It is the fallback engine: free, no
// credential, weaker ranking than the paid backend.
package duckduckgo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/flap-ai/flapd/internal/domain/search"
)

const defaultBaseURL = "https://api.duckduckgo.com"

// Engine is the DuckDuckGo search adapter.
type Engine struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures an Engine.
type Option func(*Engine)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) Option { return func(e *Engine) { e.baseURL = u } }

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(e *Engine) { e.httpClient = hc } }

// New creates a DuckDuckGo engine.
func New(opts ...Option) *Engine {
	e := &Engine{baseURL: defaultBaseURL, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements websearch.Engine.
func (e *Engine) Name() string { return "duckduckgo" }

type relatedTopic struct {
	Text     string         `json:"Text"`
	FirstURL string         `json:"FirstURL"`
	Topics   []relatedTopic `json:"Topics"`
}

type apiResponse struct {
	Heading       string         `json:"Heading"`
	AbstractText  string         `json:"AbstractText"`
	AbstractURL   string         `json:"AbstractURL"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

// Search implements websearch.Engine.
func (e *Engine) Search(ctx context.Context, query string, max int) ([]search.Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "flapd/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("duckduckgo: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	var results []search.Result
	if parsed.AbstractText != "" {
		results = append(results, search.Result{
			Title:   parsed.Heading,
			Snippet: parsed.AbstractText,
			URL:     parsed.AbstractURL,
		})
	}
	for _, topic := range flatten(parsed.RelatedTopics) {
		if len(results) >= max {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		results = append(results, search.Result{
			Title:   topicTitle(topic.Text),
			Snippet: topic.Text,
			URL:     topic.FirstURL,
		})
	}
	if len(results) > max {
		results = results[:max]
	}
	return results, nil
}

// flatten expands nested topic groups into a single list.
func flatten(topics []relatedTopic) []relatedTopic {
	var out []relatedTopic
	for _, t := range topics {
		if len(t.Topics) > 0 {
			out = append(out, flatten(t.Topics)...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// topicTitle derives a short title from the topic text: everything before the
// first " - " separator, or the whole text when absent.
func topicTitle(text string) string {
	if idx := strings.Index(text, " - "); idx > 0 {
		return text[:idx]
	}
	return text
}
