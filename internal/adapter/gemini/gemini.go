// Package gemini implements the chat provider port for the Google Gemini
// generateContent API. Gemini differs from the other backends in three ways
// the adapter must hide: it has a two-role model (user/model) with no system
// role, its streamed events carry the full text so far rather than deltas,
// and end of stream is signaled by a finishReason field instead of a
// sentinel line.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flap-ai/flapd/internal/domain/chat"
	"github.com/flap-ai/flapd/internal/port/provider"
	"github.com/flap-ai/flapd/internal/sse"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
)

const defaultTimeout = 60 * time.Second

// Client talks to the Gemini generateContent API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithModel overrides the model name.
func WithModel(m string) Option { return func(c *Client) { c.model = m } }

// WithTimeout overrides the non-streaming completion deadline.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// New creates a Gemini client with the given API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID implements provider.Provider.
func (c *Client) ID() chat.ProviderID { return chat.ProviderGemini }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type wireRequest struct {
	Contents []content `json:"contents"`
}

type wireResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// toContents remaps the canonical role model onto Gemini's two roles. The
// system message becomes a prefixed user turn because Gemini has no system
// role in this API surface.
func toContents(msgs []chat.Message) []content {
	out := make([]content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, content{Role: "user", Parts: []part{{Text: "System instructions: " + m.Content}}})
		case chat.RoleAssistant:
			out = append(out, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			out = append(out, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}
	return out
}

func candidateText(resp *wireResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// Complete implements provider.Provider.
func (c *Client) Complete(ctx context.Context, msgs []chat.Message) (*provider.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	resp, err := c.post(ctx, url, wireRequest{Contents: toContents(msgs)})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.upstreamError(resp)
	}

	var parsed wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &provider.UpstreamError{Provider: c.ID(), Status: resp.StatusCode, Body: fmt.Sprintf("malformed response: %v", err)}
	}
	if len(parsed.Candidates) == 0 {
		return nil, &provider.UpstreamError{Provider: c.ID(), Status: resp.StatusCode, Body: "response carried no candidates"}
	}

	return &provider.Completion{Text: candidateText(&parsed)}, nil
}

// Stream implements provider.Provider. Each upstream event carries the
// cumulative text; the adapter diffs against what it has already emitted and
// yields only the suffix. End of stream is detected by finishReason presence,
// never by a fixed sentinel token.
func (c *Client) Stream(ctx context.Context, msgs []chat.Message) provider.Stream {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)
	resp, err := c.post(ctx, url, wireRequest{Contents: toContents(msgs)})
	if err != nil {
		return provider.ErrorStream(err)
	}
	if resp.StatusCode != http.StatusOK {
		err := c.upstreamError(resp)
		resp.Body.Close()
		return provider.ErrorStream(err)
	}

	return func(yield func(provider.Delta, error) bool) {
		defer resp.Body.Close()

		scanner := sse.NewScanner(resp.Body)
		var previous string

		for {
			if ctx.Err() != nil {
				yield(provider.Delta{}, ctx.Err())
				return
			}

			payload, err := scanner.Next()
			if err == io.EOF {
				yield(provider.Delta{Kind: provider.KindDone}, nil)
				return
			}
			if err != nil {
				yield(provider.Delta{}, err)
				return
			}

			var event wireResponse
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				// Malformed event: skip, the stream continues.
				continue
			}
			if len(event.Candidates) == 0 {
				continue
			}

			full := candidateText(&event)
			if suffix := diff(previous, full); suffix != "" {
				previous = full
				if !yield(provider.Delta{Kind: provider.KindContent, Text: suffix}, nil) {
					return
				}
			}

			if event.Candidates[0].FinishReason != "" {
				yield(provider.Delta{Kind: provider.KindDone}, nil)
				return
			}
		}
	}
}

// diff returns the portion of full not yet emitted. When full does not extend
// previous (the model restarted its answer), full is treated as entirely new.
func diff(previous, full string) string {
	if strings.HasPrefix(full, previous) {
		return full[len(previous):]
	}
	return full
}

func (c *Client) post(ctx context.Context, url string, body wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	return resp, nil
}

func (c *Client) upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return &provider.UpstreamError{Provider: c.ID(), Status: resp.StatusCode, Body: string(body)}
}
