// Package grok implements the chat provider port for the xAI Grok API.
// The wire format is OpenAI-style chat completions; streaming deltas may
// carry a reasoning fragment alongside or instead of content, and function
// calling works the same way as OpenAI's.
package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flap-ai/flapd/internal/domain/chat"
	"github.com/flap-ai/flapd/internal/port/provider"
	"github.com/flap-ai/flapd/internal/sse"
)

const (
	defaultBaseURL = "https://api.x.ai/v1"
	defaultModel   = "grok-3"

	completionsPath = "/chat/completions"
)

// defaultTimeout bounds non-streaming completions. Streams have no overall
// deadline; they run as long as upstream keeps sending.
const defaultTimeout = 60 * time.Second

// Client talks to the Grok chat completions API.
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

// New creates a Grok client with the given API key.
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
func (c *Client) ID() chat.ProviderID { return chat.ProviderGrok }

type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"message"`
	} `json:"choices"`
}

// streamChunk is one `data:` line of a streaming response. Content and
// reasoning are optional and independent.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

func toWire(msgs []chat.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []provider.ToolDef) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		out = append(out, wt)
	}
	return out
}

// Complete implements provider.Provider.
func (c *Client) Complete(ctx context.Context, msgs []chat.Message) (*provider.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, wireRequest{
		Model:       c.model,
		Messages:    toWire(msgs),
		Temperature: 0.7,
		MaxTokens:   1000,
	})
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
	if len(parsed.Choices) == 0 {
		return nil, &provider.UpstreamError{Provider: c.ID(), Status: resp.StatusCode, Body: "response carried no choices"}
	}

	msg := parsed.Choices[0].Message
	return &provider.Completion{Text: msg.Content, Reasoning: msg.Reasoning}, nil
}

// Stream implements provider.Provider. The response body is closed on every
// exit path, including the consumer abandoning the sequence.
func (c *Client) Stream(ctx context.Context, msgs []chat.Message) provider.Stream {
	return c.stream(ctx, wireRequest{
		Model:       c.model,
		Messages:    toWire(msgs),
		Temperature: 0.7,
		MaxTokens:   1000,
		Stream:      true,
	})
}

// StreamWithTools implements provider.ToolCapable.
func (c *Client) StreamWithTools(ctx context.Context, msgs []chat.Message, tools []provider.ToolDef) provider.Stream {
	return c.stream(ctx, wireRequest{
		Model:       c.model,
		Messages:    toWire(msgs),
		Temperature: 0.7,
		MaxTokens:   1000,
		Stream:      true,
		Tools:       toWireTools(tools),
	})
}

func (c *Client) stream(ctx context.Context, body wireRequest) provider.Stream {
	resp, err := c.post(ctx, body)
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

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				// Malformed line: skip, the stream continues.
				continue
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Reasoning != "" {
					if !yield(provider.Delta{Kind: provider.KindReasoning, Text: choice.Delta.Reasoning}, nil) {
						return
					}
				}
				if choice.Delta.Content != "" {
					if !yield(provider.Delta{Kind: provider.KindContent, Text: choice.Delta.Content}, nil) {
						return
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					delta := provider.Delta{Kind: provider.KindToolCall, ToolCall: &provider.ToolCallDelta{
						Index:     tc.Index,
						ID:        tc.ID,
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					}}
					if !yield(delta, nil) {
						return
					}
				}
			}
		}
	}
}

func (c *Client) post(ctx context.Context, body wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grok request: %w", err)
	}
	return resp, nil
}

func (c *Client) upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return &provider.UpstreamError{Provider: c.ID(), Status: resp.StatusCode, Body: string(body)}
}
