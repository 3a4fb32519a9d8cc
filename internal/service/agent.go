package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	fotel "github.com/flap-ai/flapd/internal/adapter/otel"
	"github.com/flap-ai/flapd/internal/domain/chat"
	"github.com/flap-ai/flapd/internal/domain/search"
	"github.com/flap-ai/flapd/internal/port/provider"
	"github.com/flap-ai/flapd/internal/port/websearch"
	"github.com/flap-ai/flapd/internal/resilience"
)

// DefaultMaxTurns bounds the agent<->tools loop. The model alone decides when
// to stop searching, so without a cap a misbehaving model could loop forever.
const DefaultMaxTurns = 5

// webSearchTool is the single tool bound to the agent's model.
var webSearchTool = provider.ToolDef{
	Name: "web_search",
	Description: "Search the web for current information. Use this tool ALWAYS when you need " +
		"up-to-date information about medical topics, recent research, drug approvals, " +
		"clinical trials, current events, or anything that might have changed recently.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up",
			},
		},
		"required": []string{"query"},
	},
}

// SearchAgent is a two-node cyclic graph: the agent node invokes the model
// with the web_search tool bound; the tools node executes requested searches
// and feeds results back. The loop ends when a model turn requests no tool
// calls, or when MaxTurns round-trips have been spent.
type SearchAgent struct {
	model    provider.ToolCapable
	engines  websearch.Engines
	breaker  *resilience.Breaker
	metrics  *fotel.Metrics
	maxTurns int
	logger   *slog.Logger
	now      func() time.Time
}

// AgentResult is the non-streaming agent outcome.
type AgentResult struct {
	Response        string
	Sources         []search.Result
	SearchPerformed bool
}

// NewSearchAgent creates the agent. maxTurns <= 0 selects DefaultMaxTurns;
// metrics may be nil when telemetry is off.
func NewSearchAgent(model provider.ToolCapable, engines websearch.Engines, breaker *resilience.Breaker, metrics *fotel.Metrics, maxTurns int, logger *slog.Logger) *SearchAgent {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &SearchAgent{
		model:    model,
		engines:  engines,
		breaker:  breaker,
		metrics:  metrics,
		maxTurns: maxTurns,
		logger:   logger,
		now:      time.Now,
	}
}

// WebSearch runs one search through the preferred engine and formats the
// result block fed back to the model. It never fails: engine errors and the
// no-engine case come back as descriptive text the model can read.
func (a *SearchAgent) WebSearch(ctx context.Context, query string) string {
	engine, ok := a.engines.Pick()
	if !ok {
		return "Search error: no search engine available"
	}

	ctx, span := fotel.StartSearchSpan(ctx, engine.Name(), query)
	defer span.End()
	if a.metrics != nil {
		a.metrics.SearchCalls.Add(ctx, 1)
	}

	a.logger.Info("web search", "engine", engine.Name(), "query", query)

	var results []search.Result
	call := func() error {
		var err error
		results, err = engine.Search(ctx, query, search.MaxResults)
		return err
	}
	var err error
	if a.breaker != nil {
		err = a.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		a.logger.Warn("web search failed", "engine", engine.Name(), "error", err)
		return fmt.Sprintf("Search error: %v", err)
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for: %s", query)
	}

	return search.FormatResults(results, a.now())
}

// pendingCall accumulates streamed tool-call fragments for one index.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// Respond runs the loop to completion and returns the final answer together
// with every source collected along the way.
func (a *SearchAgent) Respond(ctx context.Context, msgs []chat.Message) (*AgentResult, error) {
	result := &AgentResult{}
	var firstErr error

	for event := range a.StreamRespond(ctx, msgs) {
		switch event.Type {
		case chat.EventContent:
			result.Response += event.Data
		case chat.EventToolStart:
			result.SearchPerformed = true
		case chat.EventToolEnd:
			result.Sources = event.Sources
		case chat.EventError:
			if firstErr == nil {
				firstErr = fmt.Errorf("%s", event.Data)
			}
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// StreamRespond runs the loop, forwarding the model's tokens as they stream.
// It emits content, reasoning, tool-start and tool-end events; the chat
// orchestrator owns the terminal done event. Tool turns usually carry no
// content, so the caller sees text only from the final answer turn.
func (a *SearchAgent) StreamRespond(ctx context.Context, msgs []chat.Message) func(yield func(chat.StreamEvent) bool) {
	return func(yield func(chat.StreamEvent) bool) {
		working := make([]chat.Message, 0, len(msgs)+1)
		working = append(working, chat.System(agentSystemPrompt(a.now())))
		for _, m := range msgs {
			if m.Role != chat.RoleSystem {
				working = append(working, m)
			}
		}

		var sources []search.Result

		for turn := 0; turn < a.maxTurns; turn++ {
			var (
				content string
				pending = map[int]*pendingCall{}
			)

			for delta, err := range a.model.StreamWithTools(ctx, working, []provider.ToolDef{webSearchTool}) {
				if err != nil {
					yield(chat.ErrorEvent(err.Error()))
					return
				}
				switch delta.Kind {
				case provider.KindContent:
					content += delta.Text
					if !yield(chat.ContentEvent(delta.Text)) {
						return
					}
				case provider.KindReasoning:
					if !yield(chat.ReasoningEvent(delta.Text)) {
						return
					}
				case provider.KindToolCall:
					tc := delta.ToolCall
					p, ok := pending[tc.Index]
					if !ok {
						p = &pendingCall{}
						pending[tc.Index] = p
					}
					if tc.ID != "" {
						p.id = tc.ID
					}
					if tc.Name != "" {
						p.name = tc.Name
					}
					p.args.WriteString(tc.Arguments)
				case provider.KindDone:
					// Loop exits below once the stream is drained.
				}
			}

			if len(pending) == 0 {
				// Final answer turn: no tool requested, the graph is done.
				return
			}

			calls := orderedCalls(pending)
			assistant := chat.Message{Role: chat.RoleAssistant, Content: content}
			for _, c := range calls {
				assistant.ToolCalls = append(assistant.ToolCalls, chat.ToolCall{ID: c.id, Name: c.name, Arguments: c.args.String()})
			}
			working = append(working, assistant)

			for _, c := range calls {
				query := queryArg(c.args.String())
				if !yield(chat.StreamEvent{Type: chat.EventToolStart, Data: startData(query)}) {
					return
				}

				block := a.WebSearch(ctx, query)
				sources = append(sources, search.ExtractSources(block)...)
				working = append(working, chat.ToolResult(c.id, block))

				if !yield(chat.StreamEvent{Type: chat.EventToolEnd, Data: "Search complete", Sources: sources}) {
					return
				}
			}
		}

		a.logger.Warn("search agent hit turn cap", "max_turns", a.maxTurns)
	}
}

func orderedCalls(pending map[int]*pendingCall) []*pendingCall {
	indexes := make([]int, 0, len(pending))
	for i := range pending {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]*pendingCall, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, pending[i])
	}
	return out
}

// queryArg pulls the query field out of the tool call's JSON arguments.
func queryArg(args string) string {
	var parsed struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return ""
	}
	return parsed.Query
}

// startData is the tool-start payload: the query, or a generic placeholder
// when the arguments did not parse.
func startData(query string) string {
	if query == "" {
		return "web"
	}
	return query
}
