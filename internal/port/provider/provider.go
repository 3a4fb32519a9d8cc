// Package provider defines the port every chat backend adapter implements,
// along with the process-wide registry and its selection policy.
package provider

import (
	"context"
	"fmt"
	"iter"

	"github.com/flap-ai/flapd/internal/domain/chat"
)

// DeltaKind discriminates the incremental fragments a stream yields.
type DeltaKind int

const (
	// KindContent is a fragment of assistant text.
	KindContent DeltaKind = iota
	// KindReasoning is a fragment of model reasoning.
	KindReasoning
	// KindToolCall is a fragment of a tool invocation; only tool-capable
	// streams produce it.
	KindToolCall
	// KindDone marks the provider's end-of-stream signal. A well-formed
	// stream yields exactly one.
	KindDone
)

// Delta is one incremental fragment of model output.
type Delta struct {
	Kind DeltaKind
	Text string
	// ToolCall is set when Kind is KindToolCall. Arguments arrive in pieces;
	// fragments with the same Index belong to one call.
	ToolCall *ToolCallDelta
}

// ToolCallDelta is one fragment of a streamed tool invocation.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Stream is a lazy delta sequence. Adapters guarantee the underlying
// connection is released on every exit path, including the consumer breaking
// out of the loop or the context being cancelled. Errors are terminal.
type Stream = iter.Seq2[Delta, error]

// Completion is the result of a non-streaming call.
type Completion struct {
	Text      string
	Reasoning string
}

// ToolDef describes a tool offered to the model.
type ToolDef struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the tool's arguments.
	Parameters map[string]any
}

// Provider is one external chat backend behind a uniform contract.
type Provider interface {
	ID() chat.ProviderID
	// Complete performs a non-streaming chat call. It returns an
	// *UpstreamError when the provider rejects the request; deadline
	// expiry surfaces as the context error.
	Complete(ctx context.Context, msgs []chat.Message) (*Completion, error)
	// Stream opens a streaming chat call. A malformed streamed line is
	// skipped, not surfaced; an HTTP error at stream open is the sequence's
	// single terminal error.
	Stream(ctx context.Context, msgs []chat.Message) Stream
}

// ToolCapable is implemented by providers that support tool calling. The
// search agent requires one of these as its underlying model.
type ToolCapable interface {
	Provider
	StreamWithTools(ctx context.Context, msgs []chat.Message, tools []ToolDef) Stream
}

// UpstreamError reports a non-success HTTP status from a provider.
type UpstreamError struct {
	Provider chat.ProviderID
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream error: status %d: %s", e.Provider, e.Status, e.Body)
}

// ErrorStream returns a Stream that yields err and stops. Adapters use it for
// failures at stream open.
func ErrorStream(err error) Stream {
	return func(yield func(Delta, error) bool) {
		yield(Delta{}, err)
	}
}
