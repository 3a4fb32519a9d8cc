// Package chat defines the canonical message model and the client-facing
// stream event union shared by all provider adapters.
package chat

import "github.com/flap-ai/flapd/internal/domain/search"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four enumerated roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ProviderID identifies one configured chat backend.
type ProviderID string

const (
	ProviderGrok   ProviderID = "grok"
	ProviderOpenAI ProviderID = "openai"
	ProviderGemini ProviderID = "gemini"
)

// ToolCall is a tool invocation requested by an assistant turn.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one canonical conversation entry. Immutable once created;
// providers translate it into their own wire shapes.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Reasoning  string     `json:"reasoning,omitempty"`
	Provider   ProviderID `json:"provider,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// System returns a system message with the given content.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message with the given content.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message with the given content.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ToolResult returns a tool message carrying the result of a tool call.
func ToolResult(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// Request is the body of POST /api/chat and /api/chat/stream.
type Request struct {
	Message             string    `json:"message"`
	ConversationHistory []Message `json:"conversation_history,omitempty"`
	ConversationID      string    `json:"conversation_id,omitempty"`
	WebSearch           bool      `json:"web_search,omitempty"`
}

// Response is the structured result of the non-streaming chat endpoint.
// The endpoint always returns one of these; upstream failures surface as
// Success=false with Error set, never as a transport-level fault.
type Response struct {
	Response        string          `json:"response"`
	Success         bool            `json:"success"`
	Error           string          `json:"error,omitempty"`
	Reasoning       string          `json:"reasoning,omitempty"`
	Provider        ProviderID      `json:"provider,omitempty"`
	ConversationID  *string         `json:"conversation_id,omitempty"`
	SearchPerformed bool            `json:"search_performed,omitempty"`
	Sources         []search.Result `json:"sources,omitempty"`
}
