// Package llm holds the chat-completion provider abstraction and its Azure adapters.
// All types here are shared between the provider interface and adapters.
package llm

import "encoding/json"

// Role values accepted by the provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single turn in a conversation (role + content).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DataSource is a retrieval-augmentation descriptor attached to a completion call.
// Parameters is marshalled as-is into the provider request.
type DataSource struct {
	Type       string `json:"type"`
	Parameters any    `json:"parameters"`
}

// Sampling groups the decoding parameters sent with every completion.
type Sampling struct {
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	MaxTokens        int
}

// ChatRequest is the input for a chat completion, streaming or not.
type ChatRequest struct {
	// Model is the deployment name. Empty falls back to the provider default.
	Model    string
	Messages []Message
	Sampling
	// DataSources is nil for direct completions.
	DataSources []DataSource
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the output from a non-streaming chat completion.
type ChatResponse struct {
	Content    string // The assistant message text.
	StopReason string // "stop" | "length" | "content_filter"
	Usage      Usage
	// Raw is the provider response body, returned to clients unchanged.
	Raw json.RawMessage
}

// StreamChunk is one incremental piece of a streamed completion.
// Usage is set only on chunks that carry token accounting, usually the last one.
// A chunk with Err set is always the final value on the channel.
type StreamChunk struct {
	Delta string
	Usage *Usage
	Err   error
}

// ModelMeta describes the model / provider identity.
type ModelMeta struct {
	ID         string // deployment name
	Provider   string // e.g. "azure-openai"
	APIVersion string
}
