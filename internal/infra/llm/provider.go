package llm

import "context"

// LLMProvider is the model-agnostic interface the chat engine depends on.
// Adapters translate ChatRequest into one vendor's wire format.
type LLMProvider interface {
	// ChatCompletion performs a non-streaming chat completion.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatCompletionStream starts a streamed completion. Errors before the first
	// chunk are returned directly; later failures arrive as a final chunk with Err set.
	// The channel is closed when the stream ends or ctx is cancelled.
	ChatCompletionStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)

	// ModelInfo returns static metadata about the provider/model.
	ModelInfo() ModelMeta
}
