// Package assist runs the small auxiliary completions used by the chat client:
// reformatting a cited reference and titling a conversation.
package assist

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
	"github.com/sixsideddice/lottie-gateway/internal/domain/prompts"
	"github.com/sixsideddice/lottie-gateway/internal/infra/llm"
)

// Completer is a single non-streaming completion backend.
type Completer interface {
	Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

var (
	referenceSampling = llm.Sampling{Temperature: 0.2, TopP: 0.8, MaxTokens: 500}
	titleSampling     = llm.Sampling{Temperature: 0.7, TopP: 0.8, MaxTokens: 100}
)

type Service struct {
	reference Completer
	title     Completer
}

func NewService(reference, title Completer) *Service {
	return &Service{reference: reference, title: title}
}

// FormatReference asks the model to tidy text without changing its content.
// The provider JSON is returned unchanged.
func (s *Service) FormatReference(ctx context.Context, text string) (json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("reference is required")
	}
	return run(ctx, s.reference, prompts.ReferenceFormatting(), text, referenceSampling)
}

// GenerateTitle asks for a short title for conversation.
func (s *Service) GenerateTitle(ctx context.Context, conversation string) (json.RawMessage, error) {
	if strings.TrimSpace(conversation) == "" {
		return nil, apperr.Validation("messages is required")
	}
	return run(ctx, s.title, prompts.TitleInstruction(), conversation, titleSampling)
}

func run(ctx context.Context, c Completer, system, user string, sampling llm.Sampling) (json.RawMessage, error) {
	resp, err := c.Complete(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		Sampling: sampling,
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			return nil, apperr.Upstream("completion failed", err)
		}
		return nil, err
	}
	return resp.Raw, nil
}
