// Package chat dispatches chat requests to the provider in one of two personas:
// direct (fixed identity prompt, no data source) or retrieval-augmented
// (Azure AI Search data source with guardrail role information).
package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
	"github.com/sixsideddice/lottie-gateway/internal/domain/prompts"
	"github.com/sixsideddice/lottie-gateway/internal/domain/retrieval"
	"github.com/sixsideddice/lottie-gateway/internal/infra/llm"
	"github.com/sixsideddice/lottie-gateway/internal/infra/logging"
	"github.com/sixsideddice/lottie-gateway/internal/infra/retry"
)

type Persona string

const (
	PersonaDirect    Persona = "LottieAI"
	PersonaRetrieval Persona = "JennieAI"
)

// UsageTopic is the event bus topic carrying UsageEvent payloads.
const UsageTopic = "chat.usage"

var (
	directSampling = llm.Sampling{
		Temperature: 0.7,
		TopP:        1.0,
		MaxTokens:   4096,
	}
	retrievalSampling = llm.Sampling{
		Temperature:      0.3,
		TopP:             0.6,
		FrequencyPenalty: 0.2,
		MaxTokens:        1000,
	}
)

// DataSourceBuilder produces retrieval parameters for a search library.
type DataSourceBuilder interface {
	Build(library, roleInformation string) retrieval.Config
	Configured() bool
}

// Publisher receives usage telemetry.
type Publisher interface {
	Publish(topic string, payload any)
}

type Input struct {
	Messages      []llm.Message
	Persona       Persona
	Model         string
	SearchLibrary string
	// RequestID correlates usage events with the request log.
	RequestID     string
}

// Event is one NDJSON frame of a streamed answer. Error is only set on the
// final frame of a stream that failed after it started.
type Event struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

type UsageEvent struct {
	RequestID     string
	Persona       Persona
	Model         string
	SearchLibrary string
	Stream        bool
	Usage         llm.Usage
	At            time.Time
}

type Config struct {
	// StrictPersona rejects unknown personas instead of routing them to retrieval.
	StrictPersona bool
	Retry         retry.Policy
}

type Service struct {
	provider llm.LLMProvider
	sources  DataSourceBuilder
	bus      Publisher
	cfg      Config
}

func NewService(p llm.LLMProvider, sources DataSourceBuilder, bus Publisher, cfg Config) *Service {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Default(llm.IsTransient)
	}
	return &Service{provider: p, sources: sources, bus: bus, cfg: cfg}
}

// Complete runs a non-streaming completion. The provider JSON is in the Raw field.
func (s *Service) Complete(ctx context.Context, in Input) (*llm.ChatResponse, error) {
	req, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx).With(zap.String("persona", string(in.Persona)), zap.String("model", req.Model))

	resp, err := retry.Do(ctx, s.cfg.Retry, retryLogger(log), func(ctx context.Context) (*llm.ChatResponse, error) {
		return s.provider.ChatCompletion(ctx, req)
	})
	if err != nil {
		return nil, classify(err)
	}
	s.publishUsage(in, req.Model, false, resp.Usage)
	return resp, nil
}

// Stream starts a streamed completion and re-frames provider chunks into Events.
// Empty deltas are dropped. Failures before the first chunk are returned here;
// later failures end the channel with an Error event.
func (s *Service) Stream(ctx context.Context, in Input) (<-chan Event, error) {
	req, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx).With(zap.String("persona", string(in.Persona)), zap.String("model", req.Model))

	chunks, err := retry.Do(ctx, s.cfg.Retry, retryLogger(log), func(ctx context.Context) (<-chan llm.StreamChunk, error) {
		return s.provider.ChatCompletionStream(ctx, req)
	})
	if err != nil {
		return nil, classify(err)
	}

	out := make(chan Event, 1)
	go s.reframe(ctx, chunks, out, in, req.Model, log)
	return out, nil
}

func (s *Service) reframe(ctx context.Context, chunks <-chan llm.StreamChunk, out chan<- Event, in Input, model string, log *zap.Logger) {
	defer close(out)
	for c := range chunks {
		if c.Err != nil {
			log.Error("chat stream failed mid-way", zap.Error(c.Err))
			emit(ctx, out, Event{Error: "stream interrupted: " + c.Err.Error()})
			return
		}
		if c.Usage != nil {
			log.Info("chat stream usage",
				zap.Int("prompt_tokens", c.Usage.PromptTokens),
				zap.Int("completion_tokens", c.Usage.CompletionTokens))
			s.publishUsage(in, model, true, *c.Usage)
		}
		if c.Delta == "" {
			continue
		}
		if !emit(ctx, out, Event{Content: c.Delta}) {
			return
		}
	}
}

func emit(ctx context.Context, out chan<- Event, e Event) bool {
	select {
	case out <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// prepare validates in and builds the provider request for its persona.
func (s *Service) prepare(in Input) (llm.ChatRequest, error) {
	if len(in.Messages) == 0 {
		return llm.ChatRequest{}, apperr.Validation("messages must not be empty")
	}
	for i, m := range in.Messages {
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return llm.ChatRequest{}, apperr.Validation("messages[%d]: unsupported role %q", i, m.Role)
		}
	}

	model := in.Model
	if model == "" {
		model = s.provider.ModelInfo().ID
	}
	if model == "" {
		return llm.ChatRequest{}, apperr.Configuration("model deployment name is not configured properly")
	}

	switch in.Persona {
	case PersonaDirect:
		return s.directRequest(model, in.Messages), nil
	case PersonaRetrieval:
	default:
		if s.cfg.StrictPersona {
			return llm.ChatRequest{}, apperr.Validation("unknown persona %q", in.Persona)
		}
	}
	return s.retrievalRequest(model, in)
}

func (s *Service) directRequest(model string, msgs []llm.Message) llm.ChatRequest {
	withIdentity := make([]llm.Message, 0, len(msgs)+1)
	withIdentity = append(withIdentity, llm.Message{Role: llm.RoleSystem, Content: prompts.DirectIdentity()})
	withIdentity = append(withIdentity, msgs...)
	return llm.ChatRequest{Model: model, Messages: withIdentity, Sampling: directSampling}
}

func (s *Service) retrievalRequest(model string, in Input) (llm.ChatRequest, error) {
	if !s.sources.Configured() {
		return llm.ChatRequest{}, apperr.MissingSetting("jennie_search_endpoint", "SEARCH_KEY")
	}
	params := s.sources.Build(in.SearchLibrary, prompts.RoleInformation())
	return llm.ChatRequest{
		Model:       model,
		Messages:    in.Messages,
		Sampling:    retrievalSampling,
		DataSources: []llm.DataSource{{Type: retrieval.DataSourceType, Parameters: params}},
	}, nil
}

func (s *Service) publishUsage(in Input, model string, stream bool, u llm.Usage) {
	if s.bus == nil || u.TotalTokens == 0 {
		return
	}
	s.bus.Publish(UsageTopic, UsageEvent{
		RequestID:     in.RequestID,
		Persona:       in.Persona,
		Model:         model,
		SearchLibrary: in.SearchLibrary,
		Stream:        stream,
		Usage:         u,
		At:            time.Now().UTC(),
	})
}

func retryLogger(log *zap.Logger) retry.OnRetry {
	return func(attempt int, err error) {
		log.Warn("chat completion attempt failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
}

// classify tags provider failures that are not already typed.
func classify(err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	if llm.IsTransient(err) {
		return apperr.Transient("chat completion failed", err)
	}
	return apperr.Upstream("chat completion failed", err)
}
