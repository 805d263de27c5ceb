package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
	"github.com/sixsideddice/lottie-gateway/internal/domain/retrieval"
	"github.com/sixsideddice/lottie-gateway/internal/infra/llm"
	"github.com/sixsideddice/lottie-gateway/internal/infra/retry"
)

// stubProvider records requests and replays canned results.
type stubProvider struct {
	mu       sync.Mutex
	requests []llm.ChatRequest
	errs     []error // returned in order, nil entries mean success
	resp     *llm.ChatResponse
	chunks   []llm.StreamChunk
	// deployment is reported by ModelInfo; empty means gpt-4o-mini unless unconfigured.
	deployment   string
	unconfigured bool
}

func (s *stubProvider) next(req llm.ChatRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *stubProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubProvider) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := s.next(req); err != nil {
		return nil, err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return &llm.ChatResponse{Content: "ok", Raw: []byte(`{"choices":[]}`)}, nil
}

func (s *stubProvider) ChatCompletionStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := s.next(req); err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for _, c := range s.chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *stubProvider) ModelInfo() llm.ModelMeta {
	switch {
	case s.unconfigured:
		return llm.ModelMeta{}
	case s.deployment != "":
		return llm.ModelMeta{ID: s.deployment}
	}
	return llm.ModelMeta{ID: "gpt-4o-mini"}
}

type recordingBus struct {
	mu     sync.Mutex
	events []UsageEvent
}

func (b *recordingBus) Publish(topic string, payload any) {
	if topic != UsageTopic {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, payload.(UsageEvent))
}

func newTestService(t *testing.T, p llm.LLMProvider, bus Publisher, cfg Config) *Service {
	t.Helper()
	catalog, err := retrieval.DefaultCatalog()
	if err != nil {
		t.Fatal(err)
	}
	builder := retrieval.NewBuilder(catalog, retrieval.Settings{Endpoint: "https://search", Key: "k"})
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Policy{MaxAttempts: 2, Backoff: time.Millisecond, Retryable: llm.IsTransient}
	}
	return NewService(p, builder, bus, cfg)
}

func userMessages() []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: "hello"}}
}

var errTransient = &llm.ProviderError{Op: "stub", StatusCode: 503}

// ============================================================================
// Persona dispatch
// ============================================================================

func TestService_Complete_DirectPersona_NoDataSource(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	svc := newTestService(t, p, nil, Config{})
	if _, err := svc.Complete(context.Background(), Input{
		Messages:      userMessages(),
		Persona:       PersonaDirect,
		SearchLibrary: "ebs-staff-index",
	}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	req := p.requests[0]
	if req.DataSources != nil {
		t.Errorf("direct persona must not send a data source, got %+v", req.DataSources)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem || !strings.Contains(req.Messages[0].Content, "Lottie AI") {
		t.Errorf("expected identity system prompt first, got %+v", req.Messages)
	}
	if req.Temperature != 0.7 || req.TopP != 1.0 || req.MaxTokens != 4096 {
		t.Errorf("unexpected direct sampling %+v", req.Sampling)
	}
}

func TestService_Complete_RetrievalPersona_AlwaysHasDataSource(t *testing.T) {
	t.Parallel()

	for _, persona := range []Persona{PersonaRetrieval, "SomethingElse"} {
		p := &stubProvider{}
		svc := newTestService(t, p, nil, Config{})
		if _, err := svc.Complete(context.Background(), Input{
			Messages:      userMessages(),
			Persona:       persona,
			SearchLibrary: "ebs-staff-index",
		}); err != nil {
			t.Fatalf("%s: Complete() error = %v", persona, err)
		}

		req := p.requests[0]
		if len(req.DataSources) != 1 || req.DataSources[0].Type != "azure_search" {
			t.Fatalf("%s: expected one azure_search data source, got %+v", persona, req.DataSources)
		}
		params := req.DataSources[0].Parameters.(retrieval.Config)
		if params.TopNDocuments != 20 || params.IndexName != "ebs-staff-index" {
			t.Errorf("%s: unexpected retrieval params %+v", persona, params)
		}
		if !strings.Contains(params.RoleInformation, "Jennie AI") {
			t.Errorf("%s: expected guardrail role information", persona)
		}
		if len(req.Messages) != 1 {
			t.Errorf("%s: retrieval persona must not prepend messages", persona)
		}
		if req.MaxTokens != 1000 || req.Temperature != 0.3 || req.FrequencyPenalty != 0.2 {
			t.Errorf("%s: unexpected retrieval sampling %+v", persona, req.Sampling)
		}
	}
}

func TestService_Complete_StrictPersona_RejectsUnknown(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	svc := newTestService(t, p, nil, Config{StrictPersona: true})
	_, err := svc.Complete(context.Background(), Input{Messages: userMessages(), Persona: "Other"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if p.calls() != 0 {
		t.Error("provider must not be called for a rejected persona")
	}
}

func TestService_Complete_ModelResolution(t *testing.T) {
	t.Parallel()

	p := &stubProvider{deployment: "configured"}
	svc := newTestService(t, p, nil, Config{})
	_, _ = svc.Complete(context.Background(), Input{Messages: userMessages(), Persona: PersonaDirect})
	_, _ = svc.Complete(context.Background(), Input{Messages: userMessages(), Persona: PersonaDirect, Model: "override"})

	if p.requests[0].Model != "configured" || p.requests[1].Model != "override" {
		t.Errorf("unexpected models %q, %q", p.requests[0].Model, p.requests[1].Model)
	}
}

func TestService_Complete_EmptyModel_ConfigurationErrorNotRetried(t *testing.T) {
	t.Parallel()

	p := &stubProvider{unconfigured: true}
	catalog, _ := retrieval.DefaultCatalog()
	svc := NewService(p, retrieval.NewBuilder(catalog, retrieval.Settings{}), nil, Config{})
	_, err := svc.Complete(context.Background(), Input{Messages: userMessages(), Persona: PersonaDirect})
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if p.calls() != 0 {
		t.Errorf("expected no provider call, got %d", p.calls())
	}
}

func TestService_Complete_SearchNotConfigured(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	catalog, _ := retrieval.DefaultCatalog()
	svc := NewService(p, retrieval.NewBuilder(catalog, retrieval.Settings{}), nil, Config{})
	_, err := svc.Complete(context.Background(), Input{Messages: userMessages(), Persona: PersonaRetrieval})
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestService_Complete_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &stubProvider{}, nil, Config{})
	cases := []Input{
		{Persona: PersonaDirect},
		{Persona: PersonaDirect, Messages: []llm.Message{{Role: "tool", Content: "x"}}},
	}
	for _, in := range cases {
		if _, err := svc.Complete(context.Background(), in); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("expected validation error for %+v, got %v", in, err)
		}
	}
}

// ============================================================================
// Retry
// ============================================================================

func TestService_Complete_SuccessFirstAttempt_OneCall(t *testing.T) {
	t.Parallel()

	p := &stubProvider{}
	svc := newTestService(t, p, nil, Config{})
	if _, err := svc.Complete(context.Background(), Input{Messages: userMessages(), Persona: PersonaDirect}); err != nil {
		t.Fatal(err)
	}
	if p.calls() != 1 {
		t.Errorf("expected exactly 1 provider call, got %d", p.calls())
	}
}

func TestService_Complete_TransientTwice_AtMostTwoCalls(t *testing.T) {
	t.Parallel()

	p := &stubProvider{errs: []error{errTransient, errTransient, errTransient}}
	svc := newTestService(t, p, nil, Config{})
	_, err := svc.Complete(context.Background(), Input{Messages: userMessages(), Persona: PersonaDirect})
	if !apperr.Is(err, apperr.KindTransientProvider) {
		t.Fatalf("expected transient provider error, got %v", err)
	}
	if p.calls() != 2 {
		t.Errorf("expected 2 provider calls, got %d", p.calls())
	}
}

func TestService_Complete_TransientOnce_Recovers(t *testing.T) {
	t.Parallel()

	p := &stubProvider{errs: []error{errTransient}}
	svc := newTestService(t, p, nil, Config{})
	if _, err := svc.Complete(context.Background(), Input{Messages: userMessages(), Persona: PersonaDirect}); err != nil {
		t.Fatalf("expected recovery on second attempt, got %v", err)
	}
	if p.calls() != 2 {
		t.Errorf("expected 2 provider calls, got %d", p.calls())
	}
}

func TestService_Complete_PermanentError_NotRetried(t *testing.T) {
	t.Parallel()

	p := &stubProvider{errs: []error{&llm.ProviderError{Op: "stub", StatusCode: 400}}}
	svc := newTestService(t, p, nil, Config{})
	_, err := svc.Complete(context.Background(), Input{Messages: userMessages(), Persona: PersonaDirect})
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if p.calls() != 1 {
		t.Errorf("expected 1 provider call, got %d", p.calls())
	}
}

func TestService_Complete_PublishesUsage(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{}
	p := &stubProvider{resp: &llm.ChatResponse{Usage: llm.Usage{TotalTokens: 12}}}
	svc := newTestService(t, p, bus, Config{})
	in := Input{Messages: userMessages(), Persona: PersonaDirect, RequestID: "req-1"}
	if _, err := svc.Complete(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if len(bus.events) != 1 || bus.events[0].Usage.TotalTokens != 12 || bus.events[0].Stream {
		t.Fatalf("unexpected usage events %+v", bus.events)
	}
	if bus.events[0].RequestID != "req-1" {
		t.Errorf("expected request id req-1, got %q", bus.events[0].RequestID)
	}
	if bus.events[0].Model != "gpt-4o-mini" {
		t.Errorf("expected provider deployment gpt-4o-mini, got %q", bus.events[0].Model)
	}
}

// ============================================================================
// Streaming
// ============================================================================

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatal("timeout collecting stream events")
		}
	}
}

func TestService_Stream_DropsEmptyDeltas(t *testing.T) {
	t.Parallel()

	p := &stubProvider{chunks: []llm.StreamChunk{{Delta: "a"}, {Delta: ""}, {Delta: "b"}}}
	svc := newTestService(t, p, nil, Config{})
	ch, err := svc.Stream(context.Background(), Input{Messages: userMessages(), Persona: PersonaRetrieval, SearchLibrary: "x"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	events := collect(t, ch)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0] != (Event{Content: "a"}) || events[1] != (Event{Content: "b"}) {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestService_Stream_UsageIsPublishedNotForwarded(t *testing.T) {
	t.Parallel()

	bus := &recordingBus{}
	p := &stubProvider{chunks: []llm.StreamChunk{
		{Delta: "hi"},
		{Usage: &llm.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}},
	}}
	svc := newTestService(t, p, bus, Config{})
	ch, err := svc.Stream(context.Background(), Input{Messages: userMessages(), Persona: PersonaDirect})
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, ch)
	if len(events) != 1 || events[0].Content != "hi" {
		t.Errorf("expected a single content event, got %+v", events)
	}
	if len(bus.events) != 1 || !bus.events[0].Stream || bus.events[0].Usage.TotalTokens != 4 {
		t.Errorf("unexpected usage events %+v", bus.events)
	}
}

func TestService_Stream_MidStreamFailure_EmitsErrorEvent(t *testing.T) {
	t.Parallel()

	p := &stubProvider{chunks: []llm.StreamChunk{{Delta: "partial"}, {Err: errors.New("connection reset")}}}
	svc := newTestService(t, p, nil, Config{})
	ch, err := svc.Stream(context.Background(), Input{Messages: userMessages(), Persona: PersonaDirect})
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, ch)
	if len(events) != 2 {
		t.Fatalf("expected content then error event, got %+v", events)
	}
	if events[1].Error == "" || events[1].Content != "" {
		t.Errorf("expected sentinel error event, got %+v", events[1])
	}
}

func TestService_Stream_ErrorBeforeFirstChunk_ReturnedDirectly(t *testing.T) {
	t.Parallel()

	p := &stubProvider{errs: []error{errTransient, errTransient}}
	svc := newTestService(t, p, nil, Config{})
	ch, err := svc.Stream(context.Background(), Input{Messages: userMessages(), Persona: PersonaDirect})
	if err == nil || ch != nil {
		t.Fatalf("expected request-level error, got ch=%v err=%v", ch, err)
	}
	if p.calls() != 2 {
		t.Errorf("expected stream start to be retried once, got %d calls", p.calls())
	}
}

func TestService_Stream_CancelStopsReframing(t *testing.T) {
	t.Parallel()

	chunks := make([]llm.StreamChunk, 1000)
	for i := range chunks {
		chunks[i] = llm.StreamChunk{Delta: "x"}
	}
	p := &stubProvider{chunks: chunks}
	svc := newTestService(t, p, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := svc.Stream(ctx, Input{Messages: userMessages(), Persona: PersonaDirect})
	if err != nil {
		t.Fatal(err)
	}
	<-ch
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch { //nolint:revive
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after cancellation")
	}
}
