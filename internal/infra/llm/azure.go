// Azure OpenAI chat-completions adapter.
// AzureProvider calls the deployment-scoped REST API using stdlib net/http:
//   - POST {endpoint}/openai/deployments/{deployment}/chat/completions?api-version=...
//
// The same call serves direct and retrieval-augmented ("on your data") completions;
// the latter only adds a data_sources array to the body.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
)

const (
	mimeJSON          = "application/json"
	mimeEventStream   = "text/event-stream"
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAPIKey      = "api-key"

	providerAzure = "azure-openai"

	// DefaultAPIVersion is the data-plane version that supports data_sources.
	DefaultAPIVersion = "2024-08-01-preview"
	defaultTimeout    = 60 * time.Second
)

// AzureConfig holds the settings for one Azure OpenAI resource.
type AzureConfig struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	// Deployment is used when a request does not name a model.
	Deployment string
	// Timeout bounds a non-streaming call, and the wait for response headers of a stream.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// AzureProvider implements LLMProvider against an Azure OpenAI resource.
type AzureProvider struct {
	endpoint   string
	apiKey     string
	apiVersion string
	deployment string
	timeout    time.Duration
	httpClient *http.Client
}

// NewAzureProvider creates an AzureProvider. Missing endpoint or key is not an error
// here; calls fail with a configuration error instead.
func NewAzureProvider(cfg AzureConfig) *AzureProvider {
	p := &AzureProvider{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		deployment: cfg.Deployment,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}
	if p.apiVersion == "" {
		p.apiVersion = DefaultAPIVersion
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.httpClient == nil {
		// No client-level timeout: it would also cut off long streams.
		p.httpClient = &http.Client{}
	}
	return p
}

// ─── internal Azure JSON types ───────────────────────────────────────────────

type azureChatRequest struct {
	Messages         []Message      `json:"messages"`
	Temperature      float32        `json:"temperature"`
	TopP             float32        `json:"top_p"`
	FrequencyPenalty float32        `json:"frequency_penalty"`
	PresencePenalty  float32        `json:"presence_penalty"`
	MaxTokens        int            `json:"max_tokens,omitempty"`
	Stream           bool           `json:"stream"`
	StreamOptions    *streamOptions `json:"stream_options,omitempty"`
	DataSources      []DataSource   `json:"data_sources,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type azureChatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// ─── LLMProvider implementation ─────────────────────────────────────────────

// ChatCompletion performs a non-streaming completion and keeps the raw body.
func (p *AzureProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, model, err := p.buildBody(req, false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.doPost(ctx, model, body, mimeJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("azure chat: read response: %w", err)
	}
	var azResp azureChatResponse
	if decodeErr := json.Unmarshal(raw, &azResp); decodeErr != nil {
		return nil, fmt.Errorf("azure chat: decode response: %w", decodeErr)
	}

	out := &ChatResponse{Usage: azResp.Usage, Raw: raw}
	if len(azResp.Choices) > 0 {
		out.Content = azResp.Choices[0].Message.Content
		out.StopReason = azResp.Choices[0].FinishReason
	}
	return out, nil
}

// ChatCompletionStream starts a streamed completion. The timeout covers only the
// wait for response headers; once the body is flowing the stream runs until the
// provider ends it or ctx is cancelled.
func (p *AzureProvider) ChatCompletionStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	body, model, err := p.buildBody(req, true)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(p.timeout, cancel)
	resp, err := p.doPost(streamCtx, model, body, mimeEventStream)
	if !timer.Stop() {
		// The header timeout fired; a response that raced it has a cancelled body.
		if err == nil {
			resp.Body.Close() //nolint:errcheck
		}
		err = fmt.Errorf("azure chat: waiting for stream headers: %w", context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()
		defer resp.Body.Close() //nolint:errcheck
		readEventStream(streamCtx, resp.Body, out)
	}()
	return out, nil
}

// ModelInfo returns static metadata for this provider/deployment.
func (p *AzureProvider) ModelInfo() ModelMeta {
	return ModelMeta{
		ID:         p.deployment,
		Provider:   providerAzure,
		APIVersion: p.apiVersion,
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// buildBody resolves the deployment and marshals the wire request.
func (p *AzureProvider) buildBody(req ChatRequest, stream bool) ([]byte, string, error) {
	if p.endpoint == "" || p.apiKey == "" {
		return nil, "", apperr.MissingSetting("ENDPOINT_URL", "AZURE_OPENAI_API_KEY")
	}
	model := req.Model
	if model == "" {
		model = p.deployment
	}
	if model == "" {
		return nil, "", apperr.Configuration("model deployment name is not configured")
	}

	wire := azureChatRequest{
		Messages:         req.Messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		MaxTokens:        req.MaxTokens,
		Stream:           stream,
		DataSources:      req.DataSources,
	}
	// On-your-data completions do not accept stream_options.
	if stream && len(req.DataSources) == 0 {
		wire.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, "", fmt.Errorf("azure chat: encode request: %w", err)
	}
	return body, model, nil
}

func (p *AzureProvider) completionsURL(model string) string {
	return p.endpoint + "/openai/deployments/" + url.PathEscape(model) +
		"/chat/completions?api-version=" + url.QueryEscape(p.apiVersion)
}

// doPost sends the completion request and returns the response on 2xx.
// Caller is responsible for closing the returned body.
func (p *AzureProvider) doPost(ctx context.Context, model string, body []byte, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.completionsURL(model), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("azure chat: build request: %w", err)
	}
	req.Header.Set(headerContentType, mimeJSON)
	req.Header.Set(headerAccept, accept)
	req.Header.Set(headerAPIKey, p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure chat: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newProviderError("azure chat", resp)
	}
	return resp, nil
}
