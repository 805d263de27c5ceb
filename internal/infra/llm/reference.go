package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
)

// DefaultReferenceDeployment is the deployment used for reference reformatting.
const DefaultReferenceDeployment = "Jennei-gpt-35-turbo-16k"

// ReferenceClient runs small non-streaming completions through the go-openai SDK
// configured for Azure. The deployment is fixed per client.
type ReferenceClient struct {
	client     *openai.Client
	deployment string
	configured bool
}

// NewReferenceClient builds an SDK client for cfg. cfg.Deployment names the
// reformatting deployment; empty means DefaultReferenceDeployment.
func NewReferenceClient(cfg AzureConfig) *ReferenceClient {
	deployment := cfg.Deployment
	if deployment == "" {
		deployment = DefaultReferenceDeployment
	}

	sdkCfg := openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(cfg.Endpoint, "/"))
	sdkCfg.APIVersion = cfg.APIVersion
	if sdkCfg.APIVersion == "" {
		sdkCfg.APIVersion = DefaultAPIVersion
	}
	// Deployment names are used verbatim; the SDK default strips dots.
	sdkCfg.AzureModelMapperFunc = func(model string) string { return model }
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	sdkCfg.HTTPClient = bodyCapturer{next: client}

	return &ReferenceClient{
		client:     openai.NewClientWithConfig(sdkCfg),
		deployment: deployment,
		configured: cfg.Endpoint != "" && cfg.APIKey != "",
	}
}

// Complete sends req to the client's deployment. req.Model is ignored.
func (c *ReferenceClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.configured {
		return nil, apperr.MissingSetting("ENDPOINT_URL", "AZURE_OPENAI_API_KEY")
	}

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	capture := &capturedBody{}
	ctx = context.WithValue(ctx, capturedBodyKey{}, capture)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            c.deployment,
		Messages:         msgs,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	})
	if err != nil {
		return nil, apperr.Upstream("reference completion failed", describeSDKError(err))
	}

	raw := capture.raw
	if len(raw) == 0 {
		if raw, err = json.Marshal(resp); err != nil {
			return nil, fmt.Errorf("reference completion: encode response: %w", err)
		}
	}
	out := &ChatResponse{
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Raw: raw,
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		out.StopReason = string(resp.Choices[0].FinishReason)
	}
	return out, nil
}

// describeSDKError turns SDK error types into a ProviderError when a status is known.
func describeSDKError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Op: "reference completion", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &ProviderError{Op: "reference completion", StatusCode: reqErr.HTTPStatusCode, Body: err.Error()}
	}
	return err
}

type capturedBodyKey struct{}

type capturedBody struct {
	raw json.RawMessage
}

// bodyCapturer keeps a copy of successful response bodies for requests whose
// context carries a capturedBody, so provider-only fields reach the client.
type bodyCapturer struct {
	next openai.HTTPDoer
}

func (b bodyCapturer) Do(req *http.Request) (*http.Response, error) {
	resp, err := b.next.Do(req)
	if err != nil {
		return nil, err
	}
	capture, ok := req.Context().Value(capturedBodyKey{}).(*capturedBody)
	if !ok || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close() //nolint:errcheck
	if err != nil {
		return nil, fmt.Errorf("reference completion: read response: %w", err)
	}
	capture.raw = raw
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp, nil
}
