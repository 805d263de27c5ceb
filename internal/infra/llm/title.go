package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
)

// TitleClient posts completions to a fully qualified completions URL, as issued
// for a single deployment, authenticating with an api-key header.
type TitleClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewTitleClient creates a TitleClient. A nil httpClient gets a 30s timeout.
func NewTitleClient(completionURL, apiKey string, httpClient *http.Client) *TitleClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TitleClient{url: completionURL, apiKey: apiKey, httpClient: httpClient}
}

type titleRequest struct {
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float32   `json:"temperature"`
	FrequencyPenalty float32   `json:"frequency_penalty"`
	PresencePenalty  float32   `json:"presence_penalty"`
	TopP             float32   `json:"top_p"`
}

// Complete sends req and returns the upstream JSON untouched in Raw.
func (c *TitleClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.url == "" || c.apiKey == "" {
		return nil, apperr.MissingSetting("jennie_api_url_3.5_turbo_16k", "jennie_api_key_3.5_turbo_16k")
	}

	body, err := json.Marshal(titleRequest{
		Messages:         req.Messages,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		TopP:             req.TopP,
	})
	if err != nil {
		return nil, fmt.Errorf("title completion: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("title completion: build request: %w", err)
	}
	httpReq.Header.Set(headerContentType, mimeJSON)
	httpReq.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Upstream("title completion failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Upstream("title completion failed", newProviderError("title completion", resp))
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream("title completion failed", err)
	}
	var parsed azureChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, apperr.Upstream("title completion returned invalid JSON", err)
	}
	out := &ChatResponse{Usage: parsed.Usage, Raw: raw}
	if len(parsed.Choices) > 0 {
		out.Content = parsed.Choices[0].Message.Content
		out.StopReason = parsed.Choices[0].FinishReason
	}
	return out, nil
}
