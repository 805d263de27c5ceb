// Package voice brokers signed conversation URLs from ElevenLabs so the client
// can open a voice session without holding the API key.
package voice

import (
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
	DefaultBaseURL = "https://api.elevenlabs.io"
	defaultTimeout = 10 * time.Second
	signedURLPath  = "/v1/convai/conversation/get_signed_url"
	maxErrorBody   = 1024
)

type Config struct {
	BaseURL    string
	AgentID    string
	APIKey     string
	HTTPClient *http.Client
}

type Broker struct {
	baseURL    string
	agentID    string
	apiKey     string
	httpClient *http.Client
}

func NewBroker(cfg Config) *Broker {
	b := &Broker{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		agentID:    cfg.AgentID,
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
	}
	if b.baseURL == "" {
		b.baseURL = DefaultBaseURL
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return b
}

// AgentID returns the configured public agent id.
func (b *Broker) AgentID() (string, error) {
	if b.agentID == "" {
		return "", apperr.MissingSetting("AGENT_ID")
	}
	return b.agentID, nil
}

// SignedURL asks ElevenLabs for a signed conversation URL. Missing credentials
// fail before any request is made.
func (b *Broker) SignedURL(ctx context.Context) (string, error) {
	if b.agentID == "" || b.apiKey == "" {
		return "", apperr.MissingSetting("AGENT_ID", "XI_API_KEY")
	}

	endpoint := b.baseURL + signedURLPath + "?agent_id=" + url.QueryEscape(b.agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("signed url: build request: %w", err)
	}
	req.Header.Set("xi-api-key", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", apperr.Upstream("failed to get signed URL", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", apperr.Upstream("failed to get signed URL",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var body struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperr.Upstream("failed to get signed URL", fmt.Errorf("decode response: %w", err))
	}
	if body.SignedURL == "" {
		return "", apperr.Upstream("failed to get signed URL", fmt.Errorf("response has no signed_url"))
	}
	return body.SignedURL, nil
}
