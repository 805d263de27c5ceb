package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sixsideddice/lottie-gateway/internal/api"
	"github.com/sixsideddice/lottie-gateway/internal/domain/assist"
	"github.com/sixsideddice/lottie-gateway/internal/domain/chat"
	"github.com/sixsideddice/lottie-gateway/internal/domain/retrieval"
	"github.com/sixsideddice/lottie-gateway/internal/infra/config"
	"github.com/sixsideddice/lottie-gateway/internal/infra/eventbus"
	"github.com/sixsideddice/lottie-gateway/internal/infra/llm"
	"github.com/sixsideddice/lottie-gateway/internal/infra/retry"
	"github.com/sixsideddice/lottie-gateway/internal/infra/speech"
	"github.com/sixsideddice/lottie-gateway/internal/infra/storage"
	"github.com/sixsideddice/lottie-gateway/internal/infra/voice"
)

// buildServices constructs every component once from cfg. Missing credentials
// are not an error here; the affected routes report them per call.
func buildServices(cfg *config.Config, bus chat.Publisher) (api.Services, error) {
	catalog, err := loadCatalog(cfg.Search.LibrariesFile)
	if err != nil {
		return api.Services{}, err
	}

	azure := llm.AzureConfig{
		Endpoint:   cfg.OpenAI.Endpoint,
		APIKey:     cfg.OpenAI.APIKey,
		APIVersion: cfg.OpenAI.APIVersion,
		Deployment: cfg.OpenAI.Deployment,
		Timeout:    cfg.OpenAI.Timeout,
	}
	sources := retrieval.NewBuilder(catalog, retrieval.Settings{
		Endpoint:            cfg.Search.Endpoint,
		Key:                 cfg.Search.Key,
		EmbeddingDeployment: cfg.Search.EmbeddingDeployment,
	})
	chatSvc := chat.NewService(llm.NewAzureProvider(azure), sources, bus, chat.Config{
		StrictPersona: cfg.Chat.PersonaStrict,
		Retry: retry.Policy{
			MaxAttempts: cfg.Chat.RetryAttempts,
			Backoff:     cfg.Chat.RetryBackoff,
			Retryable:   llm.IsTransient,
		},
	})

	reference := azure
	reference.Deployment = cfg.OpenAI.ReferenceDeployment
	assistSvc := assist.NewService(
		llm.NewReferenceClient(reference),
		llm.NewTitleClient(cfg.Title.URL, cfg.Title.APIKey, &http.Client{Timeout: cfg.Title.Timeout}),
	)

	return api.Services{
		Chat:   chatSvc,
		Assist: assistSvc,
		Speech: speech.New(speech.Config{
			Key:     cfg.Speech.Key,
			Region:  cfg.Speech.Region,
			Voice:   cfg.Speech.Voice,
			Workers: cfg.Speech.Workers,
			Timeout: cfg.Speech.Timeout,
		}),
		Storage: storage.NewIssuer(cfg.Storage.AccountName, cfg.Storage.AccountKey),
		Voice: voice.NewBroker(voice.Config{
			BaseURL:    cfg.Voice.BaseURL,
			AgentID:    cfg.Voice.AgentID,
			APIKey:     cfg.Voice.APIKey,
			HTTPClient: &http.Client{Timeout: cfg.Voice.Timeout},
		}),
	}, nil
}

func loadCatalog(path string) (*retrieval.Catalog, error) {
	if path == "" {
		return retrieval.DefaultCatalog()
	}
	catalog, err := retrieval.LoadCatalogFile(path)
	if err != nil {
		return nil, fmt.Errorf("search library catalog %s: %w", path, err)
	}
	return catalog, nil
}

// logUsage drains chat usage events until ctx is done or the bus closes.
func logUsage(ctx context.Context, events <-chan eventbus.Event, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			u, ok := ev.Payload.(chat.UsageEvent)
			if !ok {
				continue
			}
			log.Info("chat usage",
				zap.String("request_id", u.RequestID),
				zap.String("persona", string(u.Persona)),
				zap.String("model", u.Model),
				zap.String("search_library", u.SearchLibrary),
				zap.Bool("stream", u.Stream),
				zap.Int("prompt_tokens", u.Usage.PromptTokens),
				zap.Int("completion_tokens", u.Usage.CompletionTokens),
				zap.Int("total_tokens", u.Usage.TotalTokens))
		}
	}
}

// logMissingSettings warns at startup about routes that will fail until configured.
func logMissingSettings(cfg *config.Config, log *zap.Logger) {
	checks := []struct {
		route string
		ok    bool
	}{
		{"/getChatCompletion", cfg.OpenAI.Endpoint != "" && cfg.OpenAI.APIKey != "" && cfg.OpenAI.Deployment != ""},
		{"/getChatCompletion (JennieAI)", cfg.Search.Endpoint != "" && cfg.Search.Key != ""},
		{"/getReference", cfg.OpenAI.Endpoint != "" && cfg.OpenAI.APIKey != ""},
		{"/generateTitle", cfg.Title.URL != "" && cfg.Title.APIKey != ""},
		{"/text-to-speech", cfg.Speech.Key != "" && cfg.Speech.Region != ""},
		{"/download-blob", cfg.Storage.AccountName != "" && cfg.Storage.AccountKey != ""},
		{"/api/signed-url", cfg.Voice.AgentID != "" && cfg.Voice.APIKey != ""},
	}
	for _, c := range checks {
		if !c.ok {
			log.Warn("route not configured; calls will fail with a configuration error", zap.String("route", c.route))
		}
	}
}
