package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sixsideddice/lottie-gateway/internal/api/handlers"
	apmiddleware "github.com/sixsideddice/lottie-gateway/internal/api/middleware"
	"github.com/sixsideddice/lottie-gateway/internal/infra/config"
)

// Services are the domain and gateway components behind the routes.
type Services struct {
	Chat    handlers.ChatService
	Assist  handlers.AssistService
	Speech  handlers.Synthesizer
	Storage handlers.SASIssuer
	Voice   handlers.VoiceBroker
}

type RouterConfig struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates and configures a new chi router with all routes.
func NewRouter(svc Services, cfg RouterConfig) *chi.Mux {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = config.DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RealIP)
	r.Use(apmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodOptions, http.MethodHead,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{apmiddleware.HeaderRequestID, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	chatHandler := handlers.NewChatHandler(svc.Chat)
	r.Post("/getChatCompletion", chatHandler.Complete)
	r.Post("/getChatCompletionStream", chatHandler.Stream)

	assistHandler := handlers.NewAssistHandler(svc.Assist)
	r.Post("/getReference", assistHandler.Reference)
	r.Post("/generateTitle", assistHandler.Title)

	r.Post("/text-to-speech", handlers.NewSpeechHandler(svc.Speech).TextToSpeech)
	r.Post("/download-blob", handlers.NewStorageHandler(svc.Storage).DownloadBlob)

	voiceHandler := handlers.NewVoiceHandler(svc.Voice)
	r.Route("/api", func(r chi.Router) {
		r.Get("/signed-url", voiceHandler.SignedURL)
		r.Get("/getAgentId", voiceHandler.AgentID)
	})

	return r
}
