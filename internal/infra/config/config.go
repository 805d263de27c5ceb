// Package config loads gateway settings from defaults, an optional YAML file,
// a .env file and the process environment, in increasing order of precedence.
// Provider credentials may be absent; each component reports its own missing
// settings at call time.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	CORS    CORSConfig    `mapstructure:"cors"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Title   TitleConfig   `mapstructure:"title"`
	Search  SearchConfig  `mapstructure:"search"`
	Storage StorageConfig `mapstructure:"storage"`
	Speech  SpeechConfig  `mapstructure:"speech"`
	Voice   VoiceConfig   `mapstructure:"voice"`
	Chat    ChatConfig    `mapstructure:"chat"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// OpenAIConfig is the Azure OpenAI resource used for chat and reference formatting.
type OpenAIConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	APIKey              string        `mapstructure:"api_key"`
	APIVersion          string        `mapstructure:"api_version"`
	Deployment          string        `mapstructure:"deployment"`
	ReferenceDeployment string        `mapstructure:"reference_deployment"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// TitleConfig is the auxiliary completions URL used for conversation titles.
type TitleConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	Endpoint            string `mapstructure:"endpoint"`
	Key                 string `mapstructure:"key"`
	EmbeddingDeployment string `mapstructure:"embedding_deployment"`
	// LibrariesFile replaces the built-in search library catalog.
	LibrariesFile string `mapstructure:"libraries_file"`
}

type StorageConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
}

type SpeechConfig struct {
	Key     string        `mapstructure:"key"`
	Region  string        `mapstructure:"region"`
	Voice   string        `mapstructure:"voice"`
	Workers int           `mapstructure:"workers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type VoiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	AgentID string        `mapstructure:"agent_id"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ChatConfig struct {
	PersonaStrict bool          `mapstructure:"persona_strict"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

// Options selects optional files. Empty fields skip that source.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// binding maps a settings key to the environment variables that may set it.
// The first non-empty variable wins.
type binding struct {
	key string
	env []string
}

var bindings = []binding{
	{"server.host", []string{"HOST"}},
	{"server.port", []string{"PORT"}},
	{"server.read_timeout", []string{"SERVER_READ_TIMEOUT"}},
	{"server.write_timeout", []string{"SERVER_WRITE_TIMEOUT"}},
	{"server.idle_timeout", []string{"SERVER_IDLE_TIMEOUT"}},
	{"server.shutdown_timeout", []string{"SERVER_SHUTDOWN_TIMEOUT"}},

	{"log.level", []string{"LOG_LEVEL"}},
	{"log.format", []string{"LOG_FORMAT"}},

	{"cors.allowed_origins", []string{"CORS_ALLOWED_ORIGINS"}},

	{"openai.endpoint", []string{"ENDPOINT_URL"}},
	{"openai.api_key", []string{"AZURE_OPENAI_API_KEY"}},
	{"openai.api_version", []string{"API_VERSION"}},
	{"openai.deployment", []string{"DEPLOYMENT_4o_mini", "DEPLOYMENT_4o"}},
	{"openai.reference_deployment", []string{"REFERENCE_DEPLOYMENT"}},
	{"openai.timeout", []string{"OPENAI_TIMEOUT"}},

	{"title.url", []string{"jennie_api_url_3.5_turbo_16k"}},
	{"title.api_key", []string{"jennie_api_key_3.5_turbo_16k"}},
	{"title.timeout", []string{"TITLE_TIMEOUT"}},

	{"search.endpoint", []string{"jennie_search_endpoint"}},
	{"search.key", []string{"SEARCH_KEY"}},
	{"search.embedding_deployment", []string{"EMBEDDING_DEPLOYMENT"}},
	{"search.libraries_file", []string{"SEARCH_LIBRARIES_FILE"}},

	{"storage.account_name", []string{"AZURE_STORAGE_ACCOUNT_NAME"}},
	{"storage.account_key", []string{"AZURE_STORAGE_ACCOUNT_KEY"}},

	{"speech.key", []string{"SPEECH_KEY"}},
	{"speech.region", []string{"SPEECH_REGION"}},
	{"speech.voice", []string{"SPEECH_VOICE"}},
	{"speech.workers", []string{"SPEECH_WORKERS"}},
	{"speech.timeout", []string{"SPEECH_TIMEOUT"}},

	{"voice.base_url", []string{"ELEVENLABS_BASE_URL"}},
	{"voice.agent_id", []string{"AGENT_ID"}},
	{"voice.api_key", []string{"XI_API_KEY"}},
	{"voice.timeout", []string{"VOICE_TIMEOUT"}},

	{"chat.persona_strict", []string{"PERSONA_STRICT"}},
	{"chat.retry_attempts", []string{"CHAT_RETRY_ATTEMPTS"}},
	{"chat.retry_backoff", []string{"CHAT_RETRY_BACKOFF"}},
}

// DefaultAllowedOrigins are the chat client origins allowed when none are configured.
var DefaultAllowedOrigins = []string{"http://localhost:4200", "https://lottieai.azurewebsites.net"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cors.allowed_origins", slices.Clone(DefaultAllowedOrigins))

	v.SetDefault("openai.api_version", "2024-08-01-preview")
	v.SetDefault("openai.reference_deployment", "Jennei-gpt-35-turbo-16k")
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("title.timeout", 30*time.Second)

	v.SetDefault("search.embedding_deployment", "embeddings")

	v.SetDefault("speech.voice", "en-US-JennyNeural")
	v.SetDefault("speech.workers", 4)
	v.SetDefault("speech.timeout", 30*time.Second)

	v.SetDefault("voice.base_url", "https://api.elevenlabs.io")
	v.SetDefault("voice.timeout", 10*time.Second)

	v.SetDefault("chat.persona_strict", false)
	v.SetDefault("chat.retry_attempts", 2)
	v.SetDefault("chat.retry_backoff", time.Second)
}

// Load resolves the configuration. A missing .env file is not an error; a
// missing explicit config file is.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, b := range bindings {
		if err := v.BindEnv(append([]string{b.key}, b.env...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", b.key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if opts.EnvFile != "" {
		dot, err := godotenv.Read(opts.EnvFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read env file %s: %w", opts.EnvFile, err)
		default:
			if err := v.MergeConfigMap(dotenvLayer(dot)); err != nil {
				return nil, fmt.Errorf("merge env file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.CORS.AllowedOrigins = cleanList(cfg.CORS.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// dotenvLayer turns .env entries into a nested settings map keyed like bindings.
func dotenvLayer(dot map[string]string) map[string]any {
	out := map[string]any{}
	for _, b := range bindings {
		for _, name := range b.env {
			val, ok := dot[name]
			if !ok || val == "" {
				continue
			}
			section, leaf, _ := strings.Cut(b.key, ".")
			m, _ := out[section].(map[string]any)
			if m == nil {
				m = map[string]any{}
				out[section] = m
			}
			m[leaf] = val
			break
		}
	}
	return out
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks settings that would otherwise fail at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console", "text":
	default:
		return fmt.Errorf("invalid log format: %s, must be 'json' or 'console'", c.Log.Format)
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		return errors.New("cors.allowed_origins must list at least one origin")
	}
	if c.Speech.Workers <= 0 {
		return fmt.Errorf("speech.workers must be positive, got %d", c.Speech.Workers)
	}
	if c.Chat.RetryAttempts < 1 {
		return fmt.Errorf("chat.retry_attempts must be at least 1, got %d", c.Chat.RetryAttempts)
	}
	return nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
