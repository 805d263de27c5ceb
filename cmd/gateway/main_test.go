package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sixsideddice/lottie-gateway/internal/domain/chat"
	"github.com/sixsideddice/lottie-gateway/internal/infra/config"
	"github.com/sixsideddice/lottie-gateway/internal/infra/eventbus"
	"github.com/sixsideddice/lottie-gateway/internal/infra/llm"
)

func TestRun_VersionCommand(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"version"}, &out); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out.String(), "lottie-gateway version") {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"--help"}, &out); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	for _, want := range []string{"serve", "version", "--config", "--port"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected help to mention %q, got %q", want, out.String())
		}
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"--bogus"}, &out); code == 0 {
		t.Fatal("expected non-zero exit code for unknown flag")
	}
}

func TestRun_InvalidConfigFails(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")

	var out bytes.Buffer
	if code := run([]string{"serve", "--env-file", ""}, &out); code == 0 {
		t.Fatal("expected non-zero exit code for invalid config")
	}
	if !strings.Contains(out.String(), "invalid log level") {
		t.Errorf("expected config error in output, got %q", out.String())
	}
}

func TestLoadConfig_PortFlagOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")

	cfg, err := loadConfig(&options{port: 9100})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}

	if _, err := loadConfig(&options{port: 70000}); err == nil {
		t.Error("expected error for out-of-range port flag")
	}
}

func TestBuildServices_Unconfigured(t *testing.T) {
	cfg, err := config.Load(config.Options{})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	svc, err := buildServices(cfg, eventbus.New())
	if err != nil {
		t.Fatalf("buildServices() error = %v", err)
	}
	if svc.Chat == nil || svc.Assist == nil || svc.Speech == nil || svc.Storage == nil || svc.Voice == nil {
		t.Fatalf("expected every service wired, got %+v", svc)
	}
}

func TestBuildServices_CatalogFile(t *testing.T) {
	cfg, err := config.Load(config.Options{})
	if err != nil {
		t.Fatal(err)
	}

	cfg.Search.LibrariesFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := buildServices(cfg, nil); err == nil {
		t.Fatal("expected error for missing catalog file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("families: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.Search.LibrariesFile = bad
	if _, err := buildServices(cfg, nil); err == nil {
		t.Fatal("expected error for empty catalog")
	}
}

func TestLogUsage_LogsUntilClosed(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	bus := eventbus.New()
	events := bus.Subscribe(chat.UsageTopic)

	done := make(chan struct{})
	go func() {
		logUsage(context.Background(), events, zap.New(core))
		close(done)
	}()

	bus.Publish(chat.UsageTopic, "not a usage event")
	bus.Publish(chat.UsageTopic, chat.UsageEvent{
		RequestID: "req-7",
		Persona:   chat.PersonaDirect,
		Model:     "gpt-4o-mini",
		Usage:     llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})
	bus.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logUsage did not return after bus closed")
	}

	entries := logs.FilterMessage("chat usage").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 usage log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["total_tokens"]; got != int64(15) {
		t.Errorf("expected total_tokens 15, got %v", got)
	}
	if got := entries[0].ContextMap()["request_id"]; got != "req-7" {
		t.Errorf("expected request_id req-7, got %v", got)
	}
}

func TestLogMissingSettings(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logMissingSettings(&config.Config{}, zap.New(core))
	if logs.Len() != 7 {
		t.Errorf("expected a warning per unconfigured route, got %d", logs.Len())
	}

	logs.TakeAll()
	full := &config.Config{
		OpenAI:  config.OpenAIConfig{Endpoint: "e", APIKey: "k", Deployment: "d"},
		Search:  config.SearchConfig{Endpoint: "e", Key: "k"},
		Title:   config.TitleConfig{URL: "u", APIKey: "k"},
		Speech:  config.SpeechConfig{Key: "k", Region: "r"},
		Storage: config.StorageConfig{AccountName: "a", AccountKey: "k"},
		Voice:   config.VoiceConfig{AgentID: "a", APIKey: "k"},
	}
	logMissingSettings(full, zap.New(core))
	if logs.Len() != 0 {
		t.Errorf("expected no warnings when configured, got %d", logs.Len())
	}
}

func TestServerConfig_OverlaysDefaults(t *testing.T) {
	sc := serverConfig(config.ServerConfig{Host: "127.0.0.1", Port: 9000, WriteTimeout: time.Minute})
	if sc.Host != "127.0.0.1" || sc.Port != 9000 {
		t.Errorf("unexpected listener %s:%d", sc.Host, sc.Port)
	}
	if sc.WriteTimeout != time.Minute {
		t.Errorf("expected write timeout 1m, got %v", sc.WriteTimeout)
	}
	if sc.ReadTimeout != 15*time.Second || sc.IdleTimeout != 60*time.Second {
		t.Errorf("expected default read/idle timeouts, got %v/%v", sc.ReadTimeout, sc.IdleTimeout)
	}
}
