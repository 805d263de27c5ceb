// Package speech synthesizes text to WAV audio through the Azure Speech REST API.
//
// Requests authenticate with a short-lived STS bearer token that is cached and
// refreshed one minute before the expiry written in its exp claim. Concurrent
// syntheses are bounded by a fixed number of worker slots.
package speech

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
)

const (
	DefaultVoice        = "en-US-JennyNeural"
	DefaultOutputFormat = "riff-24khz-16bit-mono-pcm"
	DefaultWorkers      = 4

	defaultTimeout  = 30 * time.Second
	slotWait        = 30 * time.Second
	tokenRefresh    = time.Minute
	tokenAssumedTTL = 9 * time.Minute
	maxErrorBody    = 1024
	userAgent       = "lottie-gateway"
)

type Status string

const StatusCompleted Status = "completed"

// Result is a finished synthesis.
type Result struct {
	Audio  []byte
	Status Status
}

type Config struct {
	Key          string
	Region       string
	Voice        string
	OutputFormat string
	// Workers bounds concurrent synthesis calls.
	Workers int
	Timeout time.Duration
	// TokenURL and SynthesisURL default to the regional Azure endpoints.
	TokenURL     string
	SynthesisURL string
	HTTPClient   *http.Client
}

type Synthesizer struct {
	cfg        Config
	httpClient *http.Client
	slots      chan struct{}
	now        func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func New(cfg Config) *Synthesizer {
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = DefaultOutputFormat
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Region != "" {
		if cfg.TokenURL == "" {
			cfg.TokenURL = fmt.Sprintf("https://%s.api.cognitive.microsoft.com/sts/v1.0/issueToken", cfg.Region)
		}
		if cfg.SynthesisURL == "" {
			cfg.SynthesisURL = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", cfg.Region)
		}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	slots := make(chan struct{}, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		slots <- struct{}{}
	}
	return &Synthesizer{cfg: cfg, httpClient: client, slots: slots, now: time.Now}
}

// Synthesize converts text to audio. Any failure is a synthesis or
// configuration error; there is no retry.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*Result, error) {
	if s.cfg.Key == "" || s.cfg.TokenURL == "" || s.cfg.SynthesisURL == "" {
		return nil, apperr.MissingSetting("SPEECH_KEY", "SPEECH_REGION")
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("text is required")
	}

	if err := s.acquire(ctx); err != nil {
		return nil, apperr.Synthesis("speech synthesis unavailable", err)
	}
	defer s.release()

	token, err := s.authToken(ctx)
	if err != nil {
		return nil, apperr.Synthesis("speech authentication failed", err)
	}

	audio, err := s.synthesize(ctx, token, text)
	if err != nil {
		return nil, apperr.Synthesis("speech synthesis failed", err)
	}
	return &Result{Audio: audio, Status: StatusCompleted}, nil
}

// acquire blocks until a worker slot is available.
func (s *Synthesizer) acquire(ctx context.Context) error {
	timer := time.NewTimer(slotWait)
	defer timer.Stop()
	select {
	case <-s.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timeout waiting for a synthesis slot")
	}
}

func (s *Synthesizer) release() {
	s.slots <- struct{}{}
}

func (s *Synthesizer) synthesize(ctx context.Context, token, text string) ([]byte, error) {
	body, err := buildSSML(s.cfg.Voice, text)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.SynthesisURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", s.cfg.OutputFormat)
	req.Header.Set("X-ConnectionId", strings.ReplaceAll(uuid.NewString(), "-", ""))
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized {
			s.invalidateToken()
		}
		return nil, statusError(resp)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("provider returned no audio")
	}
	return audio, nil
}

// authToken returns the cached STS token, fetching a new one when it is within
// tokenRefresh of expiry.
func (s *Synthesizer) authToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Add(tokenRefresh).Before(s.tokenExp) {
		return s.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.cfg.Key)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("token endpoint returned an empty token")
	}

	s.token = token
	s.tokenExp = tokenExpiry(token, s.now())
	return token, nil
}

func (s *Synthesizer) invalidateToken() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// tokenExpiry reads the exp claim without verifying the signature; the token
// is only forwarded to the service that issued it.
func tokenExpiry(token string, now time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(tokenAssumedTTL)
}

type ssmlVoice struct {
	Name string `xml:"name,attr"`
	Text string `xml:",chardata"`
}

type ssmlSpeak struct {
	XMLName xml.Name  `xml:"speak"`
	Version string    `xml:"version,attr"`
	Lang    string    `xml:"xml:lang,attr"`
	Voice   ssmlVoice `xml:"voice"`
}

func buildSSML(voice, text string) ([]byte, error) {
	lang := "en-US"
	if parts := strings.SplitN(voice, "-", 3); len(parts) == 3 {
		lang = parts[0] + "-" + parts[1]
	}
	out, err := xml.Marshal(ssmlSpeak{Version: "1.0", Lang: lang, Voice: ssmlVoice{Name: voice, Text: text}})
	if err != nil {
		return nil, fmt.Errorf("build ssml: %w", err)
	}
	return out, nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if msg := strings.TrimSpace(string(b)); msg != "" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}
