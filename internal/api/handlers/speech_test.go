package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
	"github.com/sixsideddice/lottie-gateway/internal/infra/speech"
)

type synthStub struct {
	res *speech.Result
	err error
}

func (s synthStub) Synthesize(context.Context, string) (*speech.Result, error) {
	return s.res, s.err
}

func TestSpeechHandler_Success_WAV(t *testing.T) {
	t.Parallel()

	audio := []byte("RIFF....WAVEfmt ")
	rr := httptest.NewRecorder()
	NewSpeechHandler(synthStub{res: &speech.Result{Audio: audio, Status: speech.StatusCompleted}}).
		TextToSpeech(rr, postJSON("/text-to-speech", `{"text":"hello"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("expected audio/wav, got %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != "attachment; filename=response.wav" {
		t.Errorf("unexpected disposition %q", cd)
	}
	if rr.Body.String() != string(audio) {
		t.Errorf("expected audio bytes, got %q", rr.Body.String())
	}
}

func TestSpeechHandler_Failure_Never2xx(t *testing.T) {
	t.Parallel()

	cases := map[string]synthStub{
		"synthesis error": {err: apperr.Synthesis("speech synthesis failed", errors.New("status 400"))},
		"empty audio":     {res: &speech.Result{Status: speech.StatusCompleted}},
		"canceled status": {res: &speech.Result{Audio: []byte("x"), Status: speech.Status("canceled")}},
		"nil result":      {},
	}
	for name, stub := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rr := httptest.NewRecorder()
			NewSpeechHandler(stub).TextToSpeech(rr, postJSON("/text-to-speech", `{"text":"hello"}`))
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rr.Code)
			}
			if decodeDetail(t, rr) == "" {
				t.Error("expected non-empty detail")
			}
		})
	}
}

func TestSpeechHandler_MissingSettings_500(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	NewSpeechHandler(speech.New(speech.Config{})).TextToSpeech(rr, postJSON("/text-to-speech", `{"text":"hello"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestSpeechHandler_SynthesisUpstreamFailure_500(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	synth := speech.New(speech.Config{Key: "k", TokenURL: srv.URL, SynthesisURL: srv.URL})
	rr := httptest.NewRecorder()
	NewSpeechHandler(synth).TextToSpeech(rr, postJSON("/text-to-speech", `{"text":"hello"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if decodeDetail(t, rr) == "" {
		t.Error("expected non-empty detail")
	}
}
