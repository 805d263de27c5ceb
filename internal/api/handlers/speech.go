package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
	"github.com/sixsideddice/lottie-gateway/internal/infra/speech"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*speech.Result, error)
}

type SpeechHandler struct {
	synth Synthesizer
}

func NewSpeechHandler(synth Synthesizer) *SpeechHandler {
	return &SpeechHandler{synth: synth}
}

type speechRequest struct {
	Text string `json:"text"`
}

// TextToSpeech handles POST /text-to-speech. A 2xx always carries audio.
func (h *SpeechHandler) TextToSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err, http.StatusInternalServerError)
		return
	}

	res, err := h.synth.Synthesize(r.Context(), req.Text)
	if err == nil && (res == nil || res.Status != speech.StatusCompleted || len(res.Audio) == 0) {
		err = apperr.Synthesis("speech synthesis failed", errors.New("no audio produced"))
	}
	if err != nil {
		writeAppError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set(headerContentType, "audio/wav")
	w.Header().Set("Content-Disposition", "attachment; filename=response.wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Audio) //nolint:errcheck
}
