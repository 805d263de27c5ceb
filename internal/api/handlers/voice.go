package handlers

import (
	"context"
	"net/http"
)

type VoiceBroker interface {
	AgentID() (string, error)
	SignedURL(ctx context.Context) (string, error)
}

type VoiceHandler struct {
	broker VoiceBroker
}

func NewVoiceHandler(broker VoiceBroker) *VoiceHandler {
	return &VoiceHandler{broker: broker}
}

// SignedURL handles GET /api/signed-url.
func (h *VoiceHandler) SignedURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.broker.SignedURL(r.Context())
	if err != nil {
		writeAppError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"signedUrl": u})
}

// AgentID handles GET /api/getAgentId.
func (h *VoiceHandler) AgentID(w http.ResponseWriter, r *http.Request) {
	id, err := h.broker.AgentID()
	if err != nil {
		writeAppError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agentId": id})
}
