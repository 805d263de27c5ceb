package handlers

import (
	"context"
	"encoding/json"
	"net/http"
)

type AssistService interface {
	FormatReference(ctx context.Context, text string) (json.RawMessage, error)
	GenerateTitle(ctx context.Context, conversation string) (json.RawMessage, error)
}

type AssistHandler struct {
	assist AssistService
}

func NewAssistHandler(assist AssistService) *AssistHandler {
	return &AssistHandler{assist: assist}
}

type referenceRequest struct {
	Reference string `json:"reference"`
}

type titleRequest struct {
	Messages string `json:"messages"`
}

// Reference handles POST /getReference.
func (h *AssistHandler) Reference(w http.ResponseWriter, r *http.Request) {
	var req referenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err, http.StatusInternalServerError)
		return
	}
	out, err := h.assist.FormatReference(r.Context(), req.Reference)
	if err != nil {
		writeAppError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeRaw(w, out)
}

// Title handles POST /generateTitle.
func (h *AssistHandler) Title(w http.ResponseWriter, r *http.Request) {
	var req titleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err, http.StatusInternalServerError)
		return
	}
	out, err := h.assist.GenerateTitle(r.Context(), req.Messages)
	if err != nil {
		writeAppError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeRaw(w, out)
}
