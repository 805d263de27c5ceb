package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sixsideddice/lottie-gateway/internal/api/ctxkeys"
	"github.com/sixsideddice/lottie-gateway/internal/apperr"
	"github.com/sixsideddice/lottie-gateway/internal/domain/chat"
	"github.com/sixsideddice/lottie-gateway/internal/infra/llm"
	"github.com/sixsideddice/lottie-gateway/internal/infra/logging"
)

const mimeNDJSON = "application/x-ndjson"

type ChatService interface {
	Complete(ctx context.Context, in chat.Input) (*llm.ChatResponse, error)
	Stream(ctx context.Context, in chat.Input) (<-chan chat.Event, error)
}

type ChatHandler struct {
	chatService ChatService
}

func NewChatHandler(chatService ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages      []chatMessage `json:"messages"`
	CurrentModel  string        `json:"currentModel"`
	Model         string        `json:"model,omitempty"`
	SearchLibrary string        `json:"searchLibrary"`
}

func (req chatRequest) toInput() (chat.Input, error) {
	if len(req.Messages) == 0 {
		return chat.Input{}, apperr.Validation("messages is required")
	}
	if req.CurrentModel == "" {
		return chat.Input{}, apperr.Validation("currentModel is required")
	}
	msgs := make([]llm.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return chat.Input{
		Messages:      msgs,
		Persona:       chat.Persona(req.CurrentModel),
		Model:         req.Model,
		SearchLibrary: req.SearchLibrary,
	}, nil
}

// Complete handles POST /getChatCompletion. The provider JSON is written unchanged.
func (h *ChatHandler) Complete(w http.ResponseWriter, r *http.Request) {
	input, err := buildChatInput(w, r)
	if err != nil {
		writeAppError(w, r, err, http.StatusBadRequest)
		return
	}

	resp, err := h.chatService.Complete(r.Context(), input)
	if err != nil {
		writeAppError(w, r, err, http.StatusBadRequest)
		return
	}
	if len(resp.Raw) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"content": resp.Content, "usage": resp.Usage})
		return
	}
	writeRaw(w, resp.Raw)
}

// Stream handles POST /getChatCompletionStream as newline-delimited JSON events.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	input, err := buildChatInput(w, r)
	if err != nil {
		writeAppError(w, r, err, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream, err := h.chatService.Stream(r.Context(), input)
	if err != nil {
		writeAppError(w, r, err, http.StatusBadRequest)
		return
	}

	bw := prepareChatStream(w)
	if n, err := streamChatEvents(bw, flusher, stream); err != nil {
		logging.FromContext(r.Context()).Info("client stopped reading stream",
			zap.Int("events_written", n), zap.Error(err))
	}
}

func buildChatInput(w http.ResponseWriter, r *http.Request) (chat.Input, error) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return chat.Input{}, err
	}
	in, err := req.toInput()
	if err != nil {
		return chat.Input{}, err
	}
	if id, err := ctxkeys.GetRequestID(r.Context()); err == nil {
		in.RequestID = id
	}
	return in, nil
}

func prepareChatStream(w http.ResponseWriter) *bufio.Writer {
	w.Header().Set(headerContentType, mimeNDJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return bufio.NewWriter(w)
}

// streamChatEvents writes one JSON object per line and flushes after each.
// It returns on the first write error; the request context is cancelled when
// the handler returns, which stops the producer.
func streamChatEvents(bw *bufio.Writer, flusher http.Flusher, stream <-chan chat.Event) (int, error) {
	n := 0
	for ev := range stream {
		b, err := json.Marshal(ev)
		if err != nil {
			return n, fmt.Errorf("encode event: %w", err)
		}
		if _, err := bw.Write(append(b, '\n')); err != nil {
			return n, err
		}
		if err := bw.Flush(); err != nil {
			return n, err
		}
		flusher.Flush()
		n++
	}
	return n, nil
}
