package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/sixsideddice/lottie-gateway/internal/apperr"
	"github.com/sixsideddice/lottie-gateway/internal/infra/logging"
)

const (
	headerContentType = "Content-Type"
	mimeJSON          = "application/json"

	maxBodyBytes = 1 << 20
)

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeRaw writes an already-encoded JSON document unchanged.
func writeRaw(w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set(headerContentType, mimeJSON)
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck
}

// writeError writes the {"detail": message} error body.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"detail": message})
}

// writeAppError maps err to a status and logs it. configStatus is the status
// used for configuration errors, which differs between chat and auxiliary routes.
func writeAppError(w http.ResponseWriter, r *http.Request, err error, configStatus int) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindConfiguration:
		status = configStatus
	}

	log := logging.FromContext(r.Context())
	fields := []zap.Field{zap.String("kind", kind.String()), zap.Int("status", status), zap.Error(err)}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
	} else {
		log.Info("request rejected", fields...)
	}

	detail := err.Error()
	if detail == "" {
		detail = http.StatusText(status)
	}
	writeError(w, status, detail)
}

// decodeJSON reads a bounded JSON body into v. Malformed input is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}
