package handlers

import (
	"net/http"

	"github.com/sixsideddice/lottie-gateway/internal/infra/storage"
)

type SASIssuer interface {
	Issue(container, blobPath string) (*storage.Grant, error)
}

type StorageHandler struct {
	issuer SASIssuer
}

func NewStorageHandler(issuer SASIssuer) *StorageHandler {
	return &StorageHandler{issuer: issuer}
}

type downloadBlobRequest struct {
	ContainerName string `json:"container_name"`
	BlobPath      string `json:"blob_path"`
}

type downloadBlobResponse struct {
	SASURL string `json:"sas_url"`
}

// DownloadBlob handles POST /download-blob.
func (h *StorageHandler) DownloadBlob(w http.ResponseWriter, r *http.Request) {
	var req downloadBlobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err, http.StatusInternalServerError)
		return
	}
	grant, err := h.issuer.Issue(req.ContainerName, req.BlobPath)
	if err != nil {
		writeAppError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, downloadBlobResponse{SASURL: grant.URL})
}
