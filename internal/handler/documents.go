package handler

import (
	"log/slog"
	"net/http"

	"kakehashi/internal/httputil"
	ingestsvc "kakehashi/internal/service/ingest"
)

// DocumentsHandler serves course material ingestion.
type DocumentsHandler struct {
	ingest *ingestsvc.Service
	logger *slog.Logger
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(ingest *ingestsvc.Service, logger *slog.Logger) *DocumentsHandler {
	return &DocumentsHandler{ingest: ingest, logger: logger}
}

// IngestChunks embeds and stores the chunks of one document, replacing any
// previously stored chunks of the same document.
// POST /api/documents/chunks
func (h *DocumentsHandler) IngestChunks(w http.ResponseWriter, r *http.Request) {
	var req ingestsvc.Request
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.ingest.Ingest(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, result)
}
