package handler

import (
	"log/slog"
	"net/http"

	"kakehashi/internal/httputil"
	feedbacksvc "kakehashi/internal/service/feedback"
)

// FeedbackHandler serves response ratings and trace sharing.
type FeedbackHandler struct {
	feedback *feedbacksvc.Service
	logger   *slog.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(feedback *feedbacksvc.Service, logger *slog.Logger) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback, logger: logger}
}

// Create records a rating for an agent run.
// POST /api/feedback
func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var req feedbacksvc.CreateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.feedback.Create(r.Context(), userID, req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, created)
}

// Get fetches a feedback record.
// GET /api/feedback/{id}
func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	feedbackID, ok := PathParam(w, r, "id", "Feedback ID")
	if !ok {
		return
	}

	record, err := h.feedback.Get(r.Context(), feedbackID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, record)
}

// Update revises an existing rating.
// PATCH /api/feedback/{id}
func (h *FeedbackHandler) Update(w http.ResponseWriter, r *http.Request) {
	feedbackID, ok := PathParam(w, r, "id", "Feedback ID")
	if !ok {
		return
	}

	var req feedbacksvc.UpdateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.feedback.Update(r.Context(), feedbackID, req); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ShareRun publishes an agent run's trace and returns the public URL.
// POST /api/runs/{id}/share
func (h *FeedbackHandler) ShareRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := PathParam(w, r, "id", "Run ID")
	if !ok {
		return
	}

	url, err := h.feedback.ShareRun(r.Context(), runID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"url": url})
}
