package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tamgiao-hitl/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FeedbackSink stores clinician outcome notes for offline review.
type FeedbackSink interface {
	CreateFeedback(ctx context.Context, f *models.InterventionFeedback) error
	ListFeedbackForAlert(ctx context.Context, alertID string) ([]*models.InterventionFeedback, error)
}

// FeedbackHandler exposes POST/GET /api/v1/alerts/{id}/feedback. A nil sink
// (service running without a database) answers 503.
type FeedbackHandler struct {
	sink   FeedbackSink
	logger *zap.Logger
}

func NewFeedbackHandler(sink FeedbackSink, logger *zap.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		sink:   sink,
		logger: logger,
	}
}

type feedbackRequest struct {
	ClinicianID string  `json:"clinician_id"`
	Outcome     string  `json:"outcome"`
	Notes       *string `json:"notes,omitempty"`
}

func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request, alertID string) {
	if h.sink == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback storage unavailable")
		return
	}

	var req feedbackRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.ClinicianID) == "" || strings.TrimSpace(req.Outcome) == "" {
		writeError(w, http.StatusBadRequest, "clinician_id and outcome are required")
		return
	}

	f := &models.InterventionFeedback{
		FeedbackID:  uuid.New().String(),
		AlertID:     alertID,
		ClinicianID: req.ClinicianID,
		Outcome:     req.Outcome,
		Notes:       req.Notes,
		CreatedAt:   time.Now(),
	}
	if err := h.sink.CreateFeedback(r.Context(), f); err != nil {
		h.logger.Error("Failed to store intervention feedback",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to store feedback")
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FeedbackHandler) List(w http.ResponseWriter, r *http.Request, alertID string) {
	if h.sink == nil {
		writeError(w, http.StatusServiceUnavailable, "feedback storage unavailable")
		return
	}

	list, err := h.sink.ListFeedbackForAlert(r.Context(), alertID)
	if err != nil {
		h.logger.Error("Failed to list intervention feedback",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list feedback")
		return
	}
	if list == nil {
		list = []*models.InterventionFeedback{}
	}
	writeJSON(w, http.StatusOK, list)
}
