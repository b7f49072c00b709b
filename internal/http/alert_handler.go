package httpapi

import (
	"net/http"
	"strings"

	"tamgiao-hitl/internal/alert"
	"tamgiao-hitl/internal/models"
	"tamgiao-hitl/internal/moderation"

	"go.uber.org/zap"
)

// AlertLifecycle is the manager surface the REST handlers need.
type AlertLifecycle interface {
	AcknowledgeAlert(alertID, clinicianID string, notes *string) (*models.CriticalAlert, error)
	ResolveAlert(alertID, resolution string) (*models.CriticalAlert, error)
	ListActive() []*models.CriticalAlert
	GetStats() alert.Stats
}

// AlertHandler exposes the clinician console REST surface over the alert
// lifecycle.
type AlertHandler struct {
	alerts AlertLifecycle
	redact bool
	logger *zap.Logger
}

func NewAlertHandler(alerts AlertLifecycle, redact bool, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		redact: redact,
		logger: logger,
	}
}

// ListActive returns every non-resolved alert, newest first.
func (h *AlertHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	active := h.alerts.ListActive()
	out := make([]*models.CriticalAlert, 0, len(active))
	for _, a := range active {
		out = append(out, h.redacted(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// Stats returns alert counts grouped by status and risk type.
func (h *AlertHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.alerts.GetStats())
}

type acknowledgeRequest struct {
	ClinicianID string  `json:"clinician_id"`
	Notes       *string `json:"notes,omitempty"`
}

// Acknowledge moves a pending alert into acknowledged state for a clinician.
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request, alertID string) {
	var req acknowledgeRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.ClinicianID) == "" {
		writeError(w, http.StatusBadRequest, "clinician_id is required")
		return
	}

	a, err := h.alerts.AcknowledgeAlert(alertID, req.ClinicianID, req.Notes)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.redacted(a))
}

type resolveRequest struct {
	Resolution  string `json:"resolution"`
	ClinicianID string `json:"clinician_id,omitempty"`
}

// Resolve closes an alert with a resolution note.
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request, alertID string) {
	var req resolveRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Resolution) == "" {
		writeError(w, http.StatusBadRequest, "resolution is required")
		return
	}

	a, err := h.alerts.ResolveAlert(alertID, req.Resolution)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.redacted(a))
}

// redacted strips user content from an alert copy when privacy mode is on.
// The lifecycle already hands out snapshots, so mutating the copy is safe.
func (h *AlertHandler) redacted(a *models.CriticalAlert) *models.CriticalAlert {
	if !h.redact {
		return a
	}
	out := *a
	out.UserMessage = moderation.RedactionPlaceholder
	out.Metadata.Moderation.NormalizedText = moderation.RedactionPlaceholder
	return &out
}
