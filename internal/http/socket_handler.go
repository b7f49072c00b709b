package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// SocketBridge upgrades requests into realtime bridge connections.
type SocketBridge interface {
	ServeClinician(w http.ResponseWriter, r *http.Request, clinicianID, name string) error
	ServeUser(w http.ResponseWriter, r *http.Request, sessionID, userID string) error
}

// SocketHandler exposes the two websocket upgrade endpoints. Identity comes
// from query parameters; authentication belongs to the fronting gateway.
type SocketHandler struct {
	bridge SocketBridge
	logger *zap.Logger
}

func NewSocketHandler(bridge SocketBridge, logger *zap.Logger) *SocketHandler {
	return &SocketHandler{
		bridge: bridge,
		logger: logger,
	}
}

// Clinician handles GET /ws/clinician?clinician_id=&name=
func (h *SocketHandler) Clinician(w http.ResponseWriter, r *http.Request) {
	clinicianID := strings.TrimSpace(r.URL.Query().Get("clinician_id"))
	if clinicianID == "" {
		writeError(w, http.StatusBadRequest, "clinician_id is required")
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = clinicianID
	}

	if err := h.bridge.ServeClinician(w, r, clinicianID, name); err != nil {
		// Upgrade failures already wrote the HTTP error response.
		h.logger.Warn("Clinician websocket upgrade failed",
			zap.String("clinician_id", clinicianID),
			zap.Error(err),
		)
	}
}

// Session handles GET /ws/session?session_id=&user_id=
func (h *SocketHandler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if sessionID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "session_id and user_id are required")
		return
	}

	if err := h.bridge.ServeUser(w, r, sessionID, userID); err != nil {
		h.logger.Warn("User websocket upgrade failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
