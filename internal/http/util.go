package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tamgiao-hitl/internal/alert"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// writeLifecycleError maps the alert lifecycle sentinels onto HTTP status
// codes: validation 400, unknown alert 404, state machine violations 409.
func writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alert.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, alert.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, alert.ErrInvalidState), errors.Is(err, alert.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
