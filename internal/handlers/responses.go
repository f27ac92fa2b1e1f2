package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/blameazu/minesweeper/internal/apperr"
)

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeAppError maps the core's tagged error kinds onto HTTP statuses. The
// services never see transport concerns; this is the only mapping point.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError

	switch kind {
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindBadRequest:
		status = http.StatusBadRequest
	case apperr.KindInvalidState:
		status = http.StatusConflict
	case apperr.KindAlreadyInMatch:
		status = http.StatusConflict
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}

	writeJSONResponse(w, status, map[string]string{
		"error": err.Error(),
		"kind":  kind.String(),
	})
}
