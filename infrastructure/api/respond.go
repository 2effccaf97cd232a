package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"trainer-chat/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(kind errors.Kind) int {
	switch kind {
	case errors.KindInvalidArgument:
		return http.StatusBadRequest
	case errors.KindUnauthenticated:
		return http.StatusUnauthorized
	case errors.KindPermissionDenied:
		return http.StatusForbidden
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindStoreUnavailable, errors.KindNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError hides the detail of unclassified failures from clients.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := errors.KindOf(err)
	status := statusOf(kind)
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
		writeJSON(w, status, errorResponse{Error: string(errors.KindUnknown)})
		return
	}
	writeJSON(w, status, errorResponse{Error: string(kind), Message: err.Error()})
}
