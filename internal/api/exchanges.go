package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/detectql/detectql/internal/auth"
	"github.com/detectql/detectql/internal/storage"
)

// handleGetExchange returns the archived rows of one exchange. The archive is
// partitioned by answer time, so callers pass the answered_at value they got
// from the chat response.
func handleGetExchange(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exchanges == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "exchange archive is not configured", false, nil)
		return
	}
	if !requireRole(w, r, auth.RoleAuditor) {
		return
	}

	id := r.PathValue("id")
	rawAnsweredAt := strings.TrimSpace(r.URL.Query().Get("answered_at"))
	if rawAnsweredAt == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "ANSWERED_AT_REQUIRED", "answered_at query parameter is required", false, nil)
		return
	}
	answeredAt, err := time.Parse(time.RFC3339Nano, rawAnsweredAt)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ANSWERED_AT", "answered_at must be RFC3339", false, map[string]any{"details": err.Error()})
		return
	}
	if _, err := storage.BuildExchangePath(answeredAt, id); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EXCHANGE_ID", err.Error(), false, nil)
		return
	}

	rows, err := deps.Exchanges.Load(r.Context(), answeredAt, id)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "EXCHANGE_NOT_FOUND", "exchange not found", false, map[string]any{"id": id})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "EXCHANGE_FETCH_FAILED", "failed to load exchange", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "rows": rows})
}
