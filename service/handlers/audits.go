package handlers

import (
	"net/http"
	"strconv"
)

const defaultAuditLimit = 100

func (ws *WelfareServer) ListAudits(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultAuditLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	audits, err := ws.Audits.List(r.Context(), query.Get("outcome"), limit)
	if err != nil {
		ws.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, audits)
}
