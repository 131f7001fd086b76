package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/printwatch/internal/audit"
)

// handleListAuditLogs returns audit log entries with optional filtering.
//
// Query parameters:
//   - action: Filter by action (e.g., "printjob.pause")
//   - user_id: Filter by acting user
//   - outcome: Filter by outcome (success, failure, denied, skipped)
//   - limit: Max results (default 50, max 200)
//   - offset: Pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		Outcome: q.Get("outcome"),
	}

	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeBadRequest(w, "user_id must be an integer")
			return
		}
		filter.UserID = id
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil || filter.Offset < 0 {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
