package api

import (
	"net/http"
	"strconv"
)

// handlePrinterState returns the last state observed by the watcher.
func (s *Server) handlePrinterState(w http.ResponseWriter, _ *http.Request) {
	st, ok := s.state.Current()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "printer state not observed yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state": st,
	})
}

// handlePrinterHistory returns recent state transitions, newest first.
//
// Query parameters:
//   - limit: Max transitions (default 50, max 200)
func (s *Server) handlePrinterHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "state history not configured")
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}

	transitions, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing state history", "error", err)
		writeInternalError(w, "failed to list state history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transitions": transitions,
		"count":       len(transitions),
	})
}

// queryInt parses an optional integer query parameter; absent means zero.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
