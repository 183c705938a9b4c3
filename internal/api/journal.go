package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-fastcon/internal/lights"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// handleJournal returns recent command journal entries, newest first.
//
// Query parameters:
//   - limit: max entries (default 100, capped at 1000)
//   - light_id: only entries for this light
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := lights.DefaultJournalLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var lightID *uint32
	if raw := q.Get("light_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id > uint64(protocol.MaxLightID) {
			writeBadRequest(w, "light_id must be an integer between 0 and 4095")
			return
		}
		v := uint32(id)
		lightID = &v
	}

	entries, err := s.journal.Recent(r.Context(), limit, lightID)
	if err != nil {
		s.logger.Error("failed to read command journal", "error", err)
		writeInternalError(w, "failed to read command journal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
