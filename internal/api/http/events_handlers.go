package http

import (
	"net/http"
	"strconv"

	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// ListEventsHandler pages through the event log for sync consumers:
// GET /api/admin/events?after=<seq>&limit=<n>.
func ListEventsHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, err := queryID(r, "after")
		if err != nil {
			writeError(w, r, err)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit > 1000 {
			limit = 1000
		}
		evs, err := events.Since(r.Context(), after, limit)
		if err != nil {
			writeReadError(w, r, err)
			return
		}
		if evs == nil {
			evs = []syncx.Event{}
		}
		writeJSON(w, http.StatusOK, evs)
	}
}
