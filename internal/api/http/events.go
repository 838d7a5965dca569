package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mind-engage/mindengage-quiz/internal/events"
)

// EventFeed reads the local event log.
type EventFeed interface {
	Since(ctx context.Context, after int64, limit int) ([]events.Logged, error)
}

// GET /events?after=0&limit=100
// Consumers page through the log by passing the last offset they saw.
func EventsHandler(feed EventFeed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		if err != nil {
			after = 0
		}
		limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
		if limit > 1000 {
			limit = 1000
		}
		list, err := feed.Since(r.Context(), after, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []events.Logged{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}
