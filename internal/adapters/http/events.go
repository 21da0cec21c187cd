package httpadapter

import (
	"net/http"
	"time"
)

// streamEvents relays invoice change notifications to the browser until the
// client goes away. Each event tells the dashboard which data to refetch.
func (rt *Router) streamEvents(w http.ResponseWriter, r *http.Request) {
	if rt.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "change feed is not configured"})
		return
	}

	events, unsubscribe := rt.events.Subscribe()
	defer unsubscribe()

	flusher, err := startEventStream(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.SubscriberConnected()
		defer rt.metrics.SubscriberDisconnected()
	}
	if err := writeSSEComment(w, flusher, "connected"); err != nil {
		return
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, flusher, "invoice_changed", ev); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := writeSSEComment(w, flusher, "ping"); err != nil {
				return
			}
		}
	}
}
