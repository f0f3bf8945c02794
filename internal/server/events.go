package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const heartbeatInterval = 25 * time.Second

// handleEvents streams toasts to the page as server-sent events. A toast is
// acknowledged once written so the next page render does not repeat it.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	ws := workspaceFrom(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := ws.Toasts.Subscribe()
	defer ws.Toasts.Unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case toast, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(toast)
			if err != nil {
				s.logger.Error("failed to encode toast", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: toast\ndata: %s\n\n", toast.ID, data); err != nil {
				return
			}
			flusher.Flush()
			ws.Toasts.Ack(toast.ID)
		}
	}
}
