package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

// streamProgress relays a session's progress events as server-sent events.
// The stream ends after the first terminal "done" event.
func (rt *Router) streamProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if rt.progress == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "progress stream is not configured"})
		return
	}
	if _, err := rt.api.Rules(r.Context(), sessionID); domain.IsKind(err, domain.ErrSessionNotFound) {
		writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported by response writer"})
		return
	}

	events, unsubscribe := rt.progress.Subscribe(sessionID)
	defer unsubscribe()
	if rt.metrics != nil {
		rt.metrics.StreamOpened()
		defer rt.metrics.StreamClosed()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(rt.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			name := "progress"
			if event.Phase == domain.PhaseDone {
				name = "done"
			}
			if err := writeSSE(w, name, event); err != nil {
				return
			}
			flusher.Flush()
			if name == "done" {
				return
			}
		}
	}
}

func writeSSE(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
