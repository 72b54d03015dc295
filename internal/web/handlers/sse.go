package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kozaktomas/photo-batcher/internal/store"
)

// sendSSEEvent writes one server-sent event and flushes it to the client.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}

// isTerminalEvent reports whether an event type ends the stream.
func isTerminalEvent(eventType string) bool {
	return eventType == "completed" || eventType == "failed" || eventType == "cancelled"
}

// Events handles GET /batches/{id}/events, streaming processing progress as
// server-sent events. The stream opens with a status snapshot; when no worker
// is running the snapshot is all the client gets.
func (h *BatchesHandler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	batch, err := h.store.GetBatch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not load batch")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sendSSEEvent(w, flusher, "status", batchStatus{
		Batch:       batch,
		ProgressPct: batch.ProgressPct(),
	})

	worker := h.manager.Get(id)
	if worker == nil || !worker.Running() {
		return
	}

	events := worker.AddListener()
	defer worker.RemoveListener(events)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if isTerminalEvent(event.Type) {
				return
			}
		}
	}
}
