package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Tharunreddy-N/JnP-Automation/internal/history"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := a.History.Ping(); err != nil {
		a.Log.Error().Err(err).Msg("history store unreachable")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  "history store unreachable",
		})
		return
	}
	payload := map[string]any{
		"status":  "ok",
		"modules": len(a.Registry.Modules()),
	}
	if a.WorkerStatus != nil {
		if st := a.WorkerStatus(); st != nil {
			payload["worker"] = st
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleUpdateAll refreshes every module concurrently. Per-module
// serialization still holds inside the history store; a busy module
// reports as skipped rather than failing the whole request.
func (a *API) handleUpdateAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	type moduleResult struct {
		Added   int    `json:"added"`
		Updated int    `json:"updated"`
		Error   string `json:"error,omitempty"`
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]moduleResult)
	)
	for _, m := range a.Registry.Modules() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := a.Update(r.Context(), id)
			mr := moduleResult{Added: res.Added, Updated: res.Updated}
			if errors.Is(err, history.ErrBusy) {
				mr.Error = "busy"
			} else if err != nil {
				mr.Error = err.Error()
			}
			mu.Lock()
			results[id] = mr
			mu.Unlock()
		}(m.ID)
	}
	wg.Wait()
	writeJSON(w, http.StatusOK, results)
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if a.Events == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "realtime stream unavailable"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Initial comment opens the stream cleanly in browsers/proxies.
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	events, cancel := a.Events.Subscribe()
	defer cancel()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}

			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.ID, evt.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
