package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/assetpipe/internal/core"
	"github.com/fleetops/assetpipe/internal/logging"
)

// handleSubmitImport accepts one import submission as a JSON rectangular
// table and starts the pipeline in the background.
func (s *Server) handleSubmitImport(w http.ResponseWriter, r *http.Request) {
	var req core.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if max := s.cfg.Import.MaxRows; len(req.Rows) > max {
		writeError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("submission has %d rows, limit is %d", len(req.Rows), max))
		return
	}

	sessionID, err := s.service.StartImport(r.Context(), req)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}

	logging.FromContext(r.Context()).Info("import accepted",
		"session_id", sessionID,
		"source_id", req.SourceID,
		"rows", len(req.Rows),
	)

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"sessionId": sessionID})
}

// handleImportProgress streams progress snapshots via Server-Sent Events.
// Supports resumption via the lastEventId query parameter: the event ID is
// the processed count, so a reconnecting client skips snapshots it has
// already applied.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, r, http.StatusBadRequest, "missing session ID")
		return
	}

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(sessionID)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case snap, ok := <-progressCh:
			if !ok {
				// Channel closed: session reached a terminal state.
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			// Snapshots are complete, so processed works as a resumable,
			// naturally deduplicating event ID.
			if lastEventIDStr != "" && snap.Processed <= lastEventID && !snap.Done() {
				continue
			}

			data, _ := json.Marshal(snap)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", snap.Processed, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the latest snapshot for a session.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, r, http.StatusBadRequest, "missing session ID")
		return
	}

	result, err := s.service.Result(sessionID)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, result)
}

// handleWaitForResult blocks until the import finishes or the wait ceiling
// expires. Ceiling expiry returns 202 with the latest snapshot: the import
// is still running, the caller just stopped waiting.
func (s *Server) handleWaitForResult(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, r, http.StatusBadRequest, "missing session ID")
		return
	}

	result, err := s.service.WaitForResult(r.Context(), sessionID)
	switch {
	case errors.Is(err, core.ErrWaitTimeout):
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]interface{}{
			"error":    err.Error(),
			"snapshot": result,
		})
	case errors.Is(err, core.ErrSessionNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, result)
	}
}

// handleCancelImport cancels an in-progress import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, r, http.StatusBadRequest, "missing session ID")
		return
	}

	if err := s.service.Cancel(sessionID); err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, map[string]string{"status": "cancelled"})
}

// handleResolve runs one entity-resolution batch for pre-submission preview.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req core.ResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result := s.service.ResolveEntities(r.Context(), req)
	writeJSON(w, result)
}

// handleListSources returns the registered source formats.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"sources": s.service.ListSources()})
}

// detectRequest carries a header row for source detection.
type detectRequest struct {
	Header []string `json:"header"`
}

// handleDetectSource guesses the source format for a header row.
func (s *Server) handleDetectSource(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Header) == 0 {
		writeError(w, r, http.StatusBadRequest, "header row required")
		return
	}

	sourceID, score := s.service.DetectSourceFor(req.Header)
	writeJSON(w, map[string]interface{}{
		"sourceId": sourceID,
		"score":    score,
		"matched":  sourceID != "",
	})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var vErr core.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
