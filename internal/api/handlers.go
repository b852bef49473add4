package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const (
	previewLen          = 50
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    snap.QueueLength,
		Processing:    snap.Processing,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	resp := StatusResponse{
		Processing:  snap.Processing,
		QueueLength: snap.QueueLength,
		TimeoutMS:   s.engine.Timeout().Milliseconds(),
	}
	if c := snap.Current; c != nil {
		resp.Current = &CurrentJob{
			JobID:     c.ID,
			ChatID:    c.ChatID,
			Preview:   c.Preview,
			StartedAt: c.StartedAt,
			ElapsedMS: c.Elapsed.Milliseconds(),
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	pending := s.engine.Snapshot().Pending
	resp := QueueResponse{Pending: make([]PendingRequest, 0, len(pending))}
	for i, req := range pending {
		resp.Pending = append(resp.Pending, PendingRequest{
			Position:   i + 1,
			JobID:      req.ID,
			ChatID:     req.ChatID,
			Preview:    req.Preview(previewLen),
			EnqueuedAt: req.EnqueuedAt,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "job history is not recorded")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read job history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read job history")
		return
	}

	resp := HistoryResponse{Jobs: make([]HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Jobs = append(resp.Jobs, HistoryEntry{
			JobID:       e.JobID,
			ChatID:      e.ChatID,
			Status:      e.Status,
			ExitCode:    e.ExitCode,
			PromptHash:  e.PromptHash,
			StartedAt:   e.StartedAt,
			CompletedAt: e.CompletedAt,
			DurationMS:  e.Duration.Milliseconds(),
			LastError:   e.LastError,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	res, ok := s.engine.Cancel(r.Context())
	if !ok {
		respondJSON(w, http.StatusConflict, CancelResponse{Canceled: false})
		return
	}
	s.logger.Info("job canceled via API", "job_id", res.JobID, "cleared", res.Cleared)
	respondJSON(w, http.StatusOK, CancelResponse{
		Canceled:  true,
		JobID:     res.JobID,
		ElapsedMS: res.Elapsed.Milliseconds(),
		Cleared:   res.Cleared,
		Finished:  res.Finished,
		Settled:   res.Settled,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
