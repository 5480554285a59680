package server

import (
	"encoding/json"
	"net/http"

	"github.com/chaiyo-labs/replyrag-go/internal/logging"
)

// handleRecompute handles POST /api/pools/recompute. With a video_id it
// rebuilds that one pool; without, it rebuilds the pool of every indexed
// transcript. Per-context failures do not abort the batch.
func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if s.pools == nil {
		http.Error(w, "pools not configured", http.StatusServiceUnavailable)
		return
	}

	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	log := logging.FromContext(r.Context())

	if req.VideoID != "" {
		entries, err := s.pools.Build(r.Context(), req.VideoID, true)
		if err != nil {
			log.Error("pool rebuild failed", "video_id", req.VideoID, "error", err)
			http.Error(w, "pool rebuild failed", http.StatusInternalServerError)
			return
		}
		s.metrics.poolRecomputesTotal.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, recomputeResponse{Contexts: 1, Entries: entries})
		return
	}

	contextIDs, err := s.contexts.ListContextIDs(r.Context())
	if err != nil {
		log.Error("context listing failed", "error", err)
		http.Error(w, "context listing failed", http.StatusInternalServerError)
		return
	}

	res, err := s.pools.RecomputeAll(r.Context(), contextIDs)
	if err != nil {
		log.Error("pool recompute aborted", "error", err)
		http.Error(w, "pool recompute aborted", http.StatusInternalServerError)
		return
	}

	s.metrics.poolRecomputesTotal.WithLabelValues("ok").Add(float64(res.Succeeded))
	s.metrics.poolRecomputesTotal.WithLabelValues("failed").Add(float64(res.Failed))

	writeJSON(w, http.StatusOK, recomputeResponse{
		Contexts: res.Succeeded + res.Failed,
		Failed:   res.Failed,
		Errors:   errorStrings(res.Errors),
	})
}
