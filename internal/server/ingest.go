package server

import (
	"io"
	"net/http"

	"github.com/chaiyo-labs/replyrag-go/internal/ingestion"
	"github.com/chaiyo-labs/replyrag-go/internal/logging"
)

// maxIngestBody caps the request body of POST /api/ingest.
const maxIngestBody = 32 << 20 // 32 MiB

// handleIngest handles POST /api/ingest: a JSON array of items to normalize,
// chunk, embed, and index. Items are processed sequentially; a failed item is
// recorded and skipped, so the response can report partial success with 200.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		http.Error(w, "ingestion not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	items, err := ingestion.DecodeItems(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(items) == 0 {
		http.Error(w, "no items to ingest", http.StatusBadRequest)
		return
	}

	res, err := s.pipeline.IngestAll(r.Context(), items)
	if err != nil {
		logging.FromContext(r.Context()).Error("ingest aborted", "error", err)
		http.Error(w, "ingest aborted", http.StatusInternalServerError)
		return
	}

	s.metrics.ingestItemsTotal.WithLabelValues("ok").Add(float64(res.Succeeded))
	s.metrics.ingestItemsTotal.WithLabelValues("failed").Add(float64(res.Failed))

	writeJSON(w, http.StatusOK, ingestResponse{
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		Chunks:    res.Chunks,
		Errors:    errorStrings(res.Errors),
	})
}

// errorStrings renders an error sample for a JSON response.
func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
