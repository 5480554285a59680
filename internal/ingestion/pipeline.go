// Package ingestion implements the content ingestion pipeline. It normalizes
// raw source text (comments, transcripts, product descriptions), chunks it
// per source-type profile, embeds each chunk, and replaces the document in
// both the chunk index and the vector store. This pipeline is invoked by the
// `replyrag ingest` CLI command and the ingest API endpoint.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaiyo-labs/replyrag-go/internal/chunker"
	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
	"github.com/chaiyo-labs/replyrag-go/internal/textnorm"
)

// maxErrorSample caps the per-item errors reported by a batch ingest.
const maxErrorSample = 5

// Item is one unit of content to ingest.
type Item struct {
	// SourceType identifies the content pool (comment, transcript, product).
	SourceType rag.SourceType

	// SourceID is the external natural key (comment ID, video ID, SKU).
	SourceID string

	// Text is the raw source text.
	Text string

	// Metadata is the type-specific metadata variant.
	Metadata rag.Metadata
}

// Validate checks the item carries everything ingestion needs.
func (it Item) Validate() error {
	if !it.SourceType.Valid() {
		return rag.NewValidationError("unknown source type %q", it.SourceType)
	}
	if it.SourceID == "" {
		return rag.NewValidationError("source id must not be empty")
	}
	if it.Text == "" {
		return rag.NewValidationError("text must not be empty for %s %s", it.SourceType, it.SourceID)
	}
	if it.Metadata == nil {
		return rag.NewValidationError("metadata must not be nil for %s %s", it.SourceType, it.SourceID)
	}
	if it.Metadata.SourceType() != it.SourceType {
		return rag.NewValidationError("metadata type %q does not match item type %q",
			it.Metadata.SourceType(), it.SourceType)
	}
	return nil
}

// Result reports the outcome of a batch ingest or re-embed run.
type Result struct {
	// Succeeded is the number of items fully written.
	Succeeded int
	// Failed is the number of items that errored.
	Failed int
	// Chunks is the total number of chunks written.
	Chunks int
	// Errors is a capped sample of the failures (first maxErrorSample).
	Errors []error
}

// OK reports whether the run completed with zero failures.
func (r Result) OK() bool { return r.Failed == 0 }

// record registers one item failure, keeping the capped sample.
func (r *Result) record(err error) {
	r.Failed++
	if len(r.Errors) < maxErrorSample {
		r.Errors = append(r.Errors, err)
	}
}

// Pipeline orchestrates the normalize → chunk → embed → replace flow.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	idx      rag.ChunkIndex
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, idx rag.ChunkIndex) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	return &Pipeline{embedder: embedder, store: store, idx: idx}, nil
}

// IngestItem ingests one item, replacing any previous document with the same
// (sourceType, sourceID) in full — never a partial patch. Returns the number
// of chunks written.
func (p *Pipeline) IngestItem(ctx context.Context, item Item) (int, error) {
	if err := item.Validate(); err != nil {
		return 0, err
	}

	text := textnorm.Normalize(item.Text, normOptions(item.SourceType))
	if text == "" {
		return 0, rag.NewValidationError("text normalized to empty for %s %s", item.SourceType, item.SourceID)
	}

	pieces := []string{text}
	if profile, ok := chunker.ProfileFor(item.SourceType); ok {
		pieces = chunker.Split(text, profile)
	}

	docID := documentID(item.SourceType, item.SourceID)
	chunks := make([]rag.Chunk, 0, len(pieces))
	texts := make([]string, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, rag.Chunk{
			ID:         chunkID(item.SourceType, item.SourceID, i),
			DocumentID: docID,
			Index:      i,
			Text:       piece,
			Metadata:   item.Metadata,
		})
		texts = append(texts, piece)
	}

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("ingestion: embed %s %s: %w", item.SourceType, item.SourceID, err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	doc := rag.SourceDocument{
		ID:         docID,
		SourceType: item.SourceType,
		SourceID:   item.SourceID,
		Metadata:   item.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.idx.ReplaceDocument(ctx, doc, chunks); err != nil {
		return 0, fmt.Errorf("ingestion: replace document %s: %w", docID, err)
	}

	// Re-ingest may shrink the chunk count; clear stale points before the
	// idempotent upsert.
	if err := p.store.DeleteByDocument(ctx, []string{docID}); err != nil {
		return 0, fmt.Errorf("ingestion: clear vectors for %s: %w", docID, err)
	}
	if err := p.store.UpsertChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("ingestion: upsert vectors for %s: %w", docID, err)
	}

	return len(chunks), nil
}

// IngestAll ingests items sequentially, continuing past individual failures.
// Each item commits on its own, so a crash mid-run leaves completed items
// done and a restart only redoes the rest.
func (p *Pipeline) IngestAll(ctx context.Context, items []Item) (Result, error) {
	log := logging.FromContext(ctx)

	var res Result
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("ingestion: cancelled: %w", err)
		}

		n, err := p.IngestItem(ctx, item)
		if err != nil {
			res.record(fmt.Errorf("%s %s: %w", item.SourceType, item.SourceID, err))
			log.Warn("ingestion: item failed, continuing",
				slog.String("source_type", string(item.SourceType)),
				slog.String("source_id", item.SourceID),
				slog.Any("error", err),
			)
			continue
		}
		res.Succeeded++
		res.Chunks += n
	}

	log.Info("ingestion: batch complete",
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Int("chunks", res.Chunks),
	)
	return res, nil
}

// normOptions returns the normalization profile for a source type. Comments
// carry the most noise (emoji, pasted links), so they get the full cleanup.
func normOptions(t rag.SourceType) textnorm.Options {
	switch t {
	case rag.SourceComment:
		return textnorm.Options{RemoveEmojis: true, CleanURLs: true, MaxLength: 2000}
	case rag.SourceProduct:
		return textnorm.Options{RemoveEmojis: true}
	default:
		return textnorm.Options{}
	}
}

// documentID builds the internal document key "<sourceType>:<sourceID>".
func documentID(sourceType rag.SourceType, sourceID string) string {
	return string(sourceType) + ":" + sourceID
}

// chunkID derives a deterministic UUID-format chunk identifier from the
// document key and chunk index. Deterministic IDs make vector upserts
// idempotent across re-ingests; the UUID shape is what the vector store
// accepts as a point ID.
func chunkID(sourceType rag.SourceType, sourceID string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s#%d", sourceType, sourceID, index)))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
