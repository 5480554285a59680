package embedder

import (
	"context"

	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// DefaultBatchSize is the number of texts sent per embedding request when
// EMBEDDING_BATCH_SIZE is not set.
const DefaultBatchSize = 64

// Batched wraps a rag.Embedder and splits large inputs into fixed-size
// request batches, so bulk ingestion never sends thousands of texts in one
// call. Results are concatenated in input order. Failures are wrapped as
// UpstreamServiceError so batch pipelines can log-and-continue while
// interactive paths surface them.
type Batched struct {
	inner     rag.Embedder
	batchSize int
}

// NewBatched wraps inner with request batching. A non-positive batchSize
// falls back to DefaultBatchSize.
func NewBatched(inner rag.Embedder, batchSize int) *Batched {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Batched{inner: inner, batchSize: batchSize}
}

// NewBatchedFromEnv constructs the configured embedder wrapped with the
// EMBEDDING_BATCH_SIZE request batch size.
func NewBatchedFromEnv() (*Batched, error) {
	inner, err := NewFromEnv()
	if err != nil {
		return nil, err
	}
	return NewBatched(inner, getEnvInt("EMBEDDING_BATCH_SIZE", DefaultBatchSize)), nil
}

// Embed converts texts to embeddings in bounded request batches. The returned
// slice is parallel to the input slice.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := b.inner.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, &rag.UpstreamServiceError{Service: "embedder", Err: err}
		}
		out = append(out, vectors...)
	}
	return out, nil
}
