package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// DefaultReembedBatchSize bounds how many chunks are embedded and written per
// batch during a full re-embed.
const DefaultReembedBatchSize = 100

// Reembed recomputes embeddings for every stored chunk of the given source
// type, in bounded batches. Used after switching embedding models. A batch
// only advances after its vector writes commit, so an interrupted run can be
// restarted and only redoes the remaining chunks (upserts are idempotent per
// chunk ID). Pass an empty sourceType to re-embed all three pools.
func (p *Pipeline) Reembed(ctx context.Context, sourceType rag.SourceType, batchSize int) (Result, error) {
	if batchSize <= 0 {
		batchSize = DefaultReembedBatchSize
	}
	log := logging.FromContext(ctx)

	types := []rag.SourceType{sourceType}
	if sourceType == "" {
		types = []rag.SourceType{rag.SourceComment, rag.SourceTranscript, rag.SourceProduct}
	}

	var res Result
	for _, t := range types {
		chunks, err := p.idx.ListChunks(ctx, t)
		if err != nil {
			return res, fmt.Errorf("ingestion: list %s chunks: %w", t, err)
		}

		for start := 0; start < len(chunks); start += batchSize {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("ingestion: reembed cancelled: %w", err)
			}

			end := start + batchSize
			if end > len(chunks) {
				end = len(chunks)
			}
			batch := chunks[start:end]

			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}

			embeddings, err := p.embedder.Embed(ctx, texts)
			if err != nil {
				res.record(fmt.Errorf("%s batch at %d: %w", t, start, err))
				log.Warn("ingestion: reembed batch failed, continuing",
					slog.String("source_type", string(t)),
					slog.Int("offset", start),
					slog.Any("error", err),
				)
				continue
			}
			for i := range batch {
				batch[i].Embedding = embeddings[i]
			}

			if err := p.store.UpsertChunks(ctx, batch); err != nil {
				res.record(fmt.Errorf("%s batch at %d: %w", t, start, err))
				continue
			}
			res.Succeeded += len(batch)
			res.Chunks += len(batch)
		}
	}

	log.Info("ingestion: reembed complete",
		slog.Int("chunks", res.Chunks),
		slog.Int("failed_batches", res.Failed),
	)
	return res, nil
}
