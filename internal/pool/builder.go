// Package pool implements the metadata prefilter and the relevance pool
// builder. The prefilter scores catalog candidates against a context's
// structured signals; the builder persists the top candidates as a capped,
// precomputed pool so query-time retrieval never rescans the full catalog.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

const (
	// DefaultMinScore is the prefilter score below which candidates are
	// discarded from the pool.
	DefaultMinScore = 0.1

	// DefaultMaxPoolSize caps the number of entries persisted per context.
	DefaultMaxPoolSize = 200

	// priceBandRatio widens a candidate's price into a ±10% band before
	// testing intersection with the context's price range.
	priceBandRatio = 0.10

	// maxErrorSample caps the number of per-context errors reported by a
	// batch recompute.
	maxErrorSample = 5

	// Prefilter score weights. They sum to 1 so the score stays in [0,1].
	weightTagOverlap = 0.4
	weightCategory   = 0.3
	weightPriceRange = 0.2
	weightBrand      = 0.1
)

// ContextSignals are the structured attributes of one context (video) used
// for prefiltering. All fields are upstream-computed.
type ContextSignals struct {
	// CategoryTags are the context's category labels.
	CategoryTags []string
	// BrandTags are the context's brand labels.
	BrandTags []string
	// Tags are the context's free-form labels.
	Tags []string
	// PriceMin and PriceMax bound the context's price range. Both zero means
	// no price range.
	PriceMin float64
	PriceMax float64
}

// signalsFrom extracts prefilter signals from a transcript metadata variant.
func signalsFrom(m rag.TranscriptMetadata) ContextSignals {
	return ContextSignals{
		CategoryTags: m.CategoryTags,
		BrandTags:    m.BrandTags,
		Tags:         m.Tags,
		PriceMin:     m.PriceMin,
		PriceMax:     m.PriceMax,
	}
}

// Config tunes the pool builder.
type Config struct {
	// MinScore discards candidates scoring below it. Defaults to
	// DefaultMinScore if zero.
	MinScore float64

	// MaxPoolSize caps the persisted pool. Defaults to DefaultMaxPoolSize
	// if zero.
	MaxPoolSize int
}

// Builder computes and persists relevance pools.
type Builder struct {
	// idx is the chunk index holding documents and pools.
	idx rag.ChunkIndex

	// cfg holds the resolved configuration.
	cfg Config
}

// NewBuilder constructs a Builder over the given index.
func NewBuilder(idx rag.ChunkIndex, cfg Config) (*Builder, error) {
	if idx == nil {
		return nil, fmt.Errorf("pool: index must not be nil")
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = DefaultMaxPoolSize
	}
	return &Builder{idx: idx, cfg: cfg}, nil
}

// Score computes the prefilter score of one candidate against the context
// signals, together with the per-axis match flags:
//
//	score = 0.4·tagOverlapRatio + 0.3·categoryExactMatch
//	      + 0.2·priceRangeOverlap + 0.1·brandExactMatch
//
// tagOverlapRatio is |matchedTags| / |contextTags| (0 when the context has no
// tags); the boolean axes contribute their full weight or nothing.
func Score(signals ContextSignals, candidate rag.ProductMetadata) (score float64, brand, category, price bool) {
	contextTags := append(append([]string{}, signals.Tags...), signals.CategoryTags...)
	if len(contextTags) > 0 {
		matched := 0
		for _, t := range contextTags {
			if containsFold(candidate.Tags, t) || strings.EqualFold(candidate.Category, t) {
				matched++
			}
		}
		score += weightTagOverlap * float64(matched) / float64(len(contextTags))
	}

	category = containsFold(signals.CategoryTags, candidate.Category)
	if category {
		score += weightCategory
	}

	price = priceRangeOverlap(candidate.Price, signals.PriceMin, signals.PriceMax)
	if price {
		score += weightPriceRange
	}

	brand = containsFold(signals.BrandTags, candidate.Brand)
	if brand {
		score += weightBrand
	}

	return score, brand, category, price
}

// priceRangeOverlap reports whether the candidate's ±10% price band
// intersects the context price range. Unknown prices or an absent context
// range never match.
func priceRangeOverlap(price, min, max float64) bool {
	if price <= 0 || (min == 0 && max == 0) {
		return false
	}
	lo := price * (1 - priceBandRatio)
	hi := price * (1 + priceBandRatio)
	return lo <= max && hi >= min
}

// Build computes and persists the relevance pool for contextID.
//
// When a pool already exists it is left untouched unless overwrite is set —
// recompute is explicit-only, trading staleness for query-time speed. A
// context with no transcript document yields an explicit empty pool result
// rather than an error. Returns the number of entries persisted.
func (b *Builder) Build(ctx context.Context, contextID string, overwrite bool) (int, error) {
	log := logging.FromContext(ctx)

	if !overwrite {
		existing, err := b.idx.GetPool(ctx, contextID)
		if err != nil {
			return 0, fmt.Errorf("pool: check existing pool: %w", err)
		}
		if len(existing) > 0 {
			log.Debug("pool: already computed, skipping",
				slog.String("context_id", contextID),
				slog.Int("size", len(existing)),
			)
			return len(existing), nil
		}
	}

	doc, err := b.idx.GetDocument(ctx, rag.SourceTranscript, contextID)
	if err != nil {
		if rag.IsNotFound(err) {
			// Missing context short-circuits with an explicit empty pool.
			log.Warn("pool: context has no transcript document",
				slog.String("context_id", contextID))
			return 0, b.idx.ReplacePool(ctx, contextID, nil)
		}
		return 0, fmt.Errorf("pool: load context %s: %w", contextID, err)
	}

	meta, ok := doc.Metadata.(rag.TranscriptMetadata)
	if !ok {
		return 0, rag.NewValidationError("context %s has non-transcript metadata", contextID)
	}

	entries, err := b.computeEntries(ctx, contextID, signalsFrom(meta))
	if err != nil {
		return 0, err
	}

	if err := b.idx.ReplacePool(ctx, contextID, entries); err != nil {
		return 0, fmt.Errorf("pool: persist pool for %s: %w", contextID, err)
	}

	log.Info("pool: computed",
		slog.String("context_id", contextID),
		slog.Int("size", len(entries)),
	)
	return len(entries), nil
}

// computeEntries scores the full candidate universe against the signals and
// returns the capped, descending-sorted pool entries.
func (b *Builder) computeEntries(ctx context.Context, contextID string, signals ContextSignals) ([]rag.RelevancePoolEntry, error) {
	universe, err := b.idx.ListProductDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("pool: list candidate universe: %w", err)
	}

	entries := make([]rag.RelevancePoolEntry, 0, len(universe))
	for _, doc := range universe {
		meta, ok := doc.Metadata.(rag.ProductMetadata)
		if !ok || !meta.Recommendable {
			continue
		}

		score, brand, category, price := Score(signals, meta)
		if score < b.cfg.MinScore {
			continue
		}

		entries = append(entries, rag.RelevancePoolEntry{
			ContextID:         contextID,
			CandidateID:       doc.SourceID,
			RelevanceScore:    score,
			MatchedBrand:      brand,
			MatchedCategory:   category,
			MatchedPriceRange: price,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].RelevanceScore > entries[j].RelevanceScore
	})
	if len(entries) > b.cfg.MaxPoolSize {
		entries = entries[:b.cfg.MaxPoolSize]
	}
	return entries, nil
}

// Prefilter scores the candidate universe for contextID without persisting
// anything. Used as the inline fallback when no precomputed pool exists.
// A missing context returns an empty slice, not an error.
func (b *Builder) Prefilter(ctx context.Context, contextID string) ([]rag.RelevancePoolEntry, error) {
	doc, err := b.idx.GetDocument(ctx, rag.SourceTranscript, contextID)
	if err != nil {
		if rag.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("pool: load context %s: %w", contextID, err)
	}
	meta, ok := doc.Metadata.(rag.TranscriptMetadata)
	if !ok {
		return nil, rag.NewValidationError("context %s has non-transcript metadata", contextID)
	}
	return b.computeEntries(ctx, contextID, signalsFrom(meta))
}

// RecomputeResult reports the outcome of a batch recompute.
type RecomputeResult struct {
	// Succeeded is the number of contexts whose pool was recomputed.
	Succeeded int
	// Failed is the number of contexts that errored.
	Failed int
	// Errors is a capped sample of the failures (first maxErrorSample).
	Errors []error
}

// OK reports whether the batch completed with zero failures.
func (r RecomputeResult) OK() bool { return r.Failed == 0 }

// RecomputeAll rebuilds the pool for every given context sequentially,
// continuing past individual failures. Each context's pool commits on its
// own, so a crash mid-batch leaves completed contexts done and a restart
// only redoes the rest.
func (b *Builder) RecomputeAll(ctx context.Context, contextIDs []string) (RecomputeResult, error) {
	var res RecomputeResult
	for _, id := range contextIDs {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("pool: recompute cancelled: %w", err)
		}

		if _, err := b.Build(ctx, id, true); err != nil {
			res.Failed++
			if len(res.Errors) < maxErrorSample {
				res.Errors = append(res.Errors, fmt.Errorf("context %s: %w", id, err))
			}
			logging.FromContext(ctx).Warn("pool: recompute failed, continuing",
				slog.String("context_id", id),
				slog.Any("error", err),
			)
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// CandidatesFor materializes the generation-time candidate pool for a
// context: pool entries joined with their product metadata, ordered by
// descending relevance, truncated to limit. Entries whose product has since
// been deleted are skipped.
func (b *Builder) CandidatesFor(ctx context.Context, contextID string, limit int) (rag.CandidatePool, error) {
	entries, err := b.idx.GetPool(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("pool: load pool for %s: %w", contextID, err)
	}

	out := make(rag.CandidatePool, 0, len(entries))
	for _, e := range entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		doc, err := b.idx.GetDocument(ctx, rag.SourceProduct, e.CandidateID)
		if err != nil {
			if rag.IsNotFound(err) {
				continue // catalog moved on; pools are eventually consistent
			}
			return nil, fmt.Errorf("pool: load candidate %s: %w", e.CandidateID, err)
		}
		meta, ok := doc.Metadata.(rag.ProductMetadata)
		if !ok {
			continue
		}
		out = append(out, rag.Candidate{
			ID:           e.CandidateID,
			CanonicalURL: meta.CanonicalURL,
			DisplayName:  meta.DisplayName,
			Price:        meta.Price,
		})
	}
	return out, nil
}

// containsFold reports whether list contains s under case-insensitive
// comparison. Empty strings never match.
func containsFold(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
