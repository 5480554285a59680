// Package retriever implements hybrid search over the chunk universe: vector
// similarity and lexical keyword ranking run concurrently, their scores are
// merged per chunk, and the candidate scope narrows through a fallback chain
// of retrieval strategies (precomputed pool, inline prefilter, full scan).
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/pool"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

const (
	// DefaultVectorWeight is the share of the merged score contributed by
	// vector similarity.
	DefaultVectorWeight = 0.7

	// DefaultKeywordWeight is the share contributed by keyword rank.
	DefaultKeywordWeight = 0.3

	// DefaultTopK is the result count when the caller does not set one.
	DefaultTopK = 5

	// overscanFactor widens each sub-search so the merge has enough
	// candidates from both sides before truncating to topK.
	overscanFactor = 2
)

// Options controls one search call. Zero-value fields take defaults.
type Options struct {
	// TopK is the maximum number of results returned.
	TopK int

	// SourceType restricts results to one content pool. Empty means all.
	SourceType rag.SourceType

	// ContextID scopes the search to one context (video). Required for the
	// pool and prefilter tiers to apply.
	ContextID string

	// MinScore drops merged results scoring below it.
	MinScore float64

	// VectorWeight and KeywordWeight blend the two sub-search scores. Both
	// zero means the defaults (0.7/0.3).
	VectorWeight  float64
	KeywordWeight float64
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.VectorWeight == 0 && o.KeywordWeight == 0 {
		o.VectorWeight = DefaultVectorWeight
		o.KeywordWeight = DefaultKeywordWeight
	}
	return o
}

// Retriever runs hybrid searches against the vector store and chunk index.
type Retriever struct {
	store    rag.VectorStore
	idx      rag.ChunkIndex
	embedder rag.Embedder
	pools    *pool.Builder
}

// New constructs a Retriever. pools may be nil, in which case the inline
// prefilter tier is skipped.
func New(store rag.VectorStore, idx rag.ChunkIndex, embedder rag.Embedder, pools *pool.Builder) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("retriever: vector store must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("retriever: chunk index must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("retriever: embedder must not be nil")
	}
	return &Retriever{store: store, idx: idx, embedder: embedder, pools: pools}, nil
}

// strategy is one scoping tier of the fallback chain. An empty result or an
// error moves the coordinator on to the next tier.
type strategy struct {
	name string
	run  func(ctx context.Context, query string, opts Options) ([]rag.SearchResult, error)
}

// Search runs the hybrid query through the strategy chain and returns the
// top-K merged results. The chain is, in order: scope to the context's
// precomputed relevance pool; scope to an inline metadata prefilter; scan the
// full source-type partition. Each tier's failure or empty result falls
// through to the next; only the final tier's error reaches the caller.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) ([]rag.SearchResult, error) {
	opts = opts.withDefaults()
	log := logging.FromContext(ctx)

	chain := r.strategyChain(opts)
	last := len(chain) - 1
	for i, s := range chain {
		results, err := s.run(ctx, query, opts)
		if err != nil {
			if i == last {
				return nil, fmt.Errorf("retriever: %s tier: %w", s.name, err)
			}
			log.Warn("retriever: tier failed, falling through",
				slog.String("tier", s.name),
				slog.Any("error", err),
			)
			continue
		}
		if len(results) == 0 && i < last {
			log.Debug("retriever: tier empty, falling through",
				slog.String("tier", s.name))
			continue
		}
		log.Debug("retriever: tier answered",
			slog.String("tier", s.name),
			slog.Int("results", len(results)),
		)
		return results, nil
	}
	return nil, nil
}

// strategyChain picks the tiers applicable to the request. The pool tiers
// only make sense for product retrieval scoped to a context.
func (r *Retriever) strategyChain(opts Options) []strategy {
	full := strategy{name: "full-scan", run: r.searchFullScan}
	if opts.SourceType != rag.SourceProduct || opts.ContextID == "" {
		return []strategy{full}
	}
	chain := []strategy{{name: "relevance-pool", run: r.searchPooled}}
	if r.pools != nil {
		chain = append(chain, strategy{name: "inline-prefilter", run: r.searchPrefiltered})
	}
	return append(chain, full)
}

// searchPooled scopes the search to the context's precomputed relevance pool.
func (r *Retriever) searchPooled(ctx context.Context, query string, opts Options) ([]rag.SearchResult, error) {
	entries, err := r.idx.GetPool(ctx, opts.ContextID)
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return r.hybrid(ctx, query, opts, &rag.VectorFilter{
		SourceType:        opts.SourceType,
		DocumentSourceIDs: candidateIDs(entries),
	})
}

// searchPrefiltered computes the pool inline without persisting it and
// searches that subset.
func (r *Retriever) searchPrefiltered(ctx context.Context, query string, opts Options) ([]rag.SearchResult, error) {
	entries, err := r.pools.Prefilter(ctx, opts.ContextID)
	if err != nil {
		return nil, fmt.Errorf("inline prefilter: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return r.hybrid(ctx, query, opts, &rag.VectorFilter{
		SourceType:        opts.SourceType,
		DocumentSourceIDs: candidateIDs(entries),
	})
}

// searchFullScan searches the whole source-type partition with no candidate
// restriction.
func (r *Retriever) searchFullScan(ctx context.Context, query string, opts Options) ([]rag.SearchResult, error) {
	filter := &rag.VectorFilter{SourceType: opts.SourceType}
	if opts.SourceType != rag.SourceProduct {
		// Comments and transcripts stay scoped to their own video.
		filter.ContextID = opts.ContextID
	}
	return r.hybrid(ctx, query, opts, filter)
}

func candidateIDs(entries []rag.RelevancePoolEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.CandidateID)
	}
	return ids
}

// hybrid runs the vector and keyword sub-searches concurrently and merges
// their scores. Either sub-search failing on its own degrades to an empty
// contribution for that side; the query as a whole still answers.
func (r *Retriever) hybrid(ctx context.Context, query string, opts Options, filter *rag.VectorFilter) ([]rag.SearchResult, error) {
	log := logging.FromContext(ctx)
	fetch := opts.TopK * overscanFactor

	var (
		wg      sync.WaitGroup
		vecHits []rag.SearchResult
		kwHits  []rag.SearchResult
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		embeddings, err := r.embedder.Embed(ctx, []string{query})
		if err != nil {
			log.Warn("retriever: query embedding failed, keyword-only",
				slog.Any("error", err))
			return
		}
		if len(embeddings) != 1 {
			log.Warn("retriever: embedder returned unexpected batch size",
				slog.Int("got", len(embeddings)))
			return
		}
		hits, err := r.store.Search(ctx, embeddings[0], fetch, filter)
		if err != nil {
			log.Warn("retriever: vector sub-search failed",
				slog.Any("error", err))
			return
		}
		vecHits = hits
	}()
	go func() {
		defer wg.Done()
		hits, err := r.idx.KeywordSearch(ctx, query, fetch, filter)
		if err != nil {
			log.Warn("retriever: keyword sub-search failed",
				slog.Any("error", err))
			return
		}
		kwHits = hits
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := Merge(vecHits, kwHits, opts.VectorWeight, opts.KeywordWeight)

	out := merged[:0]
	for _, res := range merged {
		if res.Score >= opts.MinScore {
			out = append(out, res)
		}
	}
	if len(out) > opts.TopK {
		out = out[:opts.TopK]
	}
	return out, nil
}

// Merge combines vector and keyword hits by chunk ID:
//
//	score = vectorScore·vectorWeight + keywordScore·keywordWeight
//
// A chunk present on only one side contributes only that weighted term. The
// result is sorted by descending score.
func Merge(vector, keyword []rag.SearchResult, vectorWeight, keywordWeight float64) []rag.SearchResult {
	byID := make(map[string]rag.SearchResult, len(vector)+len(keyword))
	order := make([]string, 0, len(vector)+len(keyword))

	for _, hit := range vector {
		hit.Score *= vectorWeight
		byID[hit.ChunkID] = hit
		order = append(order, hit.ChunkID)
	}
	for _, hit := range keyword {
		if prev, ok := byID[hit.ChunkID]; ok {
			prev.Score += hit.Score * keywordWeight
			byID[hit.ChunkID] = prev
			continue
		}
		hit.Score *= keywordWeight
		byID[hit.ChunkID] = hit
		order = append(order, hit.ChunkID)
	}

	merged := make([]rag.SearchResult, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged
}
