package retriever

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/chaiyo-labs/replyrag-go/internal/index"
	"github.com/chaiyo-labs/replyrag-go/internal/pool"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// fakeVectorStore returns canned hits and records the filter it was given.
type fakeVectorStore struct {
	hits       []rag.SearchResult
	err        error
	lastFilter *rag.VectorFilter
}

func (f *fakeVectorStore) UpsertChunks(ctx context.Context, chunks []rag.Chunk) error { return nil }

func (f *fakeVectorStore) Search(ctx context.Context, queryEmbedding []float32, topK int, filter *rag.VectorFilter) ([]rag.SearchResult, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func (f *fakeVectorStore) DeleteByDocument(ctx context.Context, documentIDs []string) error {
	return nil
}

func (f *fakeVectorStore) Close() error { return nil }

// fakeEmbedder returns a fixed unit vector per text.
type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func newTestIndex(t *testing.T) *index.SQLiteIndex {
	t.Helper()
	idx, err := index.Open(":memory:")
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func insertProduct(t *testing.T, idx *index.SQLiteIndex, sku, text string, meta rag.ProductMetadata) {
	t.Helper()
	doc := rag.SourceDocument{
		ID:         "product:" + sku,
		SourceType: rag.SourceProduct,
		SourceID:   sku,
		Metadata:   meta,
		CreatedAt:  time.Now(),
	}
	chunk := rag.Chunk{
		ID:         doc.ID + ":0",
		DocumentID: doc.ID,
		Index:      0,
		Text:       text,
		Metadata:   meta,
	}
	if err := idx.ReplaceDocument(context.Background(), doc, []rag.Chunk{chunk}); err != nil {
		t.Fatalf("insert product: %v", err)
	}
}

func hit(chunkID string, score float64) rag.SearchResult {
	return rag.SearchResult{ChunkID: chunkID, DocumentID: "doc:" + chunkID, Score: score}
}

func Test_Merge_WeightedSum(t *testing.T) {
	t.Parallel()

	vector := []rag.SearchResult{hit("a", 0.9), hit("b", 0.5)}
	keyword := []rag.SearchResult{hit("a", 1.0), hit("c", 0.8)}

	merged := Merge(vector, keyword, 0.7, 0.3)
	if len(merged) != 3 {
		t.Fatalf("merged = %d results, want 3", len(merged))
	}

	want := map[string]float64{
		"a": 0.9*0.7 + 1.0*0.3, // both sides
		"b": 0.5 * 0.7,         // vector only
		"c": 0.8 * 0.3,         // keyword only
	}
	for _, res := range merged {
		if math.Abs(res.Score-want[res.ChunkID]) > 1e-9 {
			t.Fatalf("chunk %s score = %v, want %v", res.ChunkID, res.Score, want[res.ChunkID])
		}
	}
	if merged[0].ChunkID != "a" {
		t.Fatalf("top result = %s, want a", merged[0].ChunkID)
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Score > merged[i-1].Score {
			t.Fatalf("results not sorted descending at %d", i)
		}
	}
}

func Test_Merge_KeywordPreservesVectorFields(t *testing.T) {
	t.Parallel()

	vector := []rag.SearchResult{{ChunkID: "a", Text: "from vector", Score: 0.9}}
	keyword := []rag.SearchResult{{ChunkID: "a", Text: "from keyword", Score: 0.5}}

	merged := Merge(vector, keyword, 0.7, 0.3)
	if len(merged) != 1 {
		t.Fatalf("merged = %d results, want 1", len(merged))
	}
	if merged[0].Text != "from vector" {
		t.Fatalf("merged text = %q, want vector side kept", merged[0].Text)
	}
}

func Test_Search_TopKAndMinScore(t *testing.T) {
	t.Parallel()

	store := &fakeVectorStore{hits: []rag.SearchResult{
		hit("a", 1.0), hit("b", 0.8), hit("c", 0.6), hit("d", 0.01),
	}}
	idx := newTestIndex(t)

	r, err := New(store, idx, &fakeEmbedder{}, nil)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	results, err := r.Search(context.Background(), "query", Options{
		TopK:     2,
		MinScore: 0.1,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want topK 2", len(results))
	}
	if results[0].ChunkID != "a" || results[1].ChunkID != "b" {
		t.Fatalf("unexpected order: %s, %s", results[0].ChunkID, results[1].ChunkID)
	}
}

func Test_Search_VectorFailureDegradesToKeyword(t *testing.T) {
	t.Parallel()

	store := &fakeVectorStore{err: errors.New("qdrant unreachable")}
	idx := newTestIndex(t)
	insertProduct(t, idx, "sku-a", "gaming notebook with dedicated graphics", rag.ProductMetadata{
		Category: "notebook", Recommendable: true,
	})

	r, err := New(store, idx, &fakeEmbedder{}, nil)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	results, err := r.Search(context.Background(), "gaming notebook", Options{TopK: 3})
	if err != nil {
		t.Fatalf("search must not fail on one sub-search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected keyword-side results")
	}
}

func Test_Search_EmbedFailureDegradesToKeyword(t *testing.T) {
	t.Parallel()

	store := &fakeVectorStore{hits: []rag.SearchResult{hit("a", 1.0)}}
	idx := newTestIndex(t)
	insertProduct(t, idx, "sku-a", "gaming notebook with dedicated graphics", rag.ProductMetadata{
		Category: "notebook", Recommendable: true,
	})

	r, err := New(store, idx, &fakeEmbedder{err: errors.New("embedder down")}, nil)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	results, err := r.Search(context.Background(), "gaming notebook", Options{TopK: 3})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected keyword-side results despite embed failure")
	}
}

func Test_Search_PoolTierScopesCandidates(t *testing.T) {
	t.Parallel()

	store := &fakeVectorStore{hits: []rag.SearchResult{hit("a", 0.9)}}
	idx := newTestIndex(t)
	insertProduct(t, idx, "sku-a", "gaming notebook", rag.ProductMetadata{
		Category: "notebook", Recommendable: true,
	})
	err := idx.ReplacePool(context.Background(), "vid1", []rag.RelevancePoolEntry{
		{ContextID: "vid1", CandidateID: "sku-a", RelevanceScore: 0.7},
		{ContextID: "vid1", CandidateID: "sku-b", RelevanceScore: 0.3},
	})
	if err != nil {
		t.Fatalf("seed pool: %v", err)
	}

	r, err := New(store, idx, &fakeEmbedder{}, nil)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	results, err := r.Search(context.Background(), "gaming notebook", Options{
		TopK:       3,
		SourceType: rag.SourceProduct,
		ContextID:  "vid1",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected pooled results")
	}
	if store.lastFilter == nil || len(store.lastFilter.DocumentSourceIDs) != 2 {
		t.Fatalf("vector filter not scoped to pool: %+v", store.lastFilter)
	}
}

func Test_Search_EmptyPoolFallsBackToFullScan(t *testing.T) {
	t.Parallel()

	store := &fakeVectorStore{hits: []rag.SearchResult{hit("a", 0.9)}}
	idx := newTestIndex(t)

	builder, err := pool.NewBuilder(idx, pool.Config{})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	r, err := New(store, idx, &fakeEmbedder{}, builder)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	// No pool, no transcript to prefilter against: the full-scan tier must
	// still answer from the unrestricted partition.
	results, err := r.Search(context.Background(), "notebook", Options{
		TopK:       3,
		SourceType: rag.SourceProduct,
		ContextID:  "vid-unknown",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected full-scan results")
	}
	if store.lastFilter == nil || len(store.lastFilter.DocumentSourceIDs) != 0 {
		t.Fatalf("full scan must not restrict candidate ids: %+v", store.lastFilter)
	}
}
