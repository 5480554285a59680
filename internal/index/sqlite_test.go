package index

import (
	"context"
	"testing"

	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// openTestIndex opens an in-memory SQLiteIndex for use in tests.
func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory index: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedTranscript stores a one-chunk transcript document for videoID.
func seedTranscript(t *testing.T, s *SQLiteIndex, videoID, text string) {
	t.Helper()
	doc := rag.SourceDocument{
		ID:         "transcript:" + videoID,
		SourceType: rag.SourceTranscript,
		SourceID:   videoID,
		Metadata:   rag.TranscriptMetadata{VideoID: videoID},
	}
	chunk := rag.Chunk{ID: doc.ID + ":0", DocumentID: doc.ID, Index: 0, Text: text, Metadata: doc.Metadata}
	if err := s.ReplaceDocument(context.Background(), doc, []rag.Chunk{chunk}); err != nil {
		t.Fatalf("seed transcript %s: %v", videoID, err)
	}
}

// seedProduct stores a one-chunk product document for sku.
func seedProduct(t *testing.T, s *SQLiteIndex, sku, text string, meta rag.ProductMetadata) {
	t.Helper()
	doc := rag.SourceDocument{
		ID:         "product:" + sku,
		SourceType: rag.SourceProduct,
		SourceID:   sku,
		Metadata:   meta,
	}
	chunk := rag.Chunk{ID: doc.ID + ":0", DocumentID: doc.ID, Index: 0, Text: text, Metadata: meta}
	if err := s.ReplaceDocument(context.Background(), doc, []rag.Chunk{chunk}); err != nil {
		t.Fatalf("seed product %s: %v", sku, err)
	}
}

func Test_Index_ReplaceAndGetDocument(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	ctx := context.Background()

	meta := rag.ProductMetadata{Brand: "Acer", Price: 15000, CanonicalURL: "https://shop.example/a", Recommendable: true}
	seedProduct(t, s, "sku-a", "Acer Aspire notebook", meta)

	doc, err := s.GetDocument(ctx, rag.SourceProduct, "sku-a")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.ID != "product:sku-a" || doc.SourceID != "sku-a" {
		t.Fatalf("doc = %+v", doc)
	}
	got, ok := doc.Metadata.(rag.ProductMetadata)
	if !ok || got.Brand != "Acer" || got.Price != 15000 || !got.Recommendable {
		t.Fatalf("metadata round-trip = %+v", doc.Metadata)
	}
}

func Test_Index_GetDocumentNotFound(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)

	_, err := s.GetDocument(context.Background(), rag.SourceProduct, "missing")
	if !rag.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func Test_Index_ReplaceIsFullReplace(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	ctx := context.Background()

	seedTranscript(t, s, "vid1", "first version of the transcript")
	seedTranscript(t, s, "vid1", "second version entirely")

	chunks, err := s.ListChunks(ctx, rag.SourceTranscript)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "second version entirely" {
		t.Fatalf("chunks after replace = %+v", chunks)
	}

	// The FTS rows of the replaced version must be gone too.
	hits, err := s.KeywordSearch(ctx, "first version", 10, nil)
	if err != nil {
		t.Fatalf("keyword search: %v", err)
	}
	for _, h := range hits {
		if h.Text == "first version of the transcript" {
			t.Fatal("stale FTS row survived the replace")
		}
	}
}

func Test_Index_DeleteMissingIsNoop(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)

	if err := s.DeleteDocument(context.Background(), rag.SourceProduct, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func Test_Index_KeywordSearch_ThaiTrigram(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	ctx := context.Background()

	seedTranscript(t, s, "vid1", "รีวิวโน้ตบุ๊คสำหรับเล่นเกม งบหมื่นห้า")
	seedTranscript(t, s, "vid2", "รีวิวหูฟังไร้สายเสียงดี")

	hits, err := s.KeywordSearch(ctx, "โน้ตบุ๊ค", 10, nil)
	if err != nil {
		t.Fatalf("keyword search: %v", err)
	}
	if len(hits) != 1 || hits[0].SourceID != "vid1" {
		t.Fatalf("hits = %+v, want only vid1", hits)
	}
	if hits[0].Score <= 0 || hits[0].Score > 1 {
		t.Fatalf("score = %v, want within (0,1]", hits[0].Score)
	}
}

func Test_Index_KeywordSearch_Filters(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	ctx := context.Background()

	seedTranscript(t, s, "vid1", "notebook review for gaming")
	seedProduct(t, s, "sku-a", "gaming notebook with rtx", rag.ProductMetadata{Brand: "Acer"})
	seedProduct(t, s, "sku-b", "office notebook lightweight", rag.ProductMetadata{Brand: "Asus"})

	hits, err := s.KeywordSearch(ctx, "notebook", 10, &rag.VectorFilter{SourceType: rag.SourceProduct})
	if err != nil {
		t.Fatalf("filtered search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("product hits = %+v, want 2", hits)
	}
	for _, h := range hits {
		if h.SourceType != rag.SourceProduct {
			t.Fatalf("source type = %s, want product", h.SourceType)
		}
	}

	hits, err = s.KeywordSearch(ctx, "notebook", 10, &rag.VectorFilter{
		SourceType:        rag.SourceProduct,
		DocumentSourceIDs: []string{"sku-b"},
	})
	if err != nil {
		t.Fatalf("id-filtered search: %v", err)
	}
	if len(hits) != 1 || hits[0].SourceID != "sku-b" {
		t.Fatalf("id-filtered hits = %+v, want only sku-b", hits)
	}
}

func Test_Index_KeywordSearch_ContextFilter(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	ctx := context.Background()

	seedTranscript(t, s, "vid1", "talking about notebook battery life")
	seedTranscript(t, s, "vid2", "talking about notebook screens")

	hits, err := s.KeywordSearch(ctx, "notebook", 10, &rag.VectorFilter{ContextID: "vid2"})
	if err != nil {
		t.Fatalf("context search: %v", err)
	}
	if len(hits) != 1 || hits[0].SourceID != "vid2" {
		t.Fatalf("hits = %+v, want only vid2", hits)
	}
}

func Test_Index_KeywordSearch_ShortTokensDropped(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)

	// Tokens below trigram length cannot match; an all-short query is a no-op.
	hits, err := s.KeywordSearch(context.Background(), "a b ok", 10, nil)
	if err != nil {
		t.Fatalf("short-token search: %v", err)
	}
	if hits != nil {
		t.Fatalf("hits = %+v, want nil", hits)
	}
}

func Test_Index_Pools_ReplaceAndGet(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	ctx := context.Background()

	entries := []rag.RelevancePoolEntry{
		{CandidateID: "sku-low", RelevanceScore: 0.2},
		{CandidateID: "sku-high", RelevanceScore: 0.9, MatchedBrand: true, MatchedPriceRange: true},
	}
	if err := s.ReplacePool(ctx, "vid1", entries); err != nil {
		t.Fatalf("replace pool: %v", err)
	}

	got, err := s.GetPool(ctx, "vid1")
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if len(got) != 2 || got[0].CandidateID != "sku-high" || got[1].CandidateID != "sku-low" {
		t.Fatalf("pool order = %+v, want descending score", got)
	}
	if !got[0].MatchedBrand || !got[0].MatchedPriceRange || got[0].MatchedCategory {
		t.Fatalf("match flags = %+v", got[0])
	}

	// Replace with a smaller pool; the old entries must not survive.
	if err := s.ReplacePool(ctx, "vid1", entries[:1]); err != nil {
		t.Fatalf("shrink pool: %v", err)
	}
	got, err = s.GetPool(ctx, "vid1")
	if err != nil {
		t.Fatalf("get shrunk pool: %v", err)
	}
	if len(got) != 1 || got[0].CandidateID != "sku-low" {
		t.Fatalf("shrunk pool = %+v", got)
	}
}

func Test_Index_GetPool_MissingIsEmpty(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)

	got, err := s.GetPool(context.Background(), "vid-none")
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("pool = %+v, want empty", got)
	}
}

func Test_Index_ListContextIDs(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	ctx := context.Background()

	seedTranscript(t, s, "vid2", "second transcript")
	seedTranscript(t, s, "vid1", "first transcript")
	seedProduct(t, s, "sku-a", "a product", rag.ProductMetadata{})

	ids, err := s.ListContextIDs(ctx)
	if err != nil {
		t.Fatalf("list contexts: %v", err)
	}
	if len(ids) != 2 || ids[0] != "vid1" || ids[1] != "vid2" {
		t.Fatalf("context ids = %v, want [vid1 vid2]", ids)
	}
}

func Test_Index_ListProductDocuments(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)
	ctx := context.Background()

	seedProduct(t, s, "sku-a", "a product", rag.ProductMetadata{Brand: "Acer"})
	seedTranscript(t, s, "vid1", "a transcript")

	docs, err := s.ListProductDocuments(ctx)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(docs) != 1 || docs[0].SourceID != "sku-a" {
		t.Fatalf("products = %+v, want only sku-a", docs)
	}
}

func Test_Index_Ping(t *testing.T) {
	t.Parallel()
	s := openTestIndex(t)

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
