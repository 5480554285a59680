package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/chaiyo-labs/replyrag-go/internal/history"
	"github.com/chaiyo-labs/replyrag-go/internal/index"
	"github.com/chaiyo-labs/replyrag-go/internal/intent"
	"github.com/chaiyo-labs/replyrag-go/internal/pool"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
	"github.com/chaiyo-labs/replyrag-go/internal/retriever"
)

// svcEmbedder returns a constant vector; queries only exercise the keyword
// side deterministically, vector hits come from svcVectorStore.
type svcEmbedder struct{}

func (svcEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type svcVectorStore struct {
	hits []rag.SearchResult
}

func (s *svcVectorStore) UpsertChunks(ctx context.Context, chunks []rag.Chunk) error { return nil }

func (s *svcVectorStore) Search(ctx context.Context, queryEmbedding []float32, topK int, filter *rag.VectorFilter) ([]rag.SearchResult, error) {
	if filter != nil && filter.SourceType != rag.SourceProduct {
		return nil, nil
	}
	return s.hits, nil
}

func (s *svcVectorStore) DeleteByDocument(ctx context.Context, documentIDs []string) error {
	return nil
}

func (s *svcVectorStore) Close() error { return nil }

func productHitFor(id string, score, price float64) rag.SearchResult {
	return rag.SearchResult{
		ChunkID:    id + "-chunk",
		DocumentID: "product:" + id,
		SourceType: rag.SourceProduct,
		SourceID:   id,
		Score:      score,
		Metadata:   rag.ProductMetadata{Price: price, Recommendable: true},
	}
}

func newTestService(t *testing.T, chat *fakeChatModel, hits []rag.SearchResult) (*Service, *index.SQLiteIndex) {
	t.Helper()

	idx, err := index.Open(":memory:")
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	pools, err := pool.NewBuilder(idx, pool.Config{})
	if err != nil {
		t.Fatalf("new pool builder: %v", err)
	}
	ret, err := retriever.New(&svcVectorStore{hits: hits}, idx, svcEmbedder{}, pools)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}
	gen, err := NewGenerator(chat, Options{})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	svc, err := NewService(intent.NewExtractor([]string{"Acer"}), pools, ret, gen, ServiceOptions{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, idx
}

func seedVideo(t *testing.T, idx *index.SQLiteIndex, pools bool) {
	t.Helper()
	ctx := context.Background()

	transcript := rag.SourceDocument{
		ID:         "transcript:vid1",
		SourceType: rag.SourceTranscript,
		SourceID:   "vid1",
		Metadata: rag.TranscriptMetadata{
			VideoID:      "vid1",
			CategoryTags: []string{"notebook"},
			PriceMin:     12000,
			PriceMax:     18000,
		},
	}
	if err := idx.ReplaceDocument(ctx, transcript, []rag.Chunk{{
		ID: "t1", DocumentID: "transcript:vid1", Index: 0,
		Text: "รีวิวโน้ตบุ๊คงบหมื่นห้า", Metadata: transcript.Metadata,
	}}); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	product := rag.SourceDocument{
		ID:         "product:sku-a",
		SourceType: rag.SourceProduct,
		SourceID:   "sku-a",
		Metadata: rag.ProductMetadata{
			Brand: "Acer", Category: "notebook", Price: 15000,
			Tags:         []string{"notebook"},
			CanonicalURL: "https://shop.example/a",
			DisplayName:  "Acer Aspire", Recommendable: true,
		},
	}
	if err := idx.ReplaceDocument(ctx, product, []rag.Chunk{{
		ID: "p1", DocumentID: "product:sku-a", Index: 0,
		Text: "Acer Aspire notebook 15000 บาท", Metadata: product.Metadata,
	}}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	if pools {
		b, err := pool.NewBuilder(idx, pool.Config{})
		if err != nil {
			t.Fatalf("new pool builder: %v", err)
		}
		if _, err := b.Build(ctx, "vid1", true); err != nil {
			t.Fatalf("seed pool: %v", err)
		}
	}
}

func Test_Answer_EndToEnd(t *testing.T) {
	t.Parallel()

	chat := &fakeChatModel{content: `{"replyText":"แนะนำ Acer Aspire ครับ https://shop.example/a","products":[{"id":"sku-a","url":"https://shop.example/a"}]}`}
	hits := []rag.SearchResult{productHitFor("sku-a", 0.9, 15000)}
	svc, idx := newTestService(t, chat, hits)
	seedVideo(t, idx, true)

	resp, err := svc.Answer(context.Background(), Request{
		Comment: "อยากได้ notebook acer ราคา 15000",
		VideoID: "vid1",
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}

	if resp.Candidates != 1 {
		t.Fatalf("candidates = %d, want 1", resp.Candidates)
	}
	if !resp.Intent.HasPrice() || resp.Intent.Price != 15000 {
		t.Fatalf("intent price = %v, want 15000", resp.Intent.Price)
	}
	if len(resp.Reply.Products) != 1 || resp.Reply.Products[0].ID != "sku-a" {
		t.Fatalf("reply products = %+v", resp.Reply.Products)
	}
	if resp.Reply.Products[0].URL != "https://shop.example/a" {
		t.Fatalf("url = %q, want canonical", resp.Reply.Products[0].URL)
	}
}

func Test_Answer_EmptyComment(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, &fakeChatModel{content: "{}"}, nil)
	_, err := svc.Answer(context.Background(), Request{Comment: "   "})
	if err == nil {
		t.Fatal("expected validation error for empty comment")
	}
}

func Test_Answer_NoPoolMeansNoRecommendations(t *testing.T) {
	t.Parallel()

	// Model hallucinates a product, but the video has no stored pool.
	chat := &fakeChatModel{content: `{"replyText":"ลองดู https://shop.example/a","products":[{"id":"sku-a"}]}`}
	hits := []rag.SearchResult{productHitFor("sku-a", 0.9, 15000)}
	svc, idx := newTestService(t, chat, hits)
	seedVideo(t, idx, false)

	resp, err := svc.Answer(context.Background(), Request{
		Comment: "รุ่นไหนดีครับ",
		VideoID: "vid1",
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Candidates != 0 {
		t.Fatalf("candidates = %d, want 0", resp.Candidates)
	}
	if len(resp.Reply.Products) != 0 {
		t.Fatalf("products = %+v, want none without a pool", resp.Reply.Products)
	}
	if strings.Contains(resp.Reply.ReplyText, "http") {
		t.Fatalf("unverified link survived: %q", resp.Reply.ReplyText)
	}
}

func Test_Answer_RecordsHistory(t *testing.T) {
	t.Parallel()

	chat := &fakeChatModel{content: `{"replyText":"แนะนำ Acer Aspire ครับ https://shop.example/a","products":[{"id":"sku-a","url":"https://shop.example/a"}]}`}
	hits := []rag.SearchResult{productHitFor("sku-a", 0.9, 15000)}
	svc, idx := newTestService(t, chat, hits)
	seedVideo(t, idx, true)

	hist, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { hist.Close() })
	svc.SetHistory(hist)

	ctx := context.Background()
	if _, err := svc.Answer(ctx, Request{Comment: "notebook acer 15000", VideoID: "vid1"}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	entries, err := hist.Recent(ctx, "vid1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
	if entries[0].Comment != "notebook acer 15000" {
		t.Fatalf("history comment = %q", entries[0].Comment)
	}
	if len(entries[0].ProductIDs) != 1 || entries[0].ProductIDs[0] != "sku-a" {
		t.Fatalf("history product ids = %v", entries[0].ProductIDs)
	}
}

func Test_Answer_RawTextModelOutput(t *testing.T) {
	t.Parallel()

	chat := &fakeChatModel{content: "ขอโทษครับ ยังไม่แน่ใจเลย"}
	svc, idx := newTestService(t, chat, nil)
	seedVideo(t, idx, true)

	resp, err := svc.Answer(context.Background(), Request{Comment: "สเปคไหนดี", VideoID: "vid1"})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if resp.Reply.ReplyText != "ขอโทษครับ ยังไม่แน่ใจเลย" {
		t.Fatalf("replyText = %q", resp.Reply.ReplyText)
	}
}
