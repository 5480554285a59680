package history

import (
	"context"
	"fmt"
	"testing"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_History_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Append(ctx, Entry{
		VideoID:    "vid1",
		Comment:    "งบ 20,000 เอาตัวไหนดีครับ",
		ReplyText:  "แนะนำ Acer Aspire 5 ครับ",
		ProductIDs: []string{"sku-a"},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := s.Recent(ctx, "vid1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.VideoID != "vid1" || got.Comment != "งบ 20,000 เอาตัวไหนดีครับ" {
		t.Errorf("entry: want vid1 with original comment, got %+v", got)
	}
	if len(got.ProductIDs) != 1 || got.ProductIDs[0] != "sku-a" {
		t.Errorf("product ids: want [sku-a], got %v", got.ProductIDs)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created at: want non-zero timestamp")
	}
}

func Test_History_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for i := range 6 {
		e := Entry{VideoID: "vid2", Comment: fmt.Sprintf("comment %d", i), ReplyText: "reply"}
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := s.Recent(ctx, "vid2", 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("want 4 entries, got %d", len(entries))
	}
}

func Test_History_VideoIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, Entry{VideoID: "vidX", Comment: "from x", ReplyText: "r"}); err != nil {
		t.Fatalf("append x: %v", err)
	}
	if err := s.Append(ctx, Entry{VideoID: "vidY", Comment: "from y", ReplyText: "r"}); err != nil {
		t.Fatalf("append y: %v", err)
	}

	entriesX, err := s.Recent(ctx, "vidX", 10)
	if err != nil {
		t.Fatalf("recent x: %v", err)
	}
	entriesY, err := s.Recent(ctx, "vidY", 10)
	if err != nil {
		t.Fatalf("recent y: %v", err)
	}

	if len(entriesX) != 1 || entriesX[0].Comment != "from x" {
		t.Errorf("video x isolation failed: got %v", entriesX)
	}
	if len(entriesY) != 1 || entriesY[0].Comment != "from y" {
		t.Errorf("video y isolation failed: got %v", entriesY)
	}
}

func Test_History_EmptyVideoReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	entries, err := s.Recent(ctx, "vid-empty", 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("want 0 entries, got %d", len(entries))
	}
}

func Test_History_OldestFirstOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	comments := []string{"first", "second", "third"}
	for _, c := range comments {
		if err := s.Append(ctx, Entry{VideoID: "vid-order", Comment: c, ReplyText: "r"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := s.Recent(ctx, "vid-order", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	for i, want := range comments {
		if entries[i].Comment != want {
			t.Errorf("entry[%d]: want %q, got %q", i, want, entries[i].Comment)
		}
	}
}

func Test_History_EmptyProductIDsRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, Entry{VideoID: "vid3", Comment: "สเปคเป็นไงบ้าง", ReplyText: "ตอบสเปคล้วน ไม่แนะนำสินค้า"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := s.Recent(ctx, "vid3", 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	if len(entries[0].ProductIDs) != 0 {
		t.Errorf("product ids: want empty, got %v", entries[0].ProductIDs)
	}
}
