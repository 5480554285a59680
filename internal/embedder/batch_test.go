package embedder

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// countingEmbedder records the batch sizes it receives.
type countingEmbedder struct {
	batches []int
	err     error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.batches = append(c.batches, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestBatched_SplitsRequests(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{}
	b := NewBatched(inner, 4)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	vectors, err := b.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 10 {
		t.Fatalf("vectors = %d, want 10", len(vectors))
	}
	want := []int{4, 4, 2}
	if len(inner.batches) != len(want) {
		t.Fatalf("batches = %v, want %v", inner.batches, want)
	}
	for i, n := range want {
		if inner.batches[i] != n {
			t.Fatalf("batch %d size = %d, want %d", i, inner.batches[i], n)
		}
	}
}

func TestBatched_WrapsUpstreamError(t *testing.T) {
	t.Parallel()

	b := NewBatched(&countingEmbedder{err: errors.New("boom")}, 4)
	_, err := b.Embed(context.Background(), []string{"a"})

	var uerr *rag.UpstreamServiceError
	if !errors.As(err, &uerr) {
		t.Fatalf("error type = %T, want *rag.UpstreamServiceError", err)
	}
	if uerr.Service != "embedder" {
		t.Fatalf("service = %q, want embedder", uerr.Service)
	}
}

func TestBatched_Empty(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{}
	b := NewBatched(inner, 4)
	vectors, err := b.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 0 || len(inner.batches) != 0 {
		t.Fatalf("expected no requests for empty input, got %v", inner.batches)
	}
}
