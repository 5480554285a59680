// Package registry lazily constructs and caches the shared backend handles
// the CLI commands and the HTTP server both need: the SQLite chunk index,
// the Qdrant vector store, the batched embedder, the chat model, and the
// pipeline stages composed from them.
//
// Construction is deferred to first use so a command that only touches the
// index never pays for a Qdrant connection or an LLM client. Handles are
// cached until Free, which closes everything; the next accessor call after
// Free rebuilds from the then-current environment.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/chaiyo-labs/replyrag-go/internal/answer"
	"github.com/chaiyo-labs/replyrag-go/internal/embedder"
	"github.com/chaiyo-labs/replyrag-go/internal/history"
	"github.com/chaiyo-labs/replyrag-go/internal/index"
	"github.com/chaiyo-labs/replyrag-go/internal/ingestion"
	"github.com/chaiyo-labs/replyrag-go/internal/intent"
	"github.com/chaiyo-labs/replyrag-go/internal/pool"
	"github.com/chaiyo-labs/replyrag-go/internal/provider"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
	"github.com/chaiyo-labs/replyrag-go/internal/retriever"
)

// defaultCollection is the Qdrant collection used when QDRANT_COLLECTION is
// not set.
const defaultCollection = "replyrag-chunks"

// Registry owns the shared handles. Safe for concurrent use.
type Registry struct {
	mu sync.Mutex

	idx       *index.SQLiteIndex
	store     *rag.QdrantStore
	embed     rag.Embedder
	chatModel model.BaseChatModel
	hist      *history.SQLiteStore

	pools     *pool.Builder
	pipeline  *ingestion.Pipeline
	retriever *retriever.Retriever
	service   *answer.Service
}

// New constructs an empty Registry. Nothing is connected until the first
// accessor call.
func New() *Registry {
	return &Registry{}
}

// Index returns the shared SQLite chunk index, opening it on first use.
// REPLYRAG_INDEX_DB overrides the default path (~/.replyrag/index.db).
func (r *Registry) Index(ctx context.Context) (*index.SQLiteIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexLocked()
}

func (r *Registry) indexLocked() (*index.SQLiteIndex, error) {
	if r.idx != nil {
		return r.idx, nil
	}

	path := os.Getenv("REPLYRAG_INDEX_DB")
	if path == "" {
		var err error
		path, err = index.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("registry: resolve index path: %w", err)
		}
	}

	idx, err := index.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: open index: %w", err)
	}
	r.idx = idx
	return r.idx, nil
}

// Store returns the shared Qdrant vector store, connecting on first use.
// The collection is created if missing, sized to the embedder backend's
// vector dimensions.
func (r *Registry) Store(ctx context.Context) (*rag.QdrantStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storeLocked(ctx)
}

func (r *Registry) storeLocked(ctx context.Context) (*rag.QdrantStore, error) {
	if r.store != nil {
		return r.store, nil
	}

	backend := os.Getenv("EMBEDDING_PROVIDER")
	if backend == "" {
		backend = os.Getenv("MODEL_PROVIDER")
	}

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Port:       envInt("QDRANT_PORT", 0),
		Collection: envOrDefault("QDRANT_COLLECTION", defaultCollection),
		VectorSize: uint64(embedder.DefaultDimensions(backend)),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     envBool("QDRANT_TLS"),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect qdrant: %w", err)
	}
	r.store = store
	return r.store, nil
}

// Embedder returns the shared batched embedder, building it on first use
// from the EMBEDDING_* environment.
func (r *Registry) Embedder(ctx context.Context) (rag.Embedder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.embedderLocked()
}

func (r *Registry) embedderLocked() (rag.Embedder, error) {
	if r.embed != nil {
		return r.embed, nil
	}
	e, err := embedder.NewBatchedFromEnv()
	if err != nil {
		return nil, fmt.Errorf("registry: build embedder: %w", err)
	}
	r.embed = e
	return r.embed, nil
}

// ChatModel returns the shared chat model, building it on first use from the
// MODEL_PROVIDER environment.
func (r *Registry) ChatModel(ctx context.Context) (model.BaseChatModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chatModelLocked(ctx)
}

func (r *Registry) chatModelLocked(ctx context.Context) (model.BaseChatModel, error) {
	if r.chatModel != nil {
		return r.chatModel, nil
	}
	m, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: build chat model: %w", err)
	}
	r.chatModel = m
	return r.chatModel, nil
}

// History returns the shared reply history store, opening it on first use.
// REPLYRAG_HISTORY_DB overrides the default path (~/.replyrag/history.db);
// "off" disables history, and History then returns (nil, nil).
func (r *Registry) History(ctx context.Context) (*history.SQLiteStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.historyLocked()
}

func (r *Registry) historyLocked() (*history.SQLiteStore, error) {
	if r.hist != nil {
		return r.hist, nil
	}

	path := os.Getenv("REPLYRAG_HISTORY_DB")
	if path == "off" {
		return nil, nil
	}
	if path == "" {
		var err error
		path, err = history.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("registry: resolve history path: %w", err)
		}
	}

	h, err := history.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: open history: %w", err)
	}
	r.hist = h
	return r.hist, nil
}

// Pools returns the shared relevance pool builder.
// POOL_MIN_SCORE and POOL_MAX_SIZE tune it.
func (r *Registry) Pools(ctx context.Context) (*pool.Builder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolsLocked()
}

func (r *Registry) poolsLocked() (*pool.Builder, error) {
	if r.pools != nil {
		return r.pools, nil
	}
	idx, err := r.indexLocked()
	if err != nil {
		return nil, err
	}
	b, err := pool.NewBuilder(idx, pool.Config{
		MinScore:    envFloat("POOL_MIN_SCORE", 0),
		MaxPoolSize: envInt("POOL_MAX_SIZE", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: build pool builder: %w", err)
	}
	r.pools = b
	return r.pools, nil
}

// Pipeline returns the shared ingestion pipeline.
func (r *Registry) Pipeline(ctx context.Context) (*ingestion.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pipeline != nil {
		return r.pipeline, nil
	}
	embed, err := r.embedderLocked()
	if err != nil {
		return nil, err
	}
	store, err := r.storeLocked(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := r.indexLocked()
	if err != nil {
		return nil, err
	}
	p, err := ingestion.NewPipeline(embed, store, idx)
	if err != nil {
		return nil, fmt.Errorf("registry: build pipeline: %w", err)
	}
	r.pipeline = p
	return r.pipeline, nil
}

// Retriever returns the shared hybrid retriever.
func (r *Registry) Retriever(ctx context.Context) (*retriever.Retriever, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retrieverLocked(ctx)
}

func (r *Registry) retrieverLocked(ctx context.Context) (*retriever.Retriever, error) {
	if r.retriever != nil {
		return r.retriever, nil
	}
	store, err := r.storeLocked(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := r.indexLocked()
	if err != nil {
		return nil, err
	}
	embed, err := r.embedderLocked()
	if err != nil {
		return nil, err
	}
	pools, err := r.poolsLocked()
	if err != nil {
		return nil, err
	}
	ret, err := retriever.New(store, idx, embed, pools)
	if err != nil {
		return nil, fmt.Errorf("registry: build retriever: %w", err)
	}
	r.retriever = ret
	return r.retriever, nil
}

// Service returns the shared answer service: the fully wired query pipeline
// from comment to validated reply. The intent extractor's brand list is
// learned from the indexed catalog.
func (r *Registry) Service(ctx context.Context) (*answer.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.service != nil {
		return r.service, nil
	}

	idx, err := r.indexLocked()
	if err != nil {
		return nil, err
	}
	ret, err := r.retrieverLocked(ctx)
	if err != nil {
		return nil, err
	}
	pools, err := r.poolsLocked()
	if err != nil {
		return nil, err
	}

	chatModel, err := r.chatModelLocked(ctx)
	if err != nil {
		return nil, err
	}

	gen, err := answer.NewGenerator(chatModel, answer.Options{
		Instructions: os.Getenv("ANSWER_INSTRUCTIONS"),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: build generator: %w", err)
	}

	brands, err := catalogBrands(ctx, idx)
	if err != nil {
		return nil, err
	}

	svc, err := answer.NewService(intent.NewExtractor(brands), pools, ret, gen, answer.ServiceOptions{
		TopK:     envInt("RETRIEVAL_TOP_K", 0),
		MinScore: envFloat("RETRIEVAL_MIN_SCORE", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: build answer service: %w", err)
	}

	hist, err := r.historyLocked()
	if err != nil {
		return nil, err
	}
	if hist != nil {
		svc.SetHistory(hist)
	}

	r.service = svc
	return r.service, nil
}

// Free closes every open handle and clears the cache. Safe to call on an
// empty registry; accessor calls after Free rebuild from the environment.
func (r *Registry) Free() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("registry: close qdrant: %w", err))
		}
	}
	if r.idx != nil {
		if err := r.idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("registry: close index: %w", err))
		}
	}
	if r.hist != nil {
		if err := r.hist.Close(); err != nil {
			errs = append(errs, fmt.Errorf("registry: close history: %w", err))
		}
	}

	r.idx = nil
	r.store = nil
	r.hist = nil
	r.embed = nil
	r.chatModel = nil
	r.pools = nil
	r.pipeline = nil
	r.retriever = nil
	r.service = nil

	return errors.Join(errs...)
}

// catalogBrands collects the distinct brand names present in the indexed
// product catalog, the vocabulary for intent brand detection.
func catalogBrands(ctx context.Context, idx rag.ChunkIndex) ([]string, error) {
	docs, err := idx.ListProductDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: list catalog brands: %w", err)
	}

	seen := make(map[string]bool)
	var brands []string
	for _, d := range docs {
		meta, ok := d.Metadata.(rag.ProductMetadata)
		if !ok || meta.Brand == "" {
			continue
		}
		key := strings.ToLower(meta.Brand)
		if seen[key] {
			continue
		}
		seen[key] = true
		brands = append(brands, meta.Brand)
	}
	return brands, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
