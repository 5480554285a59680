// Package rag defines the data model and service interfaces for the
// retrieval-augmented reply pipeline: source documents and chunks, vector
// storage, lexical indexing, and embedding. Concrete implementations
// (Qdrant, SQLite, HTTP embedders) satisfy these interfaces so the answer
// layer never depends on a specific backend.
package rag

import (
	"context"
	"time"
)

// SourceType discriminates the three content pools the pipeline retrieves from.
type SourceType string

const (
	// SourceComment is a prior viewer comment (and its reply, if any).
	SourceComment SourceType = "comment"
	// SourceTranscript is a video transcript segment.
	SourceTranscript SourceType = "transcript"
	// SourceProduct is a catalog product description.
	SourceProduct SourceType = "product"
)

// Valid reports whether t is one of the known source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceComment, SourceTranscript, SourceProduct:
		return true
	}
	return false
}

// SourceDocument is an ingested unit of content. It owns one or more Chunks.
// Re-ingesting the same (SourceType, SourceID) pair replaces the document and
// all of its chunks — never a partial patch.
type SourceDocument struct {
	// ID is the internal document identifier.
	ID string

	// SourceType identifies which content pool the document belongs to.
	SourceType SourceType

	// SourceID is the external natural key (YouTube comment ID, video ID,
	// product SKU).
	SourceID string

	// Metadata is the type-specific metadata variant for this document.
	Metadata Metadata

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time
}

// Chunk is a bounded, ordered segment of a SourceDocument. Chunk ordering is
// stable within a document: Index is 0-based and contiguous.
type Chunk struct {
	// ID is the chunk identifier, also used as the vector point ID.
	ID string

	// DocumentID is the owning SourceDocument ID.
	DocumentID string

	// Index is the 0-based position of this chunk within its document.
	Index int

	// Text is the normalized chunk text.
	Text string

	// Metadata is a snapshot of the owning document's metadata.
	Metadata Metadata

	// Embedding is the dense vector for Text. Nil until computed; the
	// dimensionality is fixed per deployment.
	Embedding []float32
}

// SearchResult is an ephemeral, scored retrieval hit.
type SearchResult struct {
	// ChunkID identifies the matched chunk.
	ChunkID string

	// DocumentID is the owning document.
	DocumentID string

	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int

	// Text is the chunk text.
	Text string

	// Metadata is the chunk's metadata snapshot.
	Metadata Metadata

	// Score is the combined relevance score. For hybrid results this is
	// vectorScore·vectorWeight + keywordScore·keywordWeight.
	Score float64

	// SourceType is the content pool the chunk came from.
	SourceType SourceType

	// SourceID is the external natural key of the owning document.
	SourceID string
}

// RelevancePoolEntry is one precomputed candidate in a context's relevance
// pool. Pools are capped per context and eventually consistent with the
// catalog — they are recomputed only on demand.
type RelevancePoolEntry struct {
	// ContextID identifies the context (video) the pool belongs to.
	ContextID string

	// CandidateID is the product document SourceID.
	CandidateID string

	// RelevanceScore is the prefilter score in [0,1].
	RelevanceScore float64

	// MatchedBrand is true when the candidate matched a context brand tag.
	MatchedBrand bool

	// MatchedCategory is true when the candidate's category matched exactly.
	MatchedCategory bool

	// MatchedPriceRange is true when the candidate's price band intersected
	// the context's price range.
	MatchedPriceRange bool
}

// Candidate is one recommendable item in a generation-time candidate pool.
// The answer generator and output validator treat any ID or URL outside the
// pool as invalid.
type Candidate struct {
	// ID is the product SourceID.
	ID string

	// CanonicalURL is the only URL allowed to appear for this product in a
	// generated reply.
	CanonicalURL string

	// DisplayName is the product name shown to the generator.
	DisplayName string

	// Price is the product price. Zero means unknown.
	Price float64
}

// CandidatePool is the ordered, request-scoped allow-list of recommendable
// items for one generation call.
type CandidatePool []Candidate

// Lookup returns the candidate with the given ID, or false if the ID is not
// in the pool.
func (p CandidatePool) Lookup(id string) (Candidate, bool) {
	for _, c := range p {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// URLs returns the canonical URLs of every candidate in the pool.
func (p CandidatePool) URLs() []string {
	urls := make([]string, 0, len(p))
	for _, c := range p {
		urls = append(urls, c.CanonicalURL)
	}
	return urls
}

// VectorFilter narrows a vector or keyword query to a subset of the chunk
// universe. Zero-value fields are ignored.
type VectorFilter struct {
	// SourceType restricts results to one content pool.
	SourceType SourceType

	// ContextID restricts results to chunks tagged with this context (video).
	ContextID string

	// DocumentSourceIDs restricts results to chunks whose owning document
	// SourceID is in this set. Used to scope search to a relevance pool.
	DocumentSourceIDs []string
}

// VectorStore persists chunk embeddings and answers similarity queries.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// UpsertChunks stores or updates a batch of chunks. Every chunk must have
	// its embedding populated; upserts are idempotent per chunk ID.
	UpsertChunks(ctx context.Context, chunks []Chunk) error

	// Search returns up to topK nearest chunks for the query embedding,
	// scored by cosine similarity clamped to [0,1], optionally narrowed by
	// filter.
	Search(ctx context.Context, queryEmbedding []float32, topK int, filter *VectorFilter) ([]SearchResult, error)

	// DeleteByDocument removes all points belonging to the given document IDs.
	DeleteByDocument(ctx context.Context, documentIDs []string) error

	// Close releases any resources held by the store.
	Close() error
}

// ChunkIndex is the relational half of the document store: document and chunk
// CRUD keyed by (SourceType, SourceID), lexical ranked search, and relevance
// pool persistence. Implementations must be safe for concurrent use.
type ChunkIndex interface {
	// ReplaceDocument deletes any existing document with the same
	// (SourceType, SourceID) and inserts doc with its chunks atomically.
	ReplaceDocument(ctx context.Context, doc SourceDocument, chunks []Chunk) error

	// GetDocument returns the document for the given natural key.
	// Returns a NotFoundError when no such document exists.
	GetDocument(ctx context.Context, sourceType SourceType, sourceID string) (SourceDocument, error)

	// DeleteDocument removes the document and its chunks. Deleting a missing
	// document is a no-op.
	DeleteDocument(ctx context.Context, sourceType SourceType, sourceID string) error

	// ListChunks returns every stored chunk of the given source type, in
	// (documentID, index) order. Used by the re-embedding batch job.
	ListChunks(ctx context.Context, sourceType SourceType) ([]Chunk, error)

	// ListProductDocuments returns every product document. This is the
	// candidate universe scanned by the relevance pool builder.
	ListProductDocuments(ctx context.Context) ([]SourceDocument, error)

	// ListContextIDs returns the source IDs of every indexed transcript,
	// the context universe for a full pool recompute.
	ListContextIDs(ctx context.Context) ([]string, error)

	// KeywordSearch runs a lexical ranked query and returns up to topK
	// results with scores normalized to [0,1], optionally narrowed by filter.
	KeywordSearch(ctx context.Context, query string, topK int, filter *VectorFilter) ([]SearchResult, error)

	// ReplacePool replaces the relevance pool for the context with the given
	// entries (delete-then-insert). An empty slice clears the pool.
	ReplacePool(ctx context.Context, contextID string, entries []RelevancePoolEntry) error

	// GetPool returns the relevance pool for the context ordered by
	// descending score, or an empty slice when no pool exists.
	GetPool(ctx context.Context, contextID string) ([]RelevancePoolEntry, error)

	// Close releases the underlying database handle.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
