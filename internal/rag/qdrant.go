package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Qdrant payload field names. Filterable attributes are stored as flat
// payload keys; the metadata variant is stored as a JSON string alongside.
const (
	payloadText       = "text"
	payloadDocumentID = "document_id"
	payloadChunkIndex = "chunk_index"
	payloadSourceType = "source_type"
	payloadSourceID   = "source_id"
	payloadContextID  = "context_id"
	payloadMetadata   = "metadata"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. Fixed per deployment.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// UpsertChunks stores or updates a batch of chunks with their embeddings.
// Every chunk must have its embedding pre-computed; upserts are idempotent
// per chunk ID.
func (s *QdrantStore) UpsertChunks(ctx context.Context, chunks []Chunk) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("qdrant: chunk %s has no embedding", c.ID)
		}

		meta, err := MarshalMetadata(c.Metadata)
		if err != nil {
			return err
		}

		payload := map[string]any{
			payloadText:       c.Text,
			payloadDocumentID: c.DocumentID,
			payloadChunkIndex: int64(c.Index),
			payloadSourceID:   sourceIDOf(c),
			payloadMetadata:   string(meta),
		}
		if c.Metadata != nil {
			payload[payloadSourceType] = string(c.Metadata.SourceType())
		}
		if contextID := ContextIDOf(c.Metadata); contextID != "" {
			payload[payloadContextID] = contextID
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search, optionally narrowed by filter,
// and returns up to topK results. Similarity scores are clamped to [0,1].
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int, filter *VectorFilter) ([]SearchResult, error) {
	limit := uint64(topK) //nolint:gosec // topK is validated by callers

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		r, err := resultFromPoint(p)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	return results, nil
}

// DeleteByDocument removes all points whose document_id payload matches one
// of the given document IDs.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords(payloadDocumentID, documentIDs...),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// Ping calls the Qdrant HealthCheck RPC. Used by readiness probes.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// buildFilter converts a VectorFilter into a Qdrant payload filter.
// Returns nil for a nil or empty filter (unrestricted scan).
func buildFilter(f *VectorFilter) *qdrant.Filter {
	if f == nil {
		return nil
	}

	var must []*qdrant.Condition
	if f.SourceType != "" {
		must = append(must, qdrant.NewMatch(payloadSourceType, string(f.SourceType)))
	}
	if f.ContextID != "" {
		must = append(must, qdrant.NewMatch(payloadContextID, f.ContextID))
	}
	if len(f.DocumentSourceIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords(payloadSourceID, f.DocumentSourceIDs...))
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// resultFromPoint converts a scored Qdrant point into a SearchResult.
func resultFromPoint(p *qdrant.ScoredPoint) (SearchResult, error) {
	r := SearchResult{
		ChunkID: p.Id.GetUuid(),
		Score:   clamp01(float64(p.Score)),
	}

	payload := p.Payload
	if payload == nil {
		return r, nil
	}

	if v, ok := payload[payloadText]; ok {
		r.Text = v.GetStringValue()
	}
	if v, ok := payload[payloadDocumentID]; ok {
		r.DocumentID = v.GetStringValue()
	}
	if v, ok := payload[payloadChunkIndex]; ok {
		r.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload[payloadSourceID]; ok {
		r.SourceID = v.GetStringValue()
	}
	if v, ok := payload[payloadSourceType]; ok {
		r.SourceType = SourceType(v.GetStringValue())
	}
	if v, ok := payload[payloadMetadata]; ok && r.SourceType != "" {
		meta, err := UnmarshalMetadata(r.SourceType, []byte(v.GetStringValue()))
		if err != nil {
			return r, err
		}
		r.Metadata = meta
	}

	return r, nil
}

// sourceIDOf extracts the owning document SourceID snapshot stored on the
// chunk. Chunk IDs are derived from (sourceType, sourceID, index) at ingest
// time, so the ingestion pipeline sets this via the chunk's document linkage.
func sourceIDOf(c Chunk) string {
	// DocumentID is "<sourceType>:<sourceID>" as assigned by the ingestion
	// pipeline; the raw source ID is everything after the first colon.
	for i := 0; i < len(c.DocumentID); i++ {
		if c.DocumentID[i] == ':' {
			return c.DocumentID[i+1:]
		}
	}
	return c.DocumentID
}

// clamp01 clamps v into the [0,1] interval. Qdrant cosine scores can drift
// marginally outside the interval with quantized vectors.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
