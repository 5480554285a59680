// Package index provides the SQLite-backed relational half of the document
// store: document and chunk CRUD keyed by (sourceType, sourceID), an FTS5
// lexical index for keyword search, and relevance pool persistence.
// Vector similarity lives in the Qdrant adapter; this package owns everything
// else the pipeline persists.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// SQLiteIndex is a rag.ChunkIndex backed by a local SQLite database.
type SQLiteIndex struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// compile-time interface check
var _ rag.ChunkIndex = (*SQLiteIndex)(nil)

// DefaultDBPath returns the default path for the chunk index database.
// It resolves to ~/.replyrag/index.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("index: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".replyrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("index: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "index.db"), nil
}

// Open opens (or creates) a SQLiteIndex at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteIndex, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteIndex{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteIndex) migrate() error {
	// The FTS table uses the trigram tokenizer: comment and transcript text is
	// largely Thai, which has no word boundaries for unicode61 to split on.
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT    PRIMARY KEY,
    source_type  TEXT    NOT NULL CHECK(source_type IN ('comment','transcript','product')),
    source_id    TEXT    NOT NULL,
    metadata     TEXT    NOT NULL DEFAULT '{}',
    created_at   INTEGER NOT NULL,  -- Unix timestamp (seconds)
    UNIQUE (source_type, source_id)
);
CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT    PRIMARY KEY,
    document_id  TEXT    NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    idx          INTEGER NOT NULL,
    text         TEXT    NOT NULL,
    source_type  TEXT    NOT NULL,
    context_id   TEXT    NOT NULL DEFAULT '',
    metadata     TEXT    NOT NULL DEFAULT '{}',
    UNIQUE (document_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_chunks_source_type ON chunks (source_type);
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    chunk_id UNINDEXED,
    text,
    tokenize='trigram'
);
CREATE TABLE IF NOT EXISTS relevance_pools (
    context_id           TEXT    NOT NULL,
    candidate_id         TEXT    NOT NULL,
    relevance_score      REAL    NOT NULL,
    matched_brand        INTEGER NOT NULL DEFAULT 0,
    matched_category     INTEGER NOT NULL DEFAULT 0,
    matched_price_range  INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (context_id, candidate_id)
);
CREATE INDEX IF NOT EXISTS idx_pools_context_score
    ON relevance_pools (context_id, relevance_score DESC);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("index: migrate: %w", err)
	}
	return nil
}

// ReplaceDocument deletes any existing document with the same
// (SourceType, SourceID) and inserts doc with its chunks in one transaction.
// Re-ingest is a full replace, never a partial patch.
func (s *SQLiteIndex) ReplaceDocument(ctx context.Context, doc rag.SourceDocument, chunks []rag.Chunk) error {
	meta, err := rag.MarshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := deleteDocumentTx(ctx, tx, doc.SourceType, doc.SourceID); err != nil {
		return err
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const insDoc = `INSERT INTO documents (id, source_type, source_id, metadata, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insDoc, doc.ID, string(doc.SourceType), doc.SourceID, string(meta), createdAt.Unix()); err != nil {
		return fmt.Errorf("index: insert document: %w", err)
	}

	const insChunk = `INSERT INTO chunks (id, document_id, idx, text, source_type, context_id, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)`
	const insFTS = `INSERT INTO chunks_fts (chunk_id, text) VALUES (?, ?)`
	contextID := rag.ContextIDOf(doc.Metadata)
	for _, c := range chunks {
		cMeta, err := rag.MarshalMetadata(c.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insChunk, c.ID, doc.ID, c.Index, c.Text, string(doc.SourceType), contextID, string(cMeta)); err != nil {
			return fmt.Errorf("index: insert chunk %d: %w", c.Index, err)
		}
		if _, err := tx.ExecContext(ctx, insFTS, c.ID, c.Text); err != nil {
			return fmt.Errorf("index: insert fts row %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	return nil
}

// deleteDocumentTx removes the document, its chunks, and its FTS rows within
// an open transaction. Missing documents are a no-op.
func deleteDocumentTx(ctx context.Context, tx *sql.Tx, sourceType rag.SourceType, sourceID string) error {
	const delFTS = `
DELETE FROM chunks_fts WHERE chunk_id IN (
    SELECT c.id FROM chunks c
    JOIN documents d ON d.id = c.document_id
    WHERE d.source_type = ? AND d.source_id = ?
)`
	if _, err := tx.ExecContext(ctx, delFTS, string(sourceType), sourceID); err != nil {
		return fmt.Errorf("index: delete fts rows: %w", err)
	}

	const delChunks = `
DELETE FROM chunks WHERE document_id IN (
    SELECT id FROM documents WHERE source_type = ? AND source_id = ?
)`
	if _, err := tx.ExecContext(ctx, delChunks, string(sourceType), sourceID); err != nil {
		return fmt.Errorf("index: delete chunks: %w", err)
	}

	const delDoc = `DELETE FROM documents WHERE source_type = ? AND source_id = ?`
	if _, err := tx.ExecContext(ctx, delDoc, string(sourceType), sourceID); err != nil {
		return fmt.Errorf("index: delete document: %w", err)
	}
	return nil
}

// GetDocument returns the document for the given natural key, or a not-found
// error when no such document exists.
func (s *SQLiteIndex) GetDocument(ctx context.Context, sourceType rag.SourceType, sourceID string) (rag.SourceDocument, error) {
	const q = `SELECT id, metadata, created_at FROM documents WHERE source_type = ? AND source_id = ?`

	var doc rag.SourceDocument
	var meta string
	var ts int64
	err := s.db.QueryRowContext(ctx, q, string(sourceType), sourceID).Scan(&doc.ID, &meta, &ts)
	if err == sql.ErrNoRows {
		return rag.SourceDocument{}, rag.NotFound("document", string(sourceType)+":"+sourceID)
	}
	if err != nil {
		return rag.SourceDocument{}, fmt.Errorf("index: get document: %w", err)
	}

	doc.SourceType = sourceType
	doc.SourceID = sourceID
	doc.CreatedAt = time.Unix(ts, 0)
	doc.Metadata, err = rag.UnmarshalMetadata(sourceType, []byte(meta))
	if err != nil {
		return rag.SourceDocument{}, err
	}
	return doc, nil
}

// DeleteDocument removes the document and its chunks. Deleting a missing
// document is a no-op.
func (s *SQLiteIndex) DeleteDocument(ctx context.Context, sourceType rag.SourceType, sourceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := deleteDocumentTx(ctx, tx, sourceType, sourceID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	return nil
}

// ListChunks returns every stored chunk of the given source type in
// (documentID, index) order. Embeddings are not stored here; the re-embedding
// job recomputes them from text.
func (s *SQLiteIndex) ListChunks(ctx context.Context, sourceType rag.SourceType) ([]rag.Chunk, error) {
	const q = `
SELECT id, document_id, idx, text, source_type, metadata
FROM   chunks
WHERE  source_type = ?
ORDER  BY document_id, idx`

	rows, err := s.db.QueryContext(ctx, q, string(sourceType))
	if err != nil {
		return nil, fmt.Errorf("index: list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []rag.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: list chunks rows: %w", err)
	}
	return chunks, nil
}

// KeywordSearch runs an FTS5 ranked query and returns up to topK results.
// BM25 ranks are mapped onto [0,1] with a saturating transform so they can be
// merged with cosine similarity scores.
func (s *SQLiteIndex) KeywordSearch(ctx context.Context, query string, topK int, filter *rag.VectorFilter) ([]rag.SearchResult, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	var sb strings.Builder
	args := []any{match}
	sb.WriteString(`
SELECT c.id, c.document_id, c.idx, c.text, c.source_type, c.metadata,
       d.source_id, bm25(chunks_fts) AS rank
FROM   chunks_fts
JOIN   chunks c    ON c.id = chunks_fts.chunk_id
JOIN   documents d ON d.id = c.document_id
WHERE  chunks_fts MATCH ?`)

	if filter != nil {
		if filter.SourceType != "" {
			sb.WriteString(" AND c.source_type = ?")
			args = append(args, string(filter.SourceType))
		}
		if filter.ContextID != "" {
			sb.WriteString(" AND c.context_id = ?")
			args = append(args, filter.ContextID)
		}
		if len(filter.DocumentSourceIDs) > 0 {
			sb.WriteString(" AND d.source_id IN (?" + strings.Repeat(",?", len(filter.DocumentSourceIDs)-1) + ")")
			for _, id := range filter.DocumentSourceIDs {
				args = append(args, id)
			}
		}
	}

	sb.WriteString(" ORDER BY rank LIMIT ?")
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("index: keyword search: %w", err)
	}
	defer rows.Close()

	var results []rag.SearchResult
	for rows.Next() {
		var r rag.SearchResult
		var srcType, meta string
		var rank float64
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.ChunkIndex, &r.Text, &srcType, &meta, &r.SourceID, &rank); err != nil {
			return nil, fmt.Errorf("index: keyword scan: %w", err)
		}
		r.SourceType = rag.SourceType(srcType)
		r.Metadata, err = rag.UnmarshalMetadata(r.SourceType, []byte(meta))
		if err != nil {
			return nil, err
		}
		r.Score = normalizeBM25(rank)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: keyword rows: %w", err)
	}
	return results, nil
}

// ReplacePool replaces the relevance pool for the context with the given
// entries in one transaction (delete-then-insert). Concurrent recomputes for
// the same context are last-writer-wins.
func (s *SQLiteIndex) ReplacePool(ctx context.Context, contextID string, entries []rag.RelevancePoolEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM relevance_pools WHERE context_id = ?`, contextID); err != nil {
		return fmt.Errorf("index: clear pool: %w", err)
	}

	const ins = `
INSERT INTO relevance_pools
    (context_id, candidate_id, relevance_score, matched_brand, matched_category, matched_price_range)
VALUES (?, ?, ?, ?, ?, ?)`
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, ins, contextID, e.CandidateID, e.RelevanceScore,
			boolInt(e.MatchedBrand), boolInt(e.MatchedCategory), boolInt(e.MatchedPriceRange)); err != nil {
			return fmt.Errorf("index: insert pool entry %s: %w", e.CandidateID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit pool: %w", err)
	}
	return nil
}

// GetPool returns the relevance pool for the context ordered by descending
// score. A context with no pool yields an empty slice, not an error.
func (s *SQLiteIndex) GetPool(ctx context.Context, contextID string) ([]rag.RelevancePoolEntry, error) {
	const q = `
SELECT candidate_id, relevance_score, matched_brand, matched_category, matched_price_range
FROM   relevance_pools
WHERE  context_id = ?
ORDER  BY relevance_score DESC, candidate_id`

	rows, err := s.db.QueryContext(ctx, q, contextID)
	if err != nil {
		return nil, fmt.Errorf("index: get pool: %w", err)
	}
	defer rows.Close()

	var entries []rag.RelevancePoolEntry
	for rows.Next() {
		e := rag.RelevancePoolEntry{ContextID: contextID}
		var brand, category, price int
		if err := rows.Scan(&e.CandidateID, &e.RelevanceScore, &brand, &category, &price); err != nil {
			return nil, fmt.Errorf("index: pool scan: %w", err)
		}
		e.MatchedBrand = brand != 0
		e.MatchedCategory = category != 0
		e.MatchedPriceRange = price != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: pool rows: %w", err)
	}
	return entries, nil
}

// ListProductDocuments returns every product document, used as the candidate
// universe by the relevance pool builder.
func (s *SQLiteIndex) ListProductDocuments(ctx context.Context) ([]rag.SourceDocument, error) {
	const q = `SELECT id, source_id, metadata, created_at FROM documents WHERE source_type = ? ORDER BY source_id`

	rows, err := s.db.QueryContext(ctx, q, string(rag.SourceProduct))
	if err != nil {
		return nil, fmt.Errorf("index: list products: %w", err)
	}
	defer rows.Close()

	var docs []rag.SourceDocument
	for rows.Next() {
		doc := rag.SourceDocument{SourceType: rag.SourceProduct}
		var meta string
		var ts int64
		if err := rows.Scan(&doc.ID, &doc.SourceID, &meta, &ts); err != nil {
			return nil, fmt.Errorf("index: product scan: %w", err)
		}
		doc.CreatedAt = time.Unix(ts, 0)
		doc.Metadata, err = rag.UnmarshalMetadata(rag.SourceProduct, []byte(meta))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: product rows: %w", err)
	}
	return docs, nil
}

// ListContextIDs returns the source IDs of every indexed transcript, the
// universe of contexts for a full pool recompute.
func (s *SQLiteIndex) ListContextIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT source_id FROM documents WHERE source_type = ? ORDER BY source_id`

	rows, err := s.db.QueryContext(ctx, q, string(rag.SourceTranscript))
	if err != nil {
		return nil, fmt.Errorf("index: list contexts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("index: context scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: context rows: %w", err)
	}
	return ids, nil
}

// Ping verifies the database handle is usable. Used by the readiness probe.
func (s *SQLiteIndex) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("index: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("index: close: %w", err)
	}
	return nil
}

// scanChunk reads one chunk row.
func scanChunk(rows *sql.Rows) (rag.Chunk, error) {
	var c rag.Chunk
	var srcType, meta string
	if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &srcType, &meta); err != nil {
		return rag.Chunk{}, fmt.Errorf("index: chunk scan: %w", err)
	}
	m, err := rag.UnmarshalMetadata(rag.SourceType(srcType), []byte(meta))
	if err != nil {
		return rag.Chunk{}, err
	}
	c.Metadata = m
	return c, nil
}

// ftsQuery converts free text into a safe FTS5 MATCH expression: each
// whitespace token becomes a quoted phrase, joined with OR so any matching
// token ranks the chunk. Tokens shorter than one trigram cannot match and are
// dropped; embedded double quotes are escaped by doubling.
func ftsQuery(query string) string {
	var phrases []string
	for _, tok := range strings.Fields(query) {
		if len([]rune(tok)) < 3 {
			continue
		}
		phrases = append(phrases, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	return strings.Join(phrases, " OR ")
}

// normalizeBM25 maps an FTS5 bm25() rank (more negative = better) onto [0,1].
func normalizeBM25(rank float64) float64 {
	score := -rank
	if score <= 0 {
		return 0
	}
	return score / (score + 1)
}

// boolInt converts a bool to a SQLite integer.
func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
