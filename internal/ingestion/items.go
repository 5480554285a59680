package ingestion

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// rawItem is the wire shape of one item in an ingest file or request body.
// The metadata payload is decoded into the variant matching sourceType.
type rawItem struct {
	SourceType string          `json:"source_type"`
	SourceID   string          `json:"source_id"`
	Text       string          `json:"text"`
	Metadata   json.RawMessage `json:"metadata"`
}

// decode converts the wire shape into a typed Item.
func (r rawItem) decode() (Item, error) {
	t := rag.SourceType(r.SourceType)
	if !t.Valid() {
		return Item{}, rag.NewValidationError("unknown source type %q", r.SourceType)
	}

	meta, err := rag.UnmarshalMetadata(t, r.Metadata)
	if err != nil {
		return Item{}, fmt.Errorf("decode metadata for %s %s: %w", r.SourceType, r.SourceID, err)
	}

	return Item{
		SourceType: t,
		SourceID:   r.SourceID,
		Text:       r.Text,
		Metadata:   meta,
	}, nil
}

// ReadItems parses a stream of JSON Lines, one item per line:
//
//	{"source_type":"product","source_id":"sku-1","text":"...","metadata":{...}}
//
// Blank lines are skipped. A malformed line fails the whole read with its
// line number — partial files should be fixed, not half-ingested.
func ReadItems(r io.Reader) ([]Item, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var items []Item
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var raw rawItem
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("ingestion: line %d: %w", line, err)
		}
		item, err := raw.decode()
		if err != nil {
			return nil, fmt.Errorf("ingestion: line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingestion: read items: %w", err)
	}
	return items, nil
}

// DecodeItems parses a JSON array of items, the shape used by the ingest API
// endpoint.
func DecodeItems(data []byte) ([]Item, error) {
	var raws []rawItem
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("ingestion: decode items: %w", err)
	}
	items := make([]Item, 0, len(raws))
	for i, raw := range raws {
		item, err := raw.decode()
		if err != nil {
			return nil, fmt.Errorf("ingestion: item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}
