package rag

import (
	"encoding/json"
	"fmt"
)

// Metadata is the tagged per-source metadata variant. Exactly one of the
// concrete types below is stored per document, discriminated by SourceType.
// Chunks carry a snapshot of their document's metadata.
type Metadata interface {
	// SourceType returns the discriminator for this metadata variant.
	SourceType() SourceType
}

// CommentMetadata describes an ingested viewer comment.
type CommentMetadata struct {
	// VideoID is the context (video) the comment was posted on.
	VideoID string `json:"video_id"`
	// Author is the comment author's display name.
	Author string `json:"author,omitempty"`
	// Reply is the reply that was sent for this comment, if any.
	Reply string `json:"reply,omitempty"`
	// LikeCount is the comment's like count at ingest time.
	LikeCount int `json:"like_count,omitempty"`
}

// SourceType implements Metadata.
func (CommentMetadata) SourceType() SourceType { return SourceComment }

// TranscriptMetadata describes a video transcript document.
type TranscriptMetadata struct {
	// VideoID is the video the transcript belongs to.
	VideoID string `json:"video_id"`
	// Title is the video title.
	Title string `json:"title,omitempty"`
	// CategoryTags are upstream-computed category labels for the video.
	CategoryTags []string `json:"category_tags,omitempty"`
	// BrandTags are upstream-computed brand labels for the video.
	BrandTags []string `json:"brand_tags,omitempty"`
	// Tags are free-form labels attached to the video upstream.
	Tags []string `json:"tags,omitempty"`
	// PriceMin and PriceMax bound the price range covered by the video.
	// Both zero means no price range was detected upstream.
	PriceMin float64 `json:"price_min,omitempty"`
	PriceMax float64 `json:"price_max,omitempty"`
}

// SourceType implements Metadata.
func (TranscriptMetadata) SourceType() SourceType { return SourceTranscript }

// ProductMetadata describes a catalog product. All fields are consumed as
// already-computed upstream signals; this module does not validate their
// provenance.
type ProductMetadata struct {
	// Brand is the product brand name.
	Brand string `json:"brand,omitempty"`
	// Category is the product category label.
	Category string `json:"category,omitempty"`
	// Price is the catalog price. Zero means unknown.
	Price float64 `json:"price,omitempty"`
	// Tags are free-form catalog tags.
	Tags []string `json:"tags,omitempty"`
	// CanonicalURL is the canonical product link used in replies.
	CanonicalURL string `json:"canonical_url,omitempty"`
	// DisplayName is the product name shown in replies.
	DisplayName string `json:"display_name,omitempty"`
	// Recommendable marks the product eligible for recommendation.
	Recommendable bool `json:"recommendable,omitempty"`
}

// SourceType implements Metadata.
func (ProductMetadata) SourceType() SourceType { return SourceProduct }

// MarshalMetadata encodes a metadata variant as JSON for storage.
// A nil metadata encodes as an empty object.
func MarshalMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("rag: marshal metadata: %w", err)
	}
	return data, nil
}

// UnmarshalMetadata decodes the JSON payload into the variant selected by
// sourceType. Unknown source types are rejected.
func UnmarshalMetadata(sourceType SourceType, data []byte) (Metadata, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch sourceType {
	case SourceComment:
		var m CommentMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("rag: unmarshal comment metadata: %w", err)
		}
		return m, nil
	case SourceTranscript:
		var m TranscriptMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("rag: unmarshal transcript metadata: %w", err)
		}
		return m, nil
	case SourceProduct:
		var m ProductMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("rag: unmarshal product metadata: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("rag: unknown source type %q", sourceType)
	}
}

// ContextIDOf returns the context (video) ID carried by the metadata, or an
// empty string when the variant has no context affinity (products are global).
func ContextIDOf(m Metadata) string {
	switch v := m.(type) {
	case CommentMetadata:
		return v.VideoID
	case TranscriptMetadata:
		return v.VideoID
	default:
		return ""
	}
}
