package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/chaiyo-labs/replyrag-go/internal/assembler"
	"github.com/chaiyo-labs/replyrag-go/internal/history"
	"github.com/chaiyo-labs/replyrag-go/internal/intent"
	"github.com/chaiyo-labs/replyrag-go/internal/logging"
	"github.com/chaiyo-labs/replyrag-go/internal/pool"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
	"github.com/chaiyo-labs/replyrag-go/internal/rerank"
	"github.com/chaiyo-labs/replyrag-go/internal/retriever"
)

const (
	// DefaultCandidateLimit caps how many pool candidates are surfaced to the
	// model per query.
	DefaultCandidateLimit = 10

	// DefaultContextTopK is the per-source result count for the auxiliary
	// context searches (transcript excerpts, prior comments).
	DefaultContextTopK = 3
)

// ServiceOptions tunes the answer pipeline.
type ServiceOptions struct {
	// TopK is the product result count fed into re-ranking and assembly.
	TopK int

	// MinScore drops product results below this blended score.
	MinScore float64

	// CandidateLimit caps the pool candidates surfaced to the model.
	CandidateLimit int

	// ContextTopK is the per-source result count for transcript and prior
	// comment context.
	ContextTopK int

	// Rerank configures the price re-ranking applied when the query names a
	// budget.
	Rerank rerank.Options

	// Assembler configures the context token budget.
	Assembler assembler.Options
}

func (o ServiceOptions) withDefaults() ServiceOptions {
	if o.CandidateLimit == 0 {
		o.CandidateLimit = DefaultCandidateLimit
	}
	if o.ContextTopK == 0 {
		o.ContextTopK = DefaultContextTopK
	}
	return o
}

// Request is one comment to answer.
type Request struct {
	// Comment is the viewer's comment text.
	Comment string

	// VideoID scopes retrieval and the candidate pool to one video.
	// Empty means no video context: full-scan retrieval, empty pool.
	VideoID string
}

// Response is the answered comment plus the signals that produced it.
type Response struct {
	// Reply is the validated reply.
	Reply Reply

	// Intent holds the signals extracted from the comment.
	Intent intent.Intent

	// Candidates is the size of the candidate pool the reply was
	// constrained to.
	Candidates int

	// Sections is the number of context excerpts assembled into the prompt.
	Sections int

	// ContextTokens is the token count of the assembled context.
	ContextTokens int
}

// Service runs the full query pipeline: intent extraction, pool lookup,
// hybrid retrieval, price re-ranking, context assembly, generation, and
// output validation.
type Service struct {
	extractor *intent.Extractor
	pools     *pool.Builder
	retriever *retriever.Retriever
	generator *Generator
	history   history.Store
	opts      ServiceOptions
}

// NewService wires the pipeline stages together. The pool builder may be nil;
// every query then runs with an empty candidate pool and recommends nothing.
func NewService(extractor *intent.Extractor, pools *pool.Builder, ret *retriever.Retriever, gen *Generator, opts ServiceOptions) (*Service, error) {
	if extractor == nil {
		return nil, fmt.Errorf("answer: extractor must not be nil")
	}
	if ret == nil {
		return nil, fmt.Errorf("answer: retriever must not be nil")
	}
	if gen == nil {
		return nil, fmt.Errorf("answer: generator must not be nil")
	}
	return &Service{
		extractor: extractor,
		pools:     pools,
		retriever: ret,
		generator: gen,
		opts:      opts.withDefaults(),
	}, nil
}

// SetHistory enables the reply history log. Answered comments are appended
// after generation; a failed append is logged and does not fail the answer.
func (s *Service) SetHistory(h history.Store) {
	s.history = h
}

// Answer runs the pipeline for one comment.
func (s *Service) Answer(ctx context.Context, req Request) (Response, error) {
	log := logging.FromContext(ctx)

	if strings.TrimSpace(req.Comment) == "" {
		return Response{}, rag.NewValidationError("comment must not be empty")
	}

	in := s.extractor.Extract(req.Comment)

	candidates, err := s.candidatePool(ctx, req.VideoID)
	if err != nil {
		return Response{}, fmt.Errorf("answer: candidate pool for %s: %w", req.VideoID, err)
	}

	products, err := s.retriever.Search(ctx, req.Comment, retriever.Options{
		TopK:       s.opts.TopK,
		SourceType: rag.SourceProduct,
		ContextID:  req.VideoID,
		MinScore:   s.opts.MinScore,
	})
	if err != nil {
		return Response{}, fmt.Errorf("answer: product retrieval: %w", err)
	}

	if in.HasPrice() {
		reranked, err := rerank.ByPrice(products, in.Price, s.opts.Rerank)
		if err != nil {
			return Response{}, fmt.Errorf("answer: rerank: %w", err)
		}
		products = products[:0]
		for _, r := range reranked {
			products = append(products, r.SearchResult)
		}
	}

	// Transcript and prior-comment context is best effort: a failed
	// auxiliary search degrades the prompt, not the answer.
	sections := products
	for _, aux := range []rag.SourceType{rag.SourceTranscript, rag.SourceComment} {
		hits, err := s.retriever.Search(ctx, req.Comment, retriever.Options{
			TopK:       s.opts.ContextTopK,
			SourceType: aux,
			ContextID:  req.VideoID,
		})
		if err != nil {
			log.Warn("context search failed", "source_type", aux, "error", err)
			continue
		}
		sections = append(sections, hits...)
	}

	assembled := assembler.Assemble(sections, s.opts.Assembler)

	reply, err := s.generator.Generate(ctx, req.Comment, assembled, candidates)
	if err != nil {
		return Response{}, err
	}

	if s.history != nil {
		entry := history.Entry{
			VideoID:   req.VideoID,
			Comment:   req.Comment,
			ReplyText: reply.ReplyText,
		}
		for _, p := range reply.Products {
			entry.ProductIDs = append(entry.ProductIDs, p.ID)
		}
		if err := s.history.Append(ctx, entry); err != nil {
			log.Warn("reply history append failed", "video_id", req.VideoID, "error", err)
		}
	}

	log.Info("answered comment",
		"video_id", req.VideoID,
		"candidates", len(candidates),
		"sections", len(assembled.Sections),
		"context_tokens", assembled.TokensUsed,
		"products", len(reply.Products))

	return Response{
		Reply:         reply,
		Intent:        in,
		Candidates:    len(candidates),
		Sections:      len(assembled.Sections),
		ContextTokens: assembled.TokensUsed,
	}, nil
}

// candidatePool resolves the verified candidates for a video. No video, no
// pool builder, or no stored pool all mean an empty pool.
func (s *Service) candidatePool(ctx context.Context, videoID string) (rag.CandidatePool, error) {
	if s.pools == nil || videoID == "" {
		return nil, nil
	}
	candidates, err := s.pools.CandidatesFor(ctx, videoID, s.opts.CandidateLimit)
	if err != nil {
		if rag.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return candidates, nil
}
