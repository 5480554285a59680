// Package rerank adjusts retrieval scores by price proximity. When a query
// carries a detected budget, items priced near it rise and items priced far
// from it fall; items with no known price keep their semantic score untouched.
package rerank

import (
	"math"
	"sort"

	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

const (
	// DefaultPriceWeight is the share of the final score driven by price
	// proximity.
	DefaultPriceWeight = 0.4

	// DefaultSemanticWeight is the share driven by the retrieval score.
	DefaultSemanticWeight = 0.6
)

// Options tunes one rerank call.
type Options struct {
	// PriceWeight and SemanticWeight blend price proximity with the
	// retrieval score. They must sum to 1. Both zero means the defaults
	// (0.4/0.6).
	PriceWeight    float64
	SemanticWeight float64

	// MinPriceScore is the proximity threshold below which an item is
	// penalized instead of blended: its final score becomes
	// semanticScore·SemanticWeight with no price term at all. The jump at
	// the threshold is intentional: a badly mispriced item should lose
	// rank, not merely gain nothing.
	MinPriceScore float64
}

func (o Options) withDefaults() Options {
	if o.PriceWeight == 0 && o.SemanticWeight == 0 {
		o.PriceWeight = DefaultPriceWeight
		o.SemanticWeight = DefaultSemanticWeight
	}
	return o
}

// Result is one reranked retrieval hit.
type Result struct {
	rag.SearchResult

	// PriceScore is the price proximity in [0,1]. Zero when not reranked.
	PriceScore float64

	// Reranked is false when the item had no usable price and kept its
	// original score.
	Reranked bool
}

// PriceScore returns the proximity of an item price p to the query budget q:
//
//	priceScore = max(0, 1 − |q−p| / avg(q,p))
//
// Identical prices score 1; a price double (or half) the budget scores ≈0.33.
func PriceScore(q, p float64) float64 {
	avg := (q + p) / 2
	if avg <= 0 {
		return 0
	}
	return math.Max(0, 1-math.Abs(q-p)/avg)
}

// ByPrice reranks results against the query budget and returns them sorted by
// descending final score. Items whose metadata carries no positive price are
// marked not-reranked and keep their retrieval score unchanged. Returns a
// ValidationError when the weights do not sum to 1.
func ByPrice(results []rag.SearchResult, queryPrice float64, opts Options) ([]Result, error) {
	opts = opts.withDefaults()
	if math.Abs(opts.PriceWeight+opts.SemanticWeight-1) > 1e-9 {
		return nil, rag.NewValidationError(
			"rerank weights must sum to 1, got price=%v semantic=%v",
			opts.PriceWeight, opts.SemanticWeight)
	}

	out := make([]Result, 0, len(results))
	for _, res := range results {
		r := Result{SearchResult: res}
		if price := priceOf(res.Metadata); price > 0 {
			r.Reranked = true
			r.PriceScore = PriceScore(queryPrice, price)
			if r.PriceScore < opts.MinPriceScore {
				r.Score = res.Score * opts.SemanticWeight
			} else {
				r.Score = res.Score*opts.SemanticWeight + r.PriceScore*opts.PriceWeight
			}
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// priceOf extracts the item price from a metadata variant. Only products
// carry one.
func priceOf(m rag.Metadata) float64 {
	p, ok := m.(rag.ProductMetadata)
	if !ok {
		return 0
	}
	return p.Price
}
