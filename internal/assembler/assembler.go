// Package assembler fits ranked retrieval results into the prompt token
// budget. A fixed headroom is reserved for the query, the instructions and
// the model's response; the rest is filled greedily in rank order.
package assembler

import (
	"github.com/chaiyo-labs/replyrag-go/internal/budget"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

const (
	// DefaultTotalBudget is the whole-prompt token budget.
	DefaultTotalBudget = budget.DefaultAnswerBudget

	// DefaultHeadroom is reserved off the top for query, instructions and
	// the generated response.
	DefaultHeadroom = budget.DefaultHeadroom

	// DefaultTruncationFloor is the minimum remaining budget worth spending
	// on a truncated prefix. Below it the partial section is dropped.
	DefaultTruncationFloor = 50
)

// Options tunes one assembly. Zero-value fields take defaults.
type Options struct {
	// TotalBudget is the whole-prompt token budget.
	TotalBudget int

	// Headroom is reserved for non-context prompt parts.
	Headroom int

	// TruncationFloor is the smallest useful truncated section.
	TruncationFloor int
}

func (o Options) withDefaults() Options {
	if o.TotalBudget <= 0 {
		o.TotalBudget = DefaultTotalBudget
	}
	if o.Headroom <= 0 {
		o.Headroom = DefaultHeadroom
	}
	if o.TruncationFloor <= 0 {
		o.TruncationFloor = DefaultTruncationFloor
	}
	return o
}

// Section is one result admitted into the prompt.
type Section struct {
	// Result is the originating retrieval hit.
	Result rag.SearchResult

	// Text is the admitted text, possibly a truncated prefix.
	Text string

	// Tokens is the estimated token cost of Text.
	Tokens int

	// Truncated is true when Text is a prefix of the original chunk.
	Truncated bool
}

// Assembled is the budget-fitted context selection.
type Assembled struct {
	// Sections are the admitted results in rank order.
	Sections []Section

	// TokensUsed is the total estimated cost of all sections.
	TokensUsed int
}

// Texts returns the section texts in order.
func (a Assembled) Texts() []string {
	out := make([]string, 0, len(a.Sections))
	for _, s := range a.Sections {
		out = append(out, s.Text)
	}
	return out
}

// Assemble admits ranked results into the context budget. Results are taken
// in order while they fit whole; the first result that does not fit is
// admitted as a truncated prefix only when the remaining budget is at least
// the truncation floor. Assembly stops at the first non-fitting result either
// way — later, lower-ranked results never leapfrog it.
func Assemble(results []rag.SearchResult, opts Options) Assembled {
	opts = opts.withDefaults()

	remaining := opts.TotalBudget - opts.Headroom
	if remaining <= 0 {
		return Assembled{}
	}

	var out Assembled
	for _, res := range results {
		if res.Text == "" {
			continue
		}
		cost := budget.Estimate(res.Text)
		if cost <= remaining {
			out.Sections = append(out.Sections, Section{
				Result: res,
				Text:   res.Text,
				Tokens: cost,
			})
			out.TokensUsed += cost
			remaining -= cost
			continue
		}

		if remaining >= opts.TruncationFloor {
			text := budget.Truncate(res.Text, remaining)
			cost = budget.Estimate(text)
			out.Sections = append(out.Sections, Section{
				Result:    res,
				Text:      text,
				Tokens:    cost,
				Truncated: true,
			})
			out.TokensUsed += cost
		}
		break
	}
	return out
}
