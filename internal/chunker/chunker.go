// Package chunker splits normalized text into token-bounded, overlapping
// segments. Profiles are tuned per content type: transcripts use large chunks
// with generous overlap, product descriptions small chunks, and comments are
// never split at all.
package chunker

import (
	"strings"

	"github.com/chaiyo-labs/replyrag-go/internal/budget"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// Profile controls how text is segmented.
type Profile struct {
	// MaxTokens is the upper bound on a chunk's estimated token count.
	// A single atomic sentence longer than this is force-split by character
	// budget instead.
	MaxTokens int

	// Overlap is the number of tokens carried from the tail of each chunk
	// into the start of the next one.
	Overlap int

	// PreserveSentences prefers sentence boundaries over raw token cuts.
	PreserveSentences bool
}

// Per-type chunking profiles.
var (
	// TranscriptProfile suits long spoken-word transcripts.
	TranscriptProfile = Profile{MaxTokens: 400, Overlap: 60, PreserveSentences: true}

	// ProductProfile suits short catalog descriptions.
	ProductProfile = Profile{MaxTokens: 120, Overlap: 20, PreserveSentences: true}
)

// ProfileFor returns the chunking profile for a source type. Comments have no
// profile: they are always stored as exactly one chunk.
func ProfileFor(sourceType rag.SourceType) (Profile, bool) {
	switch sourceType {
	case rag.SourceTranscript:
		return TranscriptProfile, true
	case rag.SourceProduct:
		return ProductProfile, true
	default:
		return Profile{}, false
	}
}

// Split breaks normalized text into an ordered sequence of chunks.
//
// When the whole input fits within MaxTokens the result is exactly one chunk
// equal to the input. Otherwise every chunk's token estimate stays within
// MaxTokens, except a single oversized atomic sentence, which is force-split
// by character budget preferring word boundaries. Consecutive chunks share up
// to Overlap tokens carried from the tail of the previous chunk.
func Split(text string, p Profile) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if p.MaxTokens <= 0 || budget.Estimate(text) <= p.MaxTokens {
		return []string{text}
	}

	var segments []string
	if p.PreserveSentences {
		segments = splitSentences(text)
	} else {
		segments = strings.Fields(text)
	}

	// Force-split any atomic segment that alone exceeds the budget; this is
	// the only path where a chunk may carry a character-split fragment.
	segments = splitOversized(segments, p.MaxTokens)

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(current.String()))
		current.Reset()
	}

	// Admission is checked against the estimate of the joined chunk text, not
	// a running sum of segment estimates: the joining spaces cost tokens too.
	for _, seg := range segments {
		if current.Len() > 0 && budget.Estimate(current.String()+" "+seg) > p.MaxTokens {
			prev := strings.TrimSpace(current.String())
			flush()

			// Seed the next chunk with the previous chunk's tail for
			// cross-boundary context. The tail is dropped when it would push
			// the joined chunk past the budget.
			if p.Overlap > 0 {
				maxOverlap := p.Overlap
				if room := p.MaxTokens - budget.Estimate(seg); room < maxOverlap {
					maxOverlap = room
				}
				tail := tailTokens(prev, maxOverlap)
				if tail != "" && budget.Estimate(tail+" "+seg) <= p.MaxTokens {
					current.WriteString(tail)
				}
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(seg)
	}
	flush()

	return chunks
}

// sentenceEnders are the runes treated as sentence boundaries. Thai separates
// sentences with spaces rather than punctuation, so a long run of Thai text
// falls through to the oversized-segment splitter.
const sentenceEnders = ".!?\n"

// splitSentences splits text at sentence boundaries, keeping the terminator
// with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if !strings.ContainsRune(sentenceEnders, r) {
			continue
		}
		// Consume trailing terminator runs ("...", "?!") as one boundary.
		if i+1 < len(runes) && strings.ContainsRune(sentenceEnders, runes[i+1]) {
			continue
		}
		s := strings.TrimSpace(string(runes[start : i+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// splitOversized force-splits any segment whose token estimate exceeds
// maxTokens into character-budgeted pieces, preferring word boundaries.
func splitOversized(segments []string, maxTokens int) []string {
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if budget.Estimate(seg) <= maxTokens {
			out = append(out, seg)
			continue
		}
		rest := seg
		for budget.Estimate(rest) > maxTokens {
			head := budget.Truncate(rest, maxTokens)
			if head == "" || len(head) >= len(rest) {
				break
			}
			out = append(out, head)
			rest = strings.TrimSpace(rest[len(head):])
		}
		if rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// tailTokens returns a suffix of text estimated at no more than overlap
// tokens, starting at a word boundary where one exists.
func tailTokens(text string, overlap int) string {
	if budget.Estimate(text) <= overlap {
		return text
	}

	// Walk backwards rune-wise until the overlap budget is spent, mirroring
	// the estimate used by budget.Estimate.
	charBudget := overlap * 4 // ASCII-equivalent characters
	used := 0
	runes := []rune(text)
	cut := 0
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] < 128 {
			used++
		} else {
			used += 2
		}
		if used > charBudget {
			cut = i + 1
			break
		}
	}

	tail := string(runes[cut:])
	// Start at the next word boundary so the overlap does not begin mid-word.
	if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
