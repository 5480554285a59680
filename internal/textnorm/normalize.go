// Package textnorm canonicalizes raw text before chunking and embedding:
// HTML stripping, quote and whitespace canonicalization, optional emoji and
// URL removal, and cleanup of invisible characters common in Thai text.
// Normalization is deterministic and idempotent:
// Normalize(Normalize(x)) == Normalize(x) for every input.
package textnorm

import (
	"html"
	"regexp"
	"strings"
)

// Options controls which normalization steps run.
type Options struct {
	// RemoveEmojis strips emoji and pictographic symbols.
	RemoveEmojis bool

	// CleanURLs removes embedded URLs from the text.
	CleanURLs bool

	// MaxLength truncates the normalized text to this many runes.
	// Zero means unlimited.
	MaxLength int
}

// maxPasses bounds the fixpoint loop in Normalize. A single pass settles all
// realistic input; doubly-escaped HTML needs one more.
const maxPasses = 4

var (
	// htmlTagRe matches HTML/XML tags including their attributes.
	htmlTagRe = regexp.MustCompile(`<[^<>]*>`)

	// urlRe matches http(s) URLs and bare www-prefixed hosts.
	urlRe = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)

	// whitespaceRe collapses any run of whitespace (including NBSP) to one space.
	whitespaceRe = regexp.MustCompile(`[\s\x{00A0}]+`)

	// invisibleRe matches zero-width and directional characters that appear
	// in copy-pasted Thai text and break tokenization: ZWSP, ZWNJ, ZWJ,
	// word joiner, BOM, LRM, RLM.
	invisibleRe = regexp.MustCompile(`[\x{200B}\x{200C}\x{200D}\x{2060}\x{FEFF}\x{200E}\x{200F}]`)
)

// quoteReplacer maps typographic quotes and dashes onto their ASCII forms.
var quoteReplacer = strings.NewReplacer(
	"“", `"`, // left double quotation
	"”", `"`, // right double quotation
	"‘", "'", // left single quotation
	"’", "'", // right single quotation
	"–", "-", // en dash
	"—", "-", // em dash
	"…", "...",
)

// Normalize canonicalizes text according to opts. It applies the underlying
// transform until the output stops changing, which makes the function
// idempotent by construction even for escaped-HTML edge cases.
func Normalize(text string, opts Options) string {
	out := text
	for i := 0; i < maxPasses; i++ {
		next := normalizeOnce(out, opts)
		if next == out {
			break
		}
		out = next
	}

	if opts.MaxLength > 0 {
		runes := []rune(out)
		if len(runes) > opts.MaxLength {
			out = strings.TrimRight(string(runes[:opts.MaxLength]), " ")
		}
	}

	return out
}

// normalizeOnce runs a single pass of the normalization pipeline.
func normalizeOnce(text string, opts Options) string {
	// Decode entities before stripping tags so escaped markup ("&lt;b&gt;")
	// is removed rather than surfaced as literal text.
	out := html.UnescapeString(text)
	out = htmlTagRe.ReplaceAllString(out, " ")

	out = invisibleRe.ReplaceAllString(out, "")
	out = quoteReplacer.Replace(out)

	if opts.CleanURLs {
		out = urlRe.ReplaceAllString(out, " ")
	}
	if opts.RemoveEmojis {
		out = stripEmojis(out)
	}

	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// stripEmojis removes emoji, pictographs, and variation selectors.
// Ranges cover the Unicode emoji blocks in common use; anything outside them
// (Thai, CJK, Latin) passes through untouched.
func stripEmojis(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if isEmoji(r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// isEmoji reports whether r falls inside an emoji or pictograph block.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators (flags)
		return true
	case r == 0xFE0E || r == 0xFE0F: // variation selectors
		return true
	case r == 0x200D: // zero-width joiner (emoji sequences)
		return true
	}
	return false
}
