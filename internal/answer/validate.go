package answer

import (
	"regexp"
	"strings"

	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// MaxProducts is the recommendation ceiling per reply.
const MaxProducts = 2

// linkRe matches embedded http(s) links in reply text.
var linkRe = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// Validate enforces the candidate pool on a parsed reply, in order: products
// whose ID is not in the pool are dropped; surviving products get the pool's
// canonical URL, never the model's own string; the list is truncated to
// MaxProducts; and any link in the reply text that is not exactly an allowed
// canonical URL is stripped. With an empty pool every link is stripped.
func Validate(reply Reply, pool rag.CandidatePool) Reply {
	kept := make([]Product, 0, len(reply.Products))
	for _, p := range reply.Products {
		candidate, ok := pool.Lookup(p.ID)
		if !ok {
			continue
		}
		p.URL = candidate.CanonicalURL
		if p.Name == "" {
			p.Name = candidate.DisplayName
		}
		kept = append(kept, p)
	}
	if len(kept) > MaxProducts {
		kept = kept[:MaxProducts]
	}
	reply.Products = kept

	reply.ReplyText = stripForeignLinks(reply.ReplyText, pool.URLs())
	return reply
}

// stripForeignLinks removes every link in text that is not exactly one of the
// allowed URLs, collapsing any whitespace the removal leaves behind.
func stripForeignLinks(text string, allowed []string) string {
	allow := make(map[string]struct{}, len(allowed))
	for _, u := range allowed {
		allow[u] = struct{}{}
	}

	changed := false
	stripped := linkRe.ReplaceAllStringFunc(text, func(link string) string {
		if _, ok := allow[link]; ok {
			return link
		}
		changed = true
		return ""
	})
	if !changed {
		return text
	}
	stripped = spaceRunRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(stripped)
}

// spaceRunRe collapses the double spaces left where a link was removed.
var spaceRunRe = regexp.MustCompile(`[ \t]{2,}`)
