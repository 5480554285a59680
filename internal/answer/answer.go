// Package answer produces the final comment reply: it prompts the LLM with
// the assembled retrieval context and the candidate pool, parses the
// structured output, and validates every recommendation against the pool
// before anything reaches the commenter.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/chaiyo-labs/replyrag-go/internal/assembler"
	"github.com/chaiyo-labs/replyrag-go/internal/rag"
)

// systemPrompt establishes the reply persona and the JSON output contract.
// The candidate pool and retrieval context are injected as separate system
// messages per request.
const systemPrompt = `You are the channel owner's assistant replying to YouTube comments on Thai
tech review videos. Viewers ask which product to buy, usually with a budget in
Thai baht. Answer in the commenter's language (Thai comments get Thai replies),
in the warm, casual tone of a creator replying to fans. Keep replies short —
two to four sentences.

You may ONLY recommend products from the candidate list provided in this
conversation. Never invent products, prices, or links. If nothing in the list
fits the question, say so honestly and recommend nothing.

Respond with ONLY a JSON object in this exact shape — no markdown fencing, no
text outside the JSON:

{
  "replyText": "<the reply to post, in the commenter's language>",
  "products": [
    { "id": "<candidate id>", "url": "<candidate url>", "name": "<candidate name>" }
  ]
}

Rules:
- Every product id and url MUST come from the candidate list verbatim
- Recommend at most 2 products
- Mention the price in the reply when the commenter asked about budget
- An empty products array is a valid answer`

// Product is one recommended item in a generated reply.
type Product struct {
	// ID is the candidate pool ID of the product.
	ID string `json:"id"`
	// URL is the product link. After validation this is always the pool's
	// canonical URL, regardless of what the model emitted.
	URL string `json:"url"`
	// Name is the display name the model used.
	Name string `json:"name,omitempty"`
}

// Reply is the validated generation result.
type Reply struct {
	// ReplyText is the text to post as the comment reply.
	ReplyText string `json:"replyText"`
	// Products are the surviving recommendations, at most MaxProducts.
	Products []Product `json:"products"`
}

// Options tunes the generator.
type Options struct {
	// Instructions is appended to the system prompt, e.g. channel-specific
	// tone guidance. Optional.
	Instructions string
}

// Generator turns assembled context and a candidate pool into a validated
// reply.
type Generator struct {
	chatModel model.BaseChatModel
	opts      Options
}

// NewGenerator constructs a Generator over the given chat model.
func NewGenerator(chatModel model.BaseChatModel, opts Options) (*Generator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("answer: chat model must not be nil")
	}
	return &Generator{chatModel: chatModel, opts: opts}, nil
}

// Generate prompts the model and returns the validated reply. Model failure
// surfaces as an UpstreamServiceError; malformed model output never does —
// it degrades to a raw-text reply with no products.
func (g *Generator) Generate(ctx context.Context, comment string, contexts assembler.Assembled, pool rag.CandidatePool) (Reply, error) {
	messages := buildMessages(comment, contexts, pool, g.opts.Instructions)

	out, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return Reply{}, &rag.UpstreamServiceError{Service: "llm", Err: err}
	}

	reply := Parse(out.Content)
	return Validate(reply, pool), nil
}

// buildMessages assembles the prompt: persona, retrieval context, candidate
// pool, then the comment itself.
func buildMessages(comment string, contexts assembler.Assembled, pool rag.CandidatePool, instructions string) []*schema.Message {
	prompt := systemPrompt
	if instructions != "" {
		prompt += "\n\n" + instructions
	}
	messages := []*schema.Message{schema.SystemMessage(prompt)}

	if len(contexts.Sections) > 0 {
		messages = append(messages, schema.SystemMessage(buildContext(contexts)))
	}
	messages = append(messages, schema.SystemMessage(buildPool(pool)))
	return append(messages, schema.UserMessage(comment))
}

// buildContext formats the admitted retrieval sections into one system
// message, labelled by origin so the model can weigh them.
func buildContext(contexts assembler.Assembled) string {
	var sb strings.Builder
	sb.WriteString("## Retrieved Context\n\n" +
		"Excerpts from the video transcript, the product catalog and prior " +
		"comments, most relevant first.\n\n")
	for i, s := range contexts.Sections {
		fmt.Fprintf(&sb, "### Excerpt %d (%s)\n%s\n\n", i+1, s.Result.SourceType, s.Text)
	}
	return sb.String()
}

// buildPool formats the candidate pool as the model's only allowed products.
func buildPool(pool rag.CandidatePool) string {
	if len(pool) == 0 {
		return "## Candidate Products\n\nThe candidate list is empty. Recommend nothing."
	}
	var sb strings.Builder
	sb.WriteString("## Candidate Products\n\n" +
		"These are the ONLY products you may recommend:\n\n")
	for _, c := range pool {
		fmt.Fprintf(&sb, "- id: %s | name: %s", c.ID, c.DisplayName)
		if c.Price > 0 {
			fmt.Fprintf(&sb, " | price: %.0f THB", c.Price)
		}
		fmt.Fprintf(&sb, " | url: %s\n", c.CanonicalURL)
	}
	return sb.String()
}
