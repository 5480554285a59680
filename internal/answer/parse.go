package answer

import (
	"encoding/json"
	"strings"
)

// Parse extracts a Reply from raw model output. Models often wrap JSON in a
// markdown code fence despite instructions, so fences are stripped before
// unmarshalling. Output that still fails to parse becomes a raw-text reply
// with no products — this path never errors, because posting the model's
// plain text beats posting nothing.
func Parse(raw string) Reply {
	trimmed := stripCodeFence(strings.TrimSpace(raw))

	var reply Reply
	if err := json.Unmarshal([]byte(trimmed), &reply); err != nil || reply.ReplyText == "" {
		return Reply{ReplyText: strings.TrimSpace(raw)}
	}
	return reply
}

// stripCodeFence removes a surrounding markdown code fence, with or without a
// language tag, leaving the inner payload.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
