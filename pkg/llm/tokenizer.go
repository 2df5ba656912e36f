package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenizer estimates token counts locally when a provider response carries
// no usage fields, grounded on the teacher's pkg/utils.TokenCounter.
type tokenizer struct {
	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
}

func newTokenizer(model string) *tokenizer {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return &tokenizer{}
		}
	}
	return &tokenizer{encoding: enc}
}

func (t *tokenizer) count(text string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.encoding == nil {
		return len(text) / 4
	}
	return len(t.encoding.Encode(text, nil, nil))
}

func (t *tokenizer) countMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += 3
		total += t.count(m.Role)
		total += t.count(m.Content)
	}
	total += 3
	return total
}
