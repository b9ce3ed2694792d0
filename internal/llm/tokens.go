package llm

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/textrelay/textrelay/internal/models"
)

// tokenBudget trims a context window to a token allowance, dropping the
// oldest turns first. The turn limit already bounds the window by
// count; this bounds it by size for deployments with long messages.
type tokenBudget struct {
	count func(string) int
	limit int
}

func newTokenBudget(limit int) (*tokenBudget, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &tokenBudget{
		count: func(s string) int { return len(enc.Encode(s, nil, nil)) },
		limit: limit,
	}, nil
}

func (tb *tokenBudget) trim(history []models.Message) []models.Message {
	total := 0
	cut := len(history)
	for cut > 0 {
		n := tb.count(history[cut-1].Content)
		if total+n > tb.limit {
			break
		}
		total += n
		cut--
	}
	return history[cut:]
}
