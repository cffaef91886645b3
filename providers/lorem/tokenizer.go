package lorem

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts the tokens of a text for usage reporting.
type Tokenizer interface {
	Count(text string) int
}

// WordCounter counts whitespace-separated words. It is the default.
type WordCounter struct{}

// Count returns the number of words in text.
func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// Tiktoken counts BPE tokens the way OpenAI models do.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the encoding used by model, falling back to cl100k_base
// for models tiktoken does not know.
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Tiktoken{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
