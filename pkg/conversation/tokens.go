package conversation

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/weaviate/tiktoken-go"
)

// DefaultEncoding is used for token estimates. Local models use their own
// tokenizers, so counts are approximate and only used for context-window warnings.
const DefaultEncoding = "cl100k_base"

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
	encoderErr  error
)

func getEncoder() (*tiktoken.Tiktoken, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = tiktoken.GetEncoding(DefaultEncoding)
	})
	return encoder, encoderErr
}

// TokenCount estimates the number of tokens in the conversation, including a
// small per-message overhead for role markers.
func (c *Conversation) TokenCount() (int, error) {
	enc, err := getEncoder()
	if err != nil {
		return 0, errors.Wrap(err, "could not load tokenizer")
	}
	total := 0
	for _, m := range c.messages {
		total += len(enc.Encode(m.Content, nil, nil)) + 4
	}
	return total, nil
}
