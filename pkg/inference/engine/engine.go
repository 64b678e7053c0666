package engine

import (
	"context"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/pkg/errors"
)

// ErrMalformedResponse is returned when a backend answers without any completion.
var ErrMalformedResponse = errors.New("malformed model response")

// Engine produces the next assistant message for a conversation. Streaming
// backends drain the stream before returning; partial chunks are only
// published as events to the sinks attached to ctx.
type Engine interface {
	RunInference(ctx context.Context, conv *conversation.Conversation) (conversation.Message, error)
}

// Config holds per-engine request options shared by all backends.
type Config struct {
	// JSONFormat asks the backend to constrain its output to a JSON document.
	JSONFormat bool
	// ContextWindow is the number of tokens the backend may use, 0 for the backend default.
	ContextWindow int
}

type Option func(*Config)

func WithJSONFormat() Option {
	return func(c *Config) {
		c.JSONFormat = true
	}
}

func WithContextWindow(n int) Option {
	return func(c *Config) {
		c.ContextWindow = n
	}
}

func NewConfig(options ...Option) *Config {
	c := &Config{}
	for _, o := range options {
		o(c)
	}
	return c
}
