package ollama

import (
	"context"
	"strings"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/events"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ChatClient is the subset of the ollama client used by the engine.
type ChatClient interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

type Engine struct {
	client   ChatClient
	settings *settings.Settings
	config   *engine.Config
}

var _ engine.Engine = (*Engine)(nil)

func NewEngine(client ChatClient, s *settings.Settings, options ...engine.Option) *Engine {
	return &Engine{
		client:   client,
		settings: s,
		config:   engine.NewConfig(options...),
	}
}

// NewEngineFromSettings connects to the ollama server named by OLLAMA_HOST.
func NewEngineFromSettings(s *settings.Settings, options ...engine.Option) (*Engine, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "could not create ollama client")
	}
	return NewEngine(client, s, options...), nil
}

func (e *Engine) makeOptions() map[string]interface{} {
	ret := map[string]interface{}{}
	numCtx := e.config.ContextWindow
	if e.settings.Ollama.NumCtx > 0 {
		numCtx = e.settings.Ollama.NumCtx
	}
	if numCtx > 0 {
		ret["num_ctx"] = numCtx
	}
	if e.settings.Chat.Temperature != nil {
		ret["temperature"] = *e.settings.Chat.Temperature
	}
	if e.settings.Ollama.Seed != nil {
		ret["seed"] = *e.settings.Ollama.Seed
	}
	if e.settings.Ollama.TopK != nil {
		ret["top_k"] = *e.settings.Ollama.TopK
	}
	return ret
}

func (e *Engine) RunInference(ctx context.Context, conv *conversation.Conversation) (conversation.Message, error) {
	msgs := conv.Messages()
	ollamaMessages := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		ollamaMessages = append(ollamaMessages, api.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	stream := e.settings.Chat.Stream
	req := &api.ChatRequest{
		Model:    e.settings.Chat.Engine,
		Messages: ollamaMessages,
		Stream:   &stream,
		Options:  e.makeOptions(),
	}
	if e.config.JSONFormat {
		req.Format = "json"
	}

	metadata := events.MetadataFromContext(ctx)
	metadata.Model = req.Model

	log.Debug().
		Str("model", req.Model).
		Int("messages", len(ollamaMessages)).
		Bool("stream", stream).
		Interface("options", req.Options).
		Msg("ollama: sending chat request")

	var message strings.Builder
	err := e.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message == nil || resp.Message.Content == "" {
			return nil
		}
		message.WriteString(resp.Message.Content)
		if stream {
			events.PublishEventToContext(ctx, events.NewPartialCompletionEvent(metadata, resp.Message.Content, message.String()))
		}
		return nil
	})
	if err != nil {
		return conversation.Message{}, errors.Wrap(err, "ollama chat request failed")
	}

	return conversation.NewAssistantMessage(message.String()), nil
}
