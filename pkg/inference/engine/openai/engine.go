package openai

import (
	"context"
	"io"
	"strings"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/events"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine"
	"github.com/go-go-golems/song-vocab/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// Engine talks to any OpenAI-compatible chat completion endpoint, including
// the /v1 endpoint exposed by ollama.
type Engine struct {
	client   *go_openai.Client
	settings *settings.Settings
	config   *engine.Config
}

var _ engine.Engine = (*Engine)(nil)

func makeClient(s *settings.OpenAISettings) *go_openai.Client {
	config := go_openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		config.BaseURL = s.BaseURL
	}
	return go_openai.NewClientWithConfig(config)
}

func NewEngine(s *settings.Settings, options ...engine.Option) (*Engine, error) {
	if s.OpenAI.APIKey == "" && s.OpenAI.BaseURL == "" {
		return nil, errors.New("openai backend needs an api key or a base url")
	}
	return &Engine{
		client:   makeClient(s.OpenAI),
		settings: s,
		config:   engine.NewConfig(options...),
	}, nil
}

func (e *Engine) makeCompletionRequest(conv *conversation.Conversation) go_openai.ChatCompletionRequest {
	msgs := conv.Messages()
	messages := make([]go_openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	req := go_openai.ChatCompletionRequest{
		Model:    e.settings.Chat.Engine,
		Messages: messages,
		Stream:   e.settings.Chat.Stream,
	}
	if e.settings.Chat.Temperature != nil {
		req.Temperature = float32(*e.settings.Chat.Temperature)
	}
	if e.config.JSONFormat {
		req.ResponseFormat = &go_openai.ChatCompletionResponseFormat{
			Type: go_openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func (e *Engine) RunInference(ctx context.Context, conv *conversation.Conversation) (conversation.Message, error) {
	req := e.makeCompletionRequest(conv)

	metadata := events.MetadataFromContext(ctx)
	metadata.Model = req.Model

	log.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Bool("stream", req.Stream).
		Msg("openai: sending chat completion request")

	if !req.Stream {
		resp, err := e.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return conversation.Message{}, errors.Wrap(err, "openai chat completion failed")
		}
		if len(resp.Choices) == 0 {
			return conversation.Message{}, errors.Wrap(engine.ErrMalformedResponse, "no choices in response")
		}
		return conversation.NewAssistantMessage(resp.Choices[0].Message.Content), nil
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return conversation.Message{}, errors.Wrap(err, "openai chat completion stream failed")
	}
	defer stream.Close()

	var message strings.Builder
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return conversation.Message{}, errors.Wrap(err, "openai stream failed")
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		message.WriteString(delta)
		events.PublishEventToContext(ctx, events.NewPartialCompletionEvent(metadata, delta, message.String()))
	}

	return conversation.NewAssistantMessage(message.String()), nil
}
