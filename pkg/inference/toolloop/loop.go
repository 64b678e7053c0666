package toolloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/events"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine"
	"github.com/go-go-golems/song-vocab/pkg/inference/tools"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	EmptyReplyFeedback = "Your last response was empty. Please process the previous result and specify the next tool to use, or indicate FINISHED if done."
	NoToolFeedback     = "Please specify a tool to use or indicate FINISHED if done."
)

// Loop drives a model through text-protocol tool calls until it emits the
// sentinel or the turn budget runs out.
type Loop struct {
	eng           engine.Engine
	registry      tools.ToolRegistry
	loopCfg       LoopConfig
	contextWindow int
}

type Option func(*Loop)

func New(opts ...Option) *Loop {
	l := &Loop{
		loopCfg: DefaultLoopConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

func WithEngine(eng engine.Engine) Option {
	return func(l *Loop) { l.eng = eng }
}

func WithRegistry(reg tools.ToolRegistry) Option {
	return func(l *Loop) { l.registry = reg }
}

func WithLoopConfig(cfg LoopConfig) Option {
	return func(l *Loop) { l.loopCfg = cfg }
}

// WithContextWindow makes the loop warn when the conversation gets close to
// the number of tokens the model can see.
func WithContextWindow(tokens int) Option {
	return func(l *Loop) { l.contextWindow = tokens }
}

// Result is the outcome of a successful run.
type Result struct {
	Output       string
	Turns        int
	Conversation *conversation.Conversation
}

// Run appends to conv in place. On failure the conversation still holds
// every message exchanged up to the error.
func (l *Loop) Run(ctx context.Context, conv *conversation.Conversation) (*Result, error) {
	if l == nil {
		return nil, errors.New("tool loop is nil")
	}
	if l.eng == nil {
		return nil, errors.New("tool loop engine is nil")
	}
	if l.registry == nil {
		return nil, errors.New("tool loop registry is nil")
	}
	if conv == nil {
		return nil, errors.New("conversation is nil")
	}

	maxTurns := l.loopCfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	sentinel := l.loopCfg.Sentinel
	if sentinel == "" {
		sentinel = DefaultSentinel
	}

	if events.RunIDFromContext(ctx) == "" {
		ctx = events.WithRunID(ctx, uuid.NewString())
	}
	runID := events.RunIDFromContext(ctx)
	logger := log.With().Str("run_id", runID).Logger()

	for turn := 1; turn <= maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "tool loop cancelled")
		}

		logger.Debug().Int("turn", turn).Int("messages", conv.Len()).Msg("toolloop: engine inference step")
		events.PublishEventToContext(ctx, events.NewTurnStartEvent(events.MetadataFromContext(ctx), turn))
		l.watchContextWindow(conv, turn)

		reply, err := l.eng.RunInference(ctx, conv)
		if err != nil {
			ierr := &InferenceError{Turn: turn, Err: err}
			logger.Error().Err(err).Int("turn", turn).Msg("toolloop: inference failed")
			events.PublishEventToContext(ctx, events.NewErrorEvent(events.MetadataFromContext(ctx), turn, ierr))
			return nil, ierr
		}

		content := reply.Content
		conv.Append(conversation.NewAssistantMessage(content))
		events.PublishEventToContext(ctx, events.NewReplyEvent(events.MetadataFromContext(ctx), turn, content))

		if strings.TrimSpace(content) == "" {
			logger.Debug().Int("turn", turn).Msg("toolloop: empty reply")
			l.feedback(ctx, conv, turn, EmptyReplyFeedback)
			continue
		}

		if idx := strings.Index(content, sentinel); idx >= 0 {
			output := strings.TrimSpace(content[:idx])
			logger.Info().Int("turns", turn).Str("output", output).Msg("toolloop: finished")
			events.PublishEventToContext(ctx, events.NewFinalEvent(events.MetadataFromContext(ctx), turn, output))
			return &Result{
				Output:       output,
				Turns:        turn,
				Conversation: conv,
			}, nil
		}

		call, ok := ParseToolCall(content)
		if !ok {
			logger.Debug().Int("turn", turn).Msg("toolloop: no tool call in reply")
			l.feedback(ctx, conv, turn, NoToolFeedback)
			continue
		}

		events.PublishEventToContext(ctx, events.NewToolCallEvent(events.MetadataFromContext(ctx), turn, call.Name, call.Args))
		result, err := l.dispatch(ctx, call)
		if err != nil {
			logger.Info().Err(err).Int("turn", turn).Str("tool", call.Name).Msg("toolloop: tool failed")
			conv.Append(conversation.NewSystemMessage(fmt.Sprintf("Error: %s. Please try a different approach.", err.Error())))
			events.PublishEventToContext(ctx, events.NewToolErrorEvent(events.MetadataFromContext(ctx), turn, call.Name, err))
			continue
		}

		rendered := RenderResult(result)
		logger.Debug().Int("turn", turn).Str("tool", call.Name).Int("result_len", len(rendered)).Msg("toolloop: tool succeeded")
		conv.Append(conversation.NewSystemMessage(fmt.Sprintf("Tool %s result: %s", call.Name, rendered)))
		events.PublishEventToContext(ctx, events.NewToolResultEvent(events.MetadataFromContext(ctx), turn, call.Name, rendered))
	}

	logger.Warn().Int("max_turns", maxTurns).Msg("toolloop: maximum turns reached")
	err := errors.Wrapf(ErrMaxTurns, "gave up after %d turns", maxTurns)
	events.PublishEventToContext(ctx, events.NewErrorEvent(events.MetadataFromContext(ctx), maxTurns, err))
	return nil, err
}

func (l *Loop) feedback(ctx context.Context, conv *conversation.Conversation, turn int, text string) {
	conv.Append(conversation.NewSystemMessage(text))
	events.PublishEventToContext(ctx, events.NewFeedbackEvent(events.MetadataFromContext(ctx), turn, text))
}

// dispatch runs a tool synchronously. Unknown tools, invalid arguments,
// tool errors and panics are all reported as errors.
func (l *Loop) dispatch(ctx context.Context, call ToolCall) (result interface{}, err error) {
	def, ok := l.registry.Lookup(call.Name)
	if !ok {
		return nil, errors.Errorf("Tool Unknown: %s", call.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("tool", call.Name).Msg("toolloop: tool panicked")
			result = nil
			err = errors.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()

	return def.Invoke(ctx, call.Args)
}

func (l *Loop) watchContextWindow(conv *conversation.Conversation, turn int) {
	if l.contextWindow <= 0 {
		return
	}
	n, err := conv.TokenCount()
	if err != nil {
		log.Debug().Err(err).Msg("toolloop: could not count tokens")
		return
	}
	if n*10 >= l.contextWindow*9 {
		log.Warn().
			Int("turn", turn).
			Int("tokens", n).
			Int("context_window", l.contextWindow).
			Msg("toolloop: conversation is close to the context window")
	}
}

// RenderResult turns a tool result into message text. Strings are used
// verbatim, everything else is encoded as JSON.
func RenderResult(result interface{}) string {
	switch v := result.(type) {
	case nil:
		return "null"
	case string:
		return v
	case []byte:
		return string(v)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return fmt.Sprintf("%v", result)
	}
	return strings.TrimRight(buf.String(), "\n")
}
