package enginetest

import (
	"context"
	"sync"

	"github.com/go-go-golems/song-vocab/pkg/conversation"
	"github.com/go-go-golems/song-vocab/pkg/inference/engine"
	"github.com/pkg/errors"
)

// Step is one scripted engine answer: either a reply or an error.
type Step struct {
	Reply string
	Err   error
}

// ScriptedEngine replays a fixed list of replies, one per call, and records
// the conversation it was called with.
type ScriptedEngine struct {
	mu     sync.Mutex
	steps  []Step
	repeat *Step
	seen   [][]conversation.Message
}

var _ engine.Engine = (*ScriptedEngine)(nil)

func NewScriptedEngine(replies ...string) *ScriptedEngine {
	ret := &ScriptedEngine{}
	for _, r := range replies {
		ret.steps = append(ret.steps, Step{Reply: r})
	}
	return ret
}

// ThenReply appends a reply to the script.
func (s *ScriptedEngine) ThenReply(reply string) *ScriptedEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, Step{Reply: reply})
	return s
}

// ThenError appends a failing call to the script.
func (s *ScriptedEngine) ThenError(err error) *ScriptedEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, Step{Err: err})
	return s
}

// RepeatReply is returned once the script is exhausted.
func (s *ScriptedEngine) RepeatReply(reply string) *ScriptedEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeat = &Step{Reply: reply}
	return s
}

func (s *ScriptedEngine) RunInference(ctx context.Context, conv *conversation.Conversation) (conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen = append(s.seen, conv.Messages())

	if err := ctx.Err(); err != nil {
		return conversation.Message{}, err
	}

	var step Step
	switch {
	case len(s.steps) > 0:
		step = s.steps[0]
		s.steps = s.steps[1:]
	case s.repeat != nil:
		step = *s.repeat
	default:
		return conversation.Message{}, errors.New("scripted engine: script exhausted")
	}

	if step.Err != nil {
		return conversation.Message{}, step.Err
	}
	return conversation.NewAssistantMessage(step.Reply), nil
}

// Calls returns how many times RunInference was called.
func (s *ScriptedEngine) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Seen returns the conversation passed to the i-th call.
func (s *ScriptedEngine) Seen(i int) []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.seen) {
		return nil
	}
	return s.seen[i]
}
