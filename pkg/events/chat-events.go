package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeTurnStart is published when the loop asks the model for a reply.
	EventTypeTurnStart EventType = "turn-start"
	// EventTypePartialCompletion carries streamed deltas; the loop never reacts to them.
	EventTypePartialCompletion EventType = "partial"
	// EventTypeReply carries the complete, drained model reply of a turn.
	EventTypeReply EventType = "reply"

	EventTypeToolCall   EventType = "tool-call"
	EventTypeToolResult EventType = "tool-result"
	EventTypeToolError  EventType = "tool-error"

	// EventTypeFeedback is a system message the loop appended to steer the model.
	EventTypeFeedback EventType = "feedback"

	EventTypeFinal EventType = "final"
	EventTypeError EventType = "error"
)

// EventMetadata identifies the event and the agent run it belongs to.
type EventMetadata struct {
	ID    uuid.UUID `json:"id" yaml:"id"`
	RunID string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Model string    `json:"model,omitempty" yaml:"model,omitempty"`
	Time  time.Time `json:"time" yaml:"time"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", em.ID.String())
	if em.RunID != "" {
		e.Str("run_id", em.RunID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
}

func NewEventMetadata(runID string) EventMetadata {
	return EventMetadata{
		ID:    uuid.New(),
		RunID: runID,
		Time:  time.Now(),
	}
}

// Event is a single observation of the tool loop or an engine.
type Event struct {
	Type_     EventType         `json:"type"`
	Metadata_ EventMetadata     `json:"meta"`
	Turn      int               `json:"turn,omitempty"`
	Text      string            `json:"text,omitempty"`
	Delta     string            `json:"delta,omitempty"`
	ToolName  string            `json:"tool_name,omitempty"`
	ToolArgs  map[string]string `json:"tool_args,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func (e *Event) Type() EventType {
	return e.Type_
}

func (e *Event) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *Event) Payload() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Event) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
	if e.Turn > 0 {
		ev.Int("turn", e.Turn)
	}
	if e.ToolName != "" {
		ev.Str("tool", e.ToolName)
	}
	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}

func NewTurnStartEvent(meta EventMetadata, turn int) *Event {
	return &Event{Type_: EventTypeTurnStart, Metadata_: meta, Turn: turn}
}

func NewPartialCompletionEvent(meta EventMetadata, delta string, completion string) *Event {
	return &Event{Type_: EventTypePartialCompletion, Metadata_: meta, Delta: delta, Text: completion}
}

func NewReplyEvent(meta EventMetadata, turn int, text string) *Event {
	return &Event{Type_: EventTypeReply, Metadata_: meta, Turn: turn, Text: text}
}

func NewToolCallEvent(meta EventMetadata, turn int, name string, args map[string]string) *Event {
	return &Event{Type_: EventTypeToolCall, Metadata_: meta, Turn: turn, ToolName: name, ToolArgs: args}
}

func NewToolResultEvent(meta EventMetadata, turn int, name string, result string) *Event {
	return &Event{Type_: EventTypeToolResult, Metadata_: meta, Turn: turn, ToolName: name, Text: result}
}

func NewToolErrorEvent(meta EventMetadata, turn int, name string, err error) *Event {
	return &Event{Type_: EventTypeToolError, Metadata_: meta, Turn: turn, ToolName: name, Error: errString(err)}
}

func NewFeedbackEvent(meta EventMetadata, turn int, text string) *Event {
	return &Event{Type_: EventTypeFeedback, Metadata_: meta, Turn: turn, Text: text}
}

func NewFinalEvent(meta EventMetadata, turn int, text string) *Event {
	return &Event{Type_: EventTypeFinal, Metadata_: meta, Turn: turn, Text: text}
}

func NewErrorEvent(meta EventMetadata, turn int, err error) *Event {
	return &Event{Type_: EventTypeError, Metadata_: meta, Turn: turn, Error: errString(err)}
}

// NewEventFromJson decodes an event published by a sink.
func NewEventFromJson(b []byte) (*Event, error) {
	e := &Event{}
	if err := json.Unmarshal(b, e); err != nil {
		return nil, errors.Wrap(err, "could not decode event")
	}
	if e.Type_ == "" {
		return nil, errors.New("event has no type")
	}
	return e, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
