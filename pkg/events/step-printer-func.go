package events

import (
	"fmt"
	"io"

	"github.com/ThreeDotsLabs/watermill/message"
	"gopkg.in/yaml.v3"
)

// StepPrinterFunc returns a watermill handler that prints agent events in a
// human readable form. Partial completions are streamed inline.
func StepPrinterFunc(w io.Writer) func(msg *message.Message) error {
	streaming := false

	return func(msg *message.Message) error {
		defer msg.Ack()

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			return err
		}

		if e.Type() != EventTypePartialCompletion && streaming {
			streaming = false
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}

		switch e.Type() {
		case EventTypeTurnStart:
			_, err = fmt.Fprintf(w, "\n--- turn %d ---\n", e.Turn)
		case EventTypePartialCompletion:
			streaming = true
			_, err = fmt.Fprint(w, e.Delta)
		case EventTypeReply:
			_, err = fmt.Fprintf(w, "[assistant] %s\n", e.Text)
		case EventTypeToolCall:
			v_, err_ := yaml.Marshal(map[string]interface{}{"tool": e.ToolName, "args": e.ToolArgs})
			if err_ != nil {
				return err_
			}
			_, err = fmt.Fprintf(w, "%s", v_)
		case EventTypeToolResult:
			_, err = fmt.Fprintf(w, "[%s] %s\n", e.ToolName, e.Text)
		case EventTypeToolError:
			_, err = fmt.Fprintf(w, "[%s] error: %s\n", e.ToolName, e.Error)
		case EventTypeFeedback:
			_, err = fmt.Fprintf(w, "[system] %s\n", e.Text)
		case EventTypeFinal:
			_, err = fmt.Fprintf(w, "\n=== done after %d turns: %s\n", e.Turn, e.Text)
		case EventTypeError:
			_, err = fmt.Fprintf(w, "\n=== failed at turn %d: %s\n", e.Turn, e.Error)
		}

		return err
	}
}
