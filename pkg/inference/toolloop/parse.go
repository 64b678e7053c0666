package toolloop

import (
	"regexp"
)

var (
	// Tool: name(key="value", ...) on a single line. The first ')' closes the call.
	toolCallRegexp = regexp.MustCompile(`Tool:\s*(\w+)\((.*?)\)`)
	toolArgRegexp  = regexp.MustCompile(`(\w+)="([^"]*?)"`)
)

// ToolCall is a tool invocation extracted from a model reply.
type ToolCall struct {
	Name string            `json:"name" yaml:"name"`
	Args map[string]string `json:"args" yaml:"args"`
}

// ParseToolCall extracts the first tool call from text. Arguments are plain
// string pairs; a repeated key keeps its last value. A call without any
// well-formed pair yields an empty argument map.
func ParseToolCall(text string) (ToolCall, bool) {
	m := toolCallRegexp.FindStringSubmatch(text)
	if m == nil {
		return ToolCall{}, false
	}

	args := map[string]string{}
	for _, pair := range toolArgRegexp.FindAllStringSubmatch(m[2], -1) {
		args[pair[1]] = pair[2]
	}

	return ToolCall{Name: m[1], Args: args}, true
}
