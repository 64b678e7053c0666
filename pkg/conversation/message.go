package conversation

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleAssistant, RoleUser:
		return true
	default:
		return false
	}
}

// Message is a single role-tagged entry of a conversation. Messages are values:
// once appended to a Conversation they are never modified.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

func NewChatMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

func NewSystemMessage(content string) Message {
	return NewChatMessage(RoleSystem, content)
}

func NewUserMessage(content string) Message {
	return NewChatMessage(RoleUser, content)
}

func NewAssistantMessage(content string) Message {
	return NewChatMessage(RoleAssistant, content)
}

// IsBlank reports whether the message content is empty or whitespace only.
func (m Message) IsBlank() bool {
	return strings.TrimSpace(m.Content) == ""
}

// Preview returns the content truncated to at most n runes, for logging.
func (m Message) Preview(n int) string {
	runes := []rune(m.Content)
	if n <= 0 || len(runes) <= n {
		return m.Content
	}
	return string(runes[:n]) + "..."
}

func (m Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}
