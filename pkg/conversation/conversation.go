package conversation

// Conversation is an append-only, ordered sequence of messages.
//
// A Conversation belongs to exactly one in-flight request. It is not safe for
// concurrent use and is never shared between requests: callers that need to
// hand the history to someone else use Messages or Clone, which return copies.
type Conversation struct {
	messages []Message
}

// NewConversation seeds a conversation with the given messages, in order.
func NewConversation(msgs ...Message) *Conversation {
	c := &Conversation{messages: make([]Message, 0, len(msgs)+8)}
	c.messages = append(c.messages, msgs...)
	return c
}

// Append adds messages at the end of the conversation.
func (c *Conversation) Append(msgs ...Message) {
	c.messages = append(c.messages, msgs...)
}

func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	return len(c.messages)
}

// Messages returns a copy of all messages.
func (c *Conversation) Messages() []Message {
	if c == nil {
		return nil
	}
	ret := make([]Message, len(c.messages))
	copy(ret, c.messages)
	return ret
}

// Last returns a copy of the last n messages (fewer if the conversation is shorter).
func (c *Conversation) Last(n int) []Message {
	if c == nil || n <= 0 {
		return nil
	}
	start := len(c.messages) - n
	if start < 0 {
		start = 0
	}
	ret := make([]Message, len(c.messages)-start)
	copy(ret, c.messages[start:])
	return ret
}

// LastMessage returns the most recent message, if any.
func (c *Conversation) LastMessage() (Message, bool) {
	if c.Len() == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Clone returns an independent conversation with the same history.
func (c *Conversation) Clone() *Conversation {
	return NewConversation(c.Messages()...)
}
