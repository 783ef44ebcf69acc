package agent

import "strings"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleError     Role = "error"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the per-task message buffer. It is never shared between
// tasks.
type Conversation []Message

func (c *Conversation) Append(role Role, content string) {
	*c = append(*c, Message{Role: role, Content: content})
}

// Last returns the content of the final message, or "" when empty.
func (c Conversation) Last() string {
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1].Content
}

func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

var roleLabels = map[Role]string{
	RoleUser:      "User: ",
	RoleAssistant: "Assistant: ",
	RoleTool:      "Tool Result: ",
	RoleSystem:    "System: ",
}

// FormatConversation renders the buffer the way it is replayed to the
// generator. Error messages are kept for history only and are skipped.
func FormatConversation(c Conversation) string {
	parts := make([]string, 0, len(c))
	for _, m := range c {
		label, ok := roleLabels[m.Role]
		if !ok {
			continue
		}
		parts = append(parts, label+m.Content)
	}
	return strings.Join(parts, "\n\n")
}
