package domain

// Role tags the author of a chat message.
type Role int

const (
	RoleUser Role = iota
	RoleAI
	// RoleSystem only appears in requests sent to the model.
	RoleSystem
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAI:
		return "ai"
	case RoleSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ChatMessage is one entry of a conversation.
type ChatMessage struct {
	Role    Role
	Content string
}

// UserMessage builds a message authored by the user.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AIMessage builds a message authored by the model.
func AIMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAI, Content: content}
}

// Turn is one completed question/answer exchange.
type Turn struct {
	Question string
	Answer   string
}

// Messages flattens turns into alternating user/AI messages.
func Messages(turns []Turn) []ChatMessage {
	out := make([]ChatMessage, 0, 2*len(turns))
	for _, t := range turns {
		out = append(out, UserMessage(t.Question), AIMessage(t.Answer))
	}
	return out
}
