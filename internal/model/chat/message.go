package chat

import "time"

// Roles a turn may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged message in a session or conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidRole reports whether role is one the relay accepts.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// Message is a persisted turn.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Role           string    `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	ModelUsed      string    `json:"model_used,omitempty" db:"model_used"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Turn strips the persistence metadata.
func (m Message) Turn() Turn {
	return Turn{Role: m.Role, Content: m.Content}
}
