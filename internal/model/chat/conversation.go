package chat

import "time"

// Conversation is a durable, user-owned, persona-scoped thread.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	PersonaID string    `json:"persona_id" db:"persona_id"`
	Title     string    `json:"title" db:"title"`
	Summary   *string   `json:"summary,omitempty" db:"summary"`
	TurnCount int       `json:"turn_count" db:"turn_count"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ConversationListItem is the row shape returned by the conversation list endpoint.
type ConversationListItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	PersonaID string    `json:"persona_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListItem projects the conversation for listings.
func (c Conversation) ListItem() ConversationListItem {
	return ConversationListItem{ID: c.ID, Title: c.Title, PersonaID: c.PersonaID, UpdatedAt: c.UpdatedAt}
}
