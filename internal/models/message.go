package models

import "time"

// Role tags a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleModel     Role = "model"
)

// Message is one entry of the chat transcript shown to the user.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one exchange unit of the conversation kept with the document model.
// The first turn of a conversation carries the document itself.
type Turn struct {
	Role         Role   `json:"role"`
	Text         string `json:"text"`
	WithDocument bool   `json:"with_document,omitempty"`
}
