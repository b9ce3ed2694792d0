package models

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Role      string    `json:"role"` // user, assistant, or system
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
