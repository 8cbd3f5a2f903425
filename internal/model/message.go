package model

import "time"

// Message thread context kinds. Empty means a free-standing conversation.
var MessageContexts = []string{"", "listing", "property", "maintenance"}

type Thread struct {
	ID          int64     `json:"id"`
	Subject     string    `json:"subject"`
	ContextType string    `json:"context_type"`
	ContextID   string    `json:"context_id"`
	CreatedBy   *int64    `json:"created_by_user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Per-reader summary fields, filled by ListThreads.
	LastBody   string `json:"last_body,omitempty"`
	LastSender string `json:"last_sender,omitempty"`
	Unread     int    `json:"unread"`
}

type Post struct {
	ID            int64     `json:"id"`
	ThreadID      int64     `json:"thread_id"`
	SenderUserID  int64     `json:"sender_user_id"`
	SenderName    string    `json:"sender_name"`
	SenderAccount string    `json:"sender_account"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}
