package domain

import (
	"encoding/json"
	"time"
)

// MessageRole identifies who authored a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "USER"
	RoleAssistant MessageRole = "ASSISTANT"
)

// MessageType distinguishes successful results from generation errors.
type MessageType string

const (
	MessageResult MessageType = "RESULT"
	MessageError  MessageType = "ERROR"
)

// MaxPromptLength bounds the size of a user prompt.
const MaxPromptLength = 10000

// Project groups the conversation for one generated app.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a single chat entry. Assistant messages are written by the
// code-generation worker, which may attach a Fragment.
type Message struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectId"`
	Content   string      `json:"content"`
	Role      MessageRole `json:"role"`
	Type      MessageType `json:"type"`
	Fragment  *Fragment   `json:"fragment,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Fragment is the generated output attached to an assistant message.
type Fragment struct {
	ID         string          `json:"id"`
	MessageID  string          `json:"messageId"`
	SandboxURL string          `json:"sandboxUrl"`
	Title      string          `json:"title"`
	Files      json.RawMessage `json:"files"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// AgentRunEvent is the job payload published for the code-generation worker.
type AgentRunEvent struct {
	Value     string `json:"value"`
	ProjectID string `json:"projectId"`
}
