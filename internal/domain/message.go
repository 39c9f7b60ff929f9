package domain

import "time"

// Role constants for provider message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnRole identifies who produced a transcript turn.
type TurnRole string

const (
	TurnUser       TurnRole = "user"
	TurnAssistant  TurnRole = "assistant"
	TurnSystemNote TurnRole = "system_note"
)

// Turn is one transcript entry. Turns are appended in order and never edited.
type Turn struct {
	Role    TurnRole `json:"role"`
	Content string   `json:"content"`
	// Agent is the agent that was active when the turn was produced.
	Agent string `json:"agent,omitempty"`
	// Incomplete marks an assistant turn whose stream was abandoned.
	Incomplete bool `json:"incomplete,omitempty"`
	// Error marks an assistant turn that reports a provider failure.
	Error     bool      `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message represents a single message sent to a provider.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
