package llm

import (
	"context"
	"errors"
)

// ErrExternalService wraps every failure talking to the LLM backend:
// transport, auth, rate limiting, or an empty completion.
var ErrExternalService = errors.New("llm backend error")

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options tune one completion. Nil pointers fall back to the client defaults.
type Options struct {
	// JSON asks the backend for a single JSON object response.
	JSON        bool
	Temperature *float32
	MaxTokens   *int
}

// Client is a chat-completion backend.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// System and User are shorthands for building message lists.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

func User(content string) Message { return Message{Role: RoleUser, Content: content} }
