package chat

import "errors"

// Message roles accepted from clients.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrMessagesRequired rejects a request with a missing or empty message
	// list. The text is part of the API contract.
	ErrMessagesRequired = errors.New("Messages array is required")

	// ErrInvalidRole rejects a message whose role is not one of
	// system/user/assistant.
	ErrInvalidRole = errors.New("invalid message role")
)

// Message is a single turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is an ordered message list plus an optional model override.
type Request struct {
	Messages []Message `json:"messages"`
	Model    string    `json:"model,omitempty"`
}

// Validate classifies malformed requests before any network traffic.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return ErrMessagesRequired
	}

	for _, msg := range r.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return ErrInvalidRole
		}
	}
	return nil
}

// IsValidationError reports whether err is a client-error classification.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMessagesRequired) || errors.Is(err, ErrInvalidRole)
}

// StreamChunk is one relayed fragment on the websocket transport.
type StreamChunk struct {
	MessageID string `json:"messageId"`
	Delta     string `json:"delta,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Error     string `json:"error,omitempty"`
}
