package engine

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Role identifies who produced a conversation turn. Only the two values
// below are accepted; anything else is rejected at the boundary.
type Role string

const (
	// RoleUser marks a question from the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a prior answer from the system.
	RoleAssistant Role = "assistant"
)

// ChatTurn is one prior turn of the conversation, supplied by the caller
// with each question.
type ChatTurn struct {
	// Role is user or assistant.
	Role Role `json:"role"`

	// Content is the turn's text.
	Content string `json:"content"`
}

// historyMessages converts caller-supplied turns into model messages,
// rejecting unknown roles with ErrInvalidQuery.
func historyMessages(history []ChatTurn) ([]*schema.Message, error) {
	msgs := make([]*schema.Message, 0, len(history))
	for i, turn := range history {
		switch turn.Role {
		case RoleUser:
			msgs = append(msgs, schema.UserMessage(turn.Content))
		case RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(turn.Content, nil))
		default:
			return nil, fmt.Errorf("%w: history turn %d has unknown role %q", ErrInvalidQuery, i, turn.Role)
		}
	}
	return msgs, nil
}
