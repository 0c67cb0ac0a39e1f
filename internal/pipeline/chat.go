package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
)

// Greeting opens every conversation.
const Greeting = "Hello, welcome to chat!"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered chat history. Callers own it; Chat never
// modifies a Conversation in place.
type Conversation []Message

// NewConversation starts a history with the assistant greeting.
func NewConversation() Conversation {
	return Conversation{{Role: RoleAssistant, Content: Greeting}}
}

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Chat answers follow-up questions about an analyzed statement, one model
// call per question.
type Chat struct {
	client llm.Client
	model  llm.Model
}

// NewChat creates a Chat using the chat model.
func NewChat(client llm.Client, models Models) *Chat {
	return &Chat{client: client, model: models.Chat}
}

// Ask answers question using the statement digest as context and returns
// history extended with the question and the answer.
func (c *Chat) Ask(ctx context.Context, history Conversation, question, digest string) (Conversation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return history, ErrEmptyQuestion
	}

	answer, err := c.client.Generate(ctx, c.model, buildChatPrompt(history, question, digest))
	if err != nil {
		return history, fmt.Errorf("Chat.Ask: %w", err)
	}

	next := make(Conversation, len(history), len(history)+2)
	copy(next, history)
	return append(next,
		Message{Role: RoleUser, Content: question},
		Message{Role: RoleAssistant, Content: answer},
	), nil
}

// buildChatPrompt renders earlier turns (minus the greeting) followed by
// the question and the statement context.
func buildChatPrompt(history Conversation, question, digest string) string {
	var b strings.Builder
	for _, m := range history {
		if m.Role == RoleAssistant && m.Content == Greeting {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(digest)
	return b.String()
}
