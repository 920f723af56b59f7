// Package chat implements free-form conversations with the language model,
// persisted as sessions and messages in the application store.
package chat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/quantum-lens/lens/internal/llm"
	"github.com/quantum-lens/lens/internal/store"
)

// maxTitleLen caps the session title derived from the first message.
const maxTitleLen = 60

// ChatStore is the slice of the application store the service needs.
type ChatStore interface {
	CreateChatSession(ctx context.Context, id, userID, projectID, title string) (*store.ChatSession, error)
	GetChatSession(ctx context.Context, id, userID string) (*store.ChatSession, error)
	ListChatSessions(ctx context.Context, userID string) ([]*store.ChatSession, error)
	AppendChatMessage(ctx context.Context, sessionID, role, content string) (*store.ChatMessage, error)
	ListChatMessages(ctx context.Context, sessionID string) ([]*store.ChatMessage, error)
}

// Completer is the model surface the service talks to. *llm.Gateway
// implements it.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Service runs conversations.
type Service struct {
	store     ChatStore
	completer Completer
	logger    *slog.Logger
}

// NewService creates a chat service. If logger is nil, a discard logger is
// used.
func NewService(chatStore ChatStore, completer Completer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{store: chatStore, completer: completer, logger: logger}
}

// Completion appends the user message to the session (creating the session
// when sessionID is empty), asks the model for a reply with the full history
// as context, persists the reply and returns it with the session identifier.
func (s *Service) Completion(ctx context.Context, userID, sessionID, projectID, message string) (string, string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", "", fmt.Errorf("message must not be empty")
	}

	if sessionID == "" {
		session, err := s.store.CreateChatSession(ctx, "", userID, projectID, deriveTitle(message))
		if err != nil {
			return "", "", err
		}
		sessionID = session.ID
	} else if _, err := s.store.GetChatSession(ctx, sessionID, userID); err != nil {
		return "", "", err
	}

	history, err := s.store.ListChatMessages(ctx, sessionID)
	if err != nil {
		return "", "", err
	}

	if _, err := s.store.AppendChatMessage(ctx, sessionID, "user", message); err != nil {
		return "", "", err
	}

	conversation := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		conversation = append(conversation, llm.Message{Role: m.Role, Content: m.Content})
	}
	conversation = append(conversation, llm.Message{Role: "user", Content: message})

	reply, err := s.completer.Complete(ctx, conversation)
	if err != nil {
		return "", "", fmt.Errorf("chat completion failed: %w", err)
	}

	if _, err := s.store.AppendChatMessage(ctx, sessionID, "assistant", reply); err != nil {
		return "", "", err
	}

	return reply, sessionID, nil
}

// Sessions lists the user's conversations, most recently active first.
func (s *Service) Sessions(ctx context.Context, userID string) ([]*store.ChatSession, error) {
	return s.store.ListChatSessions(ctx, userID)
}

// Messages returns a conversation's messages after checking the caller owns
// it.
func (s *Service) Messages(ctx context.Context, userID, sessionID string) ([]*store.ChatMessage, error) {
	if _, err := s.store.GetChatSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return s.store.ListChatMessages(ctx, sessionID)
}

// deriveTitle builds a session title from the opening message. Truncation
// counts runes so a multi-byte character is never cut in half.
func deriveTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= maxTitleLen {
		return message
	}
	return string(runes[:maxTitleLen]) + "..."
}
