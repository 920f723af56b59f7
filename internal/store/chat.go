package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ChatSession groups the messages of one conversation.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one turn in a conversation. Role is "user" or "assistant".
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateChatSession inserts a new conversation. projectID may be empty for
// conversations not bound to a project.
func (s *Store) CreateChatSession(ctx context.Context, id, userID, projectID, title string) (*ChatSession, error) {
	if id == "" {
		id = generateID()
	}
	session := &ChatSession{
		ID:        id,
		UserID:    userID,
		ProjectID: projectID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	var project any
	if projectID != "" {
		project = projectID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, project_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, project, session.Title, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	return session, nil
}

// GetChatSession retrieves a conversation, scoped to its owner.
func (s *Store) GetChatSession(ctx context.Context, id, userID string) (*ChatSession, error) {
	session := &ChatSession{}
	var projectID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, project_id, title, created_at, updated_at
		 FROM chat_sessions WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&session.ID, &session.UserID, &projectID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	if projectID.Valid {
		session.ProjectID = projectID.String
	}
	return session, nil
}

// ListChatSessions returns the user's conversations, most recently active
// first.
func (s *Store) ListChatSessions(ctx context.Context, userID string) ([]*ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, project_id, title, created_at, updated_at
		 FROM chat_sessions WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]*ChatSession, 0)
	for rows.Next() {
		session := &ChatSession{}
		var projectID sql.NullString
		if err := rows.Scan(&session.ID, &session.UserID, &projectID, &session.Title,
			&session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		if projectID.Valid {
			session.ProjectID = projectID.String
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// AppendChatMessage stores one message and bumps the session's activity time.
func (s *Store) AppendChatMessage(ctx context.Context, sessionID, role, content string) (*ChatMessage, error) {
	message := &ChatMessage{
		ID:        generateID(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, message.Role, message.Content, message.CreatedAt,
	); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to append chat message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		message.CreatedAt, message.SessionID,
	); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to touch chat session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chat message: %w", err)
	}

	return message, nil
}

// ListChatMessages returns a conversation's messages in chronological order.
func (s *Store) ListChatMessages(ctx context.Context, sessionID string) ([]*ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at
		 FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*ChatMessage, 0)
	for rows.Next() {
		message := &ChatMessage{}
		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role,
			&message.Content, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}
