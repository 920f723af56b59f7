package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Project is a registered target database. EncryptedPath carries the encoded
// connection descriptor; decoding it is the project service's concern.
type Project struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	EncryptedPath string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateProject inserts a new project owned by the given user.
func (s *Store) CreateProject(ctx context.Context, userID, name, description, encryptedPath string) (*Project, error) {
	project := &Project{
		ID:            generateID(),
		UserID:        userID,
		Name:          name,
		Description:   description,
		EncryptedPath: encryptedPath,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, name, description, encrypted_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.UserID, project.Name, project.Description,
		project.EncryptedPath, project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return project, nil
}

// GetProject retrieves a project by identifier, scoped to its owner.
func (s *Store) GetProject(ctx context.Context, id, userID string) (*Project, error) {
	project := &Project{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, encrypted_path, created_at, updated_at
		 FROM projects WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&project.ID, &project.UserID, &project.Name, &project.Description,
		&project.EncryptedPath, &project.CreatedAt, &project.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// ListProjects returns every project owned by the user, newest first.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, encrypted_path, created_at, updated_at
		 FROM projects WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	projects := make([]*Project, 0)
	for rows.Next() {
		project := &Project{}
		if err := rows.Scan(&project.ID, &project.UserID, &project.Name, &project.Description,
			&project.EncryptedPath, &project.CreatedAt, &project.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// UpdateProject updates the mutable fields of a project.
func (s *Store) UpdateProject(ctx context.Context, id, userID, name, description, encryptedPath string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, description = ?, encrypted_path = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		name, description, encryptedPath, time.Now().UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("project: %w", ErrNotFound)
	}
	return nil
}

// DeleteProject removes a project.
func (s *Store) DeleteProject(ctx context.Context, id, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM projects WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("project: %w", ErrNotFound)
	}
	return nil
}
