// Package project manages registered target databases: CRUD over the
// application store, decoding of stored connection descriptors, and building
// the schema snapshots the SQL pipeline consumes.
package project

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/quantum-lens/lens/internal/sandbox"
	"github.com/quantum-lens/lens/internal/store"
)

// ErrInvalidDescriptor marks a stored connection descriptor that cannot be
// decoded. It is a client-input problem, not a server fault.
var ErrInvalidDescriptor = errors.New("invalid connection descriptor")

// ProjectStore is the slice of the application store the service needs.
type ProjectStore interface {
	CreateProject(ctx context.Context, userID, name, description, encryptedPath string) (*store.Project, error)
	GetProject(ctx context.Context, id, userID string) (*store.Project, error)
	ListProjects(ctx context.Context, userID string) ([]*store.Project, error)
	UpdateProject(ctx context.Context, id, userID, name, description, encryptedPath string) error
	DeleteProject(ctx context.Context, id, userID string) error
}

// Service manages projects and their connection descriptors.
type Service struct {
	projects ProjectStore
	logger   *slog.Logger

	// openFn is replaced in tests to inject mock target connections.
	openFn openFunc
}

// NewService creates a project service. If logger is nil, a discard logger
// is used.
func NewService(projects ProjectStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{projects: projects, logger: logger, openFn: openTarget}
}

// descriptor is the JSON document stored (base64-encoded) in a project's
// encrypted_path column. Port tolerates both number and string forms, since
// stored descriptors exist in both.
type descriptor struct {
	Host     string   `json:"host"`
	Port     flexPort `json:"port"`
	User     string   `json:"user"`
	Password string   `json:"password"`
	Database string   `json:"database"`
}

// flexPort decodes a port given as either a JSON number or a string.
type flexPort int

func (p *flexPort) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*p = flexPort(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("port must be a number or string: %s", data)
	}
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", s, err)
	}
	*p = flexPort(n)
	return nil
}

// DecodeDescriptor turns a stored base64 connection descriptor into a
// sandbox configuration.
func DecodeDescriptor(encoded string) (sandbox.Config, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return sandbox.Config{}, fmt.Errorf("%w: bad base64: %v", ErrInvalidDescriptor, err)
	}

	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return sandbox.Config{}, fmt.Errorf("%w: bad document: %v", ErrInvalidDescriptor, err)
	}

	return sandbox.Config{
		Host:     d.Host,
		Port:     int(d.Port),
		User:     d.User,
		Password: d.Password,
		Database: d.Database,
	}, nil
}

// EncodeDescriptor is the inverse of DecodeDescriptor, used when creating or
// updating a project.
func EncodeDescriptor(cfg sandbox.Config) (string, error) {
	raw, err := json.Marshal(descriptor{
		Host:     cfg.Host,
		Port:     flexPort(cfg.Port),
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode connection descriptor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Create registers a new project for the user.
func (s *Service) Create(ctx context.Context, userID, name, description string, cfg sandbox.Config) (*store.Project, error) {
	encoded, err := EncodeDescriptor(cfg)
	if err != nil {
		return nil, err
	}
	return s.projects.CreateProject(ctx, userID, name, description, encoded)
}

// Get returns one project.
func (s *Service) Get(ctx context.Context, id, userID string) (*store.Project, error) {
	return s.projects.GetProject(ctx, id, userID)
}

// List returns the user's projects.
func (s *Service) List(ctx context.Context, userID string) ([]*store.Project, error) {
	return s.projects.ListProjects(ctx, userID)
}

// Update changes a project's metadata and, when cfg is non-nil, its
// connection descriptor.
func (s *Service) Update(ctx context.Context, id, userID, name, description string, cfg *sandbox.Config) error {
	existing, err := s.projects.GetProject(ctx, id, userID)
	if err != nil {
		return err
	}

	encoded := existing.EncryptedPath
	if cfg != nil {
		if encoded, err = EncodeDescriptor(*cfg); err != nil {
			return err
		}
	}
	if name == "" {
		name = existing.Name
	}
	if description == "" {
		description = existing.Description
	}

	return s.projects.UpdateProject(ctx, id, userID, name, description, encoded)
}

// Delete removes a project.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	return s.projects.DeleteProject(ctx, id, userID)
}

// Descriptor returns the decoded connection descriptor of a project.
func (s *Service) Descriptor(ctx context.Context, id, userID string) (sandbox.Config, error) {
	project, err := s.projects.GetProject(ctx, id, userID)
	if err != nil {
		return sandbox.Config{}, err
	}
	return DecodeDescriptor(project.EncryptedPath)
}
