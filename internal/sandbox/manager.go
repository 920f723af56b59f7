package sandbox

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Manager holds the process-wide sandbox registry, keyed by project
// identifier. At most one live sandbox exists per project; sandboxes are
// created lazily on first use and live until Cleanup or Close is called.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Sandbox
	logger   *slog.Logger

	// newSandbox is replaced in tests to inject doubles.
	newSandbox func(ctx context.Context, cfg Config, logger *slog.Logger) (*Sandbox, error)
}

// NewManager creates an empty sandbox registry. If logger is nil, a discard
// logger is used.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		sessions:   make(map[string]*Sandbox),
		logger:     logger,
		newSandbox: New,
	}
}

// Get returns the project's sandbox, creating it from cfg on first use.
// Subsequent calls for the same project ignore cfg and reuse the existing
// session.
func (m *Manager) Get(ctx context.Context, projectID string, cfg Config) (*Sandbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sb, ok := m.sessions[projectID]; ok {
		return sb, nil
	}

	m.logger.Info("creating sandbox", slog.String("project_id", projectID),
		slog.String("database", cfg.Database))
	sb, err := m.newSandbox(ctx, cfg, m.logger)
	if err != nil {
		return nil, err
	}
	m.sessions[projectID] = sb
	return sb, nil
}

// Cleanup tears down the project's sandbox, if any.
func (m *Manager) Cleanup(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sb, ok := m.sessions[projectID]
	if !ok {
		return nil
	}
	delete(m.sessions, projectID)
	m.logger.Info("closing sandbox", slog.String("project_id", projectID))
	return sb.Close()
}

// Close tears down every sandbox. Called at process shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, sb := range m.sessions {
		if err := sb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.sessions, id)
	}
	return firstErr
}

// Len reports the number of live sandboxes.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
