package pipeline

import (
	"context"

	"github.com/quantum-lens/lens/internal/sandbox"
)

// Session is the slice of a sandbox the pipeline uses.
type Session interface {
	Execute(ctx context.Context, stmt string, params ...any) (*sandbox.Outcome, error)
	DescribeDatabase(ctx context.Context) (*sandbox.DatabaseInfo, error)
}

// SessionPool hands out per-project sessions and owns their lifecycle.
type SessionPool interface {
	Get(ctx context.Context, projectID string, cfg sandbox.Config) (Session, error)
	Cleanup(projectID string) error
	Close() error
}

// managerPool adapts *sandbox.Manager to the SessionPool interface.
type managerPool struct {
	m *sandbox.Manager
}

// NewManagerPool wraps a sandbox manager as a SessionPool.
func NewManagerPool(m *sandbox.Manager) SessionPool {
	return &managerPool{m: m}
}

func (p *managerPool) Get(ctx context.Context, projectID string, cfg sandbox.Config) (Session, error) {
	sb, err := p.m.Get(ctx, projectID, cfg)
	if err != nil {
		return nil, err
	}
	return sb, nil
}

func (p *managerPool) Cleanup(projectID string) error { return p.m.Cleanup(projectID) }

func (p *managerPool) Close() error { return p.m.Close() }
