package project

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/quantum-lens/lens/internal/sandbox"
	"github.com/quantum-lens/lens/internal/schema"
)

// openFunc opens a connection to a target database.
type openFunc func(dsn string) (*sql.DB, error)

func openTarget(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

// Snapshot builds a point-in-time schema snapshot for a project's target
// database. A connection failure is not an error: the snapshot comes back
// with connection_status=false and the descriptor intact, so callers can
// still show the project and report the problem.
func (s *Service) Snapshot(ctx context.Context, id, userID string) (*schema.Snapshot, error) {
	cfg, err := s.Descriptor(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	snap := &schema.Snapshot{
		DatabaseName: cfg.Database,
		Tables:       []schema.Table{},
		DatabaseInfo: schema.ConnInfo{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Database,
		},
	}

	tables, err := s.readTables(ctx, cfg)
	if err != nil {
		s.logger.Warn("target database unreachable, returning disconnected snapshot",
			slog.String("project_id", id), slog.String("error", err.Error()))
		return snap, nil
	}

	snap.Connected = true
	snap.Tables = tables
	return snap, nil
}

// readTables queries information_schema for the table summaries of the
// configured database.
func (s *Service) readTables(ctx context.Context, cfg sandbox.Config) ([]schema.Table, error) {
	db, err := s.openFn(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open target database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to target database: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT t.TABLE_NAME,
		       COALESCE(t.TABLE_ROWS, 0),
		       (SELECT COUNT(*) FROM information_schema.COLUMNS c
		        WHERE c.TABLE_SCHEMA = t.TABLE_SCHEMA AND c.TABLE_NAME = t.TABLE_NAME)
		FROM information_schema.TABLES t
		WHERE t.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY t.TABLE_NAME`, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to read table metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]schema.Table, 0)
	for rows.Next() {
		var t schema.Table
		if err := rows.Scan(&t.Name, &t.RowCount, &t.ColumnCount); err != nil {
			return nil, fmt.Errorf("failed to scan table metadata: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}
