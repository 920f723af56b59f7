package sandbox

import (
	"context"
	"fmt"
)

// TableSchema describes one table: columns, indexes and foreign keys, as
// reported by the target database itself.
type TableSchema struct {
	Columns     []map[string]any `json:"columns"`
	Indexes     []map[string]any `json:"indexes"`
	ForeignKeys []map[string]any `json:"foreign_keys"`
}

// TableInfo summarizes one table for DescribeDatabase.
type TableInfo struct {
	Name            string       `json:"name"`
	RowCount        int64        `json:"row_count"`
	CreateStatement string       `json:"create_statement"`
	Schema          *TableSchema `json:"schema"`
}

// DatabaseInfo is the full introspection result for a target database.
type DatabaseInfo struct {
	Tables       []TableInfo `json:"tables"`
	TotalTables  int         `json:"total_tables"`
	DatabaseName string      `json:"database_name"`
}

// DescribeTable returns columns, indexes and foreign keys for one table.
func (s *Sandbox) DescribeTable(ctx context.Context, table string) (*TableSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	return s.describeTable(ctx, table)
}

// describeTable is the lock-free body shared with DescribeDatabase.
func (s *Sandbox) describeTable(ctx context.Context, table string) (*TableSchema, error) {
	columns, err := s.queryMaps(ctx, fmt.Sprintf("DESCRIBE `%s`", table))
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}

	indexes, err := s.queryMaps(ctx, fmt.Sprintf("SHOW INDEXES FROM `%s`", table))
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes for %s: %w", table, err)
	}

	foreignKeys, err := s.queryMaps(ctx, `
		SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list foreign keys for %s: %w", table, err)
	}

	return &TableSchema{Columns: columns, Indexes: indexes, ForeignKeys: foreignKeys}, nil
}

// DescribeDatabase walks every table in the connected database and returns
// row counts, create statements and per-table schemas.
func (s *Sandbox) DescribeDatabase(ctx context.Context) (*DatabaseInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	names, err := s.tableNames(ctx)
	if err != nil {
		return nil, err
	}

	info := &DatabaseInfo{
		Tables:       make([]TableInfo, 0, len(names)),
		TotalTables:  len(names),
		DatabaseName: s.cfg.Database,
	}

	for _, name := range names {
		var rowCount int64
		// Exact counts, matching what the snapshot promises callers.
		countStmt := fmt.Sprintf("SELECT COUNT(*) FROM `%s`", name)
		if err := s.db.QueryRowContext(ctx, countStmt).Scan(&rowCount); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}

		createStmt, err := s.createStatement(ctx, name)
		if err != nil {
			return nil, err
		}

		tableSchema, err := s.describeTable(ctx, name)
		if err != nil {
			return nil, err
		}

		info.Tables = append(info.Tables, TableInfo{
			Name:            name,
			RowCount:        rowCount,
			CreateStatement: createStmt,
			Schema:          tableSchema,
		})
	}

	return info, nil
}

func (s *Sandbox) tableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Sandbox) createStatement(ctx context.Context, table string) (string, error) {
	// SHOW CREATE TABLE returns (table name, create statement).
	var name, stmt string
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SHOW CREATE TABLE `%s`", table))
	if err := row.Scan(&name, &stmt); err != nil {
		return "", fmt.Errorf("failed to get create statement for %s: %w", table, err)
	}
	return stmt, nil
}

// queryMaps runs a read-only query and returns its rows as ordered maps.
// The caller must hold s.mu.
func (s *Sandbox) queryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records, _, err := scanRows(rows)
	return records, err
}
