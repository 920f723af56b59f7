// Package sandbox owns the isolated, project-scoped database connections the
// SQL pipeline executes generated statements against. Each sandbox wraps one
// live MySQL connection; a Manager keys sandboxes by project identifier and
// reuses them across requests.
package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds the connection descriptor for a target database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// DSN builds the MySQL connection string, applying the localhost/3306
// defaults when the descriptor omits them.
func (c Config) DSN() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.User = c.User
	mc.Passwd = c.Password
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Timeout = 10 * time.Second
	return mc.FormatDSN()
}

// ColumnInfo describes one column of a result set.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Outcome is the result of running one statement. Statement failures are
// reported here as data, never as an error return.
type Outcome struct {
	Success       bool             `json:"success"`
	QueryType     string           `json:"query_type"`
	Rows          []map[string]any `json:"rows"`
	TotalRows     int              `json:"total_rows"`
	AffectedRows  int64            `json:"affected_rows"`
	Columns       []ColumnInfo     `json:"columns"`
	ExecutionTime float64          `json:"execution_time"` // seconds
	Error         string           `json:"error,omitempty"`
}

// readLike statement kinds fetch rows; everything else runs in a transaction
// and reports an affected-row count.
var readLike = map[string]bool{
	"SELECT":   true,
	"SHOW":     true,
	"DESCRIBE": true,
	"EXPLAIN":  true,
}

// statementKind classifies a statement by its first whitespace-delimited
// token, upper-cased. This deliberately does not parse SQL; leading
// whitespace is trimmed and nothing more.
func statementKind(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// Sandbox is one live connection to one project's target database. Calls are
// serialized through an internal mutex, so concurrent requests for the same
// project never interleave on the connection.
type Sandbox struct {
	mu     sync.Mutex
	cfg    Config
	db     *sql.DB
	logger *slog.Logger

	// openFn is replaced in tests to inject mock connections.
	openFn func(driverName, dsn string) (*sql.DB, error)
}

// New creates a sandbox and eagerly establishes its connection. A connection
// failure here is fatal: no sandbox is returned.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Sandbox, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Sandbox{cfg: cfg, logger: logger, openFn: sql.Open}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sandbox) connect(ctx context.Context) error {
	db, err := s.openFn("mysql", s.cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open sandbox connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to mysql: %w", err)
	}
	// One live connection per project.
	db.SetMaxOpenConns(1)
	s.db = db
	return nil
}

// ensure re-establishes the connection transparently if the health check
// fails. One reconnect attempt, not a retry loop.
func (s *Sandbox) ensure(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.PingContext(ctx); err == nil {
			return nil
		}
		s.logger.Warn("sandbox connection lost, reconnecting",
			slog.String("database", s.cfg.Database))
		_ = s.db.Close()
		s.db = nil
	}
	return s.connect(ctx)
}

// Execute runs one statement and captures its outcome. Connection-level
// failures are returned as an error; statement failures are captured in the
// outcome with Success=false. Elapsed wall-clock time is always recorded.
func (s *Sandbox) Execute(ctx context.Context, stmt string, params ...any) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	out := &Outcome{QueryType: statementKind(stmt), Rows: []map[string]any{}}
	defer func() { out.ExecutionTime = time.Since(start).Seconds() }()

	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	if readLike[out.QueryType] {
		rows, err := s.db.QueryContext(ctx, stmt, params...)
		if err != nil {
			out.Error = err.Error()
			return out, nil
		}
		defer func() { _ = rows.Close() }()

		records, cols, err := scanRows(rows)
		if err != nil {
			out.Error = err.Error()
			return out, nil
		}
		out.Rows = records
		out.TotalRows = len(records)
		out.Columns = cols
		out.Success = true
		return out, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		out.Error = err.Error()
		return out, nil
	}
	res, err := tx.ExecContext(ctx, stmt, params...)
	if err != nil {
		_ = tx.Rollback()
		out.Error = err.Error()
		return out, nil
	}
	if err := tx.Commit(); err != nil {
		out.Error = err.Error()
		return out, nil
	}
	if affected, err := res.RowsAffected(); err == nil {
		out.AffectedRows = affected
	}
	out.Success = true
	return out, nil
}

// Close releases the underlying connection.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// scanRows drains a result set into ordered row maps and derives column
// metadata from the result descriptor.
func scanRows(rows *sql.Rows) ([]map[string]any, []ColumnInfo, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, err
	}

	cols := make([]ColumnInfo, len(types))
	for i, ct := range types {
		cols[i] = ColumnInfo{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	records := make([]map[string]any, 0)
	values := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		record := make(map[string]any, len(types))
		for i, ct := range types {
			record[ct.Name()] = normalizeValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return records, cols, nil
}

// normalizeValue converts driver byte slices to strings so row maps survive
// JSON encoding intact.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
