// Package schema defines the point-in-time view of a target database that
// the SQL pipeline consumes: table summaries plus the connection descriptor
// needed to reach the database itself.
package schema

// ConnInfo is the raw connection descriptor for a target database. It is
// decoded from a project's stored configuration before a snapshot is built.
type ConnInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// Table summarizes one table in the target database.
type Table struct {
	Name        string `json:"name"`
	RowCount    int64  `json:"row_count"`
	ColumnCount int64  `json:"column_count"`
}

// Snapshot is a structural summary of a target database at a point in time.
// It is built fresh per request and treated as immutable afterwards.
type Snapshot struct {
	DatabaseName string   `json:"database_name"`
	Tables       []Table  `json:"tables"`
	Connected    bool     `json:"connection_status"`
	DatabaseInfo ConnInfo `json:"database_info"`
}
