package pipeline

import "github.com/quantum-lens/lens/internal/sandbox"

// Kind discriminates the content shape of a Response.
type Kind string

const (
	KindText  Kind = "text"
	KindSQL   Kind = "sql"
	KindError Kind = "error"
)

// Response is the terminal object of one pipeline request. Content is a plain
// string for text responses, *SQLContent for sql, *ErrorContent for error.
type Response struct {
	Success bool `json:"success"`
	Type    Kind `json:"type"`
	Content any  `json:"content"`
}

// QueryResult carries the execution outcome inside a sql response.
type QueryResult struct {
	Rows          []map[string]any     `json:"rows"`
	Columns       []sandbox.ColumnInfo `json:"columns"`
	TotalRows     int                  `json:"total_rows"`
	ExecutionTime float64              `json:"execution_time"`
	AffectedRows  int64                `json:"affected_rows"`
}

// SQLContent is the content of a successful sql response.
type SQLContent struct {
	Query        string       `json:"query"`
	Result       *QueryResult `json:"result"`
	Analysis     string       `json:"analysis"`
	Optimization string       `json:"optimization"`
}

// ErrorContent is the content of an error response. Query and Analysis are
// omitted when the failure happened before a statement existed.
type ErrorContent struct {
	Query    string `json:"query,omitempty"`
	Error    string `json:"error"`
	Analysis string `json:"analysis,omitempty"`
}

func textResponse(message string) *Response {
	return &Response{Success: true, Type: KindText, Content: message}
}

func sqlResponse(content *SQLContent) *Response {
	return &Response{Success: true, Type: KindSQL, Content: content}
}

func errorResponse(content *ErrorContent) *Response {
	return &Response{Success: false, Type: KindError, Content: content}
}

func resultFromOutcome(out *sandbox.Outcome) *QueryResult {
	return &QueryResult{
		Rows:          out.Rows,
		Columns:       out.Columns,
		TotalRows:     out.TotalRows,
		ExecutionTime: out.ExecutionTime,
		AffectedRows:  out.AffectedRows,
	}
}
