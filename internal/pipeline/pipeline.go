// Package pipeline orchestrates one natural-language-to-SQL request: intent
// classification, SQL synthesis, sandboxed execution and narrative assembly.
// Every request degrades to a well-formed Response; no failure escapes to the
// hosting process.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/quantum-lens/lens/internal/llm"
	"github.com/quantum-lens/lens/internal/sandbox"
	"github.com/quantum-lens/lens/internal/schema"
)

const (
	defaultRedirect     = "I help with database questions. Is there anything about your data I can help you with?"
	legacyRedirect      = "Non-SQL query detected"
	defaultAnalysis     = "Query executed successfully"
	defaultOptimization = "No optimization suggestions available"
	synthesisFailure    = "Failed to generate SQL query"
	genericFailure      = "Failed to process message"
)

// Generator is the language-model surface the pipeline depends on.
// *llm.Gateway implements it.
type Generator interface {
	Generate(ctx context.Context, kind llm.PromptKind, payload map[string]any) (string, error)
}

var _ Generator = (*llm.Gateway)(nil)

// Pipeline is the request orchestrator. One instance is shared across
// concurrent requests; per-project serialization happens inside the sandbox.
type Pipeline struct {
	gateway Generator
	pool    SessionPool
	logger  *slog.Logger
}

// New creates a pipeline over the given gateway and session pool. If logger
// is nil, a discard logger is used.
func New(gateway Generator, pool SessionPool, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{gateway: gateway, pool: pool, logger: logger}
}

// combinedResult is the JSON object the comprehensive prompt returns. Any
// subset of keys may be present; absent keys fall back to defaults.
type combinedResult struct {
	IsSQLQuery   bool    `json:"is_sql_query"`
	Response     string  `json:"response"`
	SQLQuery     string  `json:"sql_query"`
	Analysis     string  `json:"analysis"`
	Optimization string  `json:"optimization"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// ProcessMessage runs the full pipeline for one user message. It never
// returns an error: any failure without a safer handling path degrades to a
// generic error response.
func (p *Pipeline) ProcessMessage(ctx context.Context, message, projectID string, snap *schema.Snapshot, extra map[string]any) *Response {
	resp, err := p.process(ctx, message, projectID, snap, extra)
	if err != nil {
		p.logger.Error("pipeline request failed",
			slog.String("project_id", projectID), slog.String("error", err.Error()))
		return errorResponse(&ErrorContent{Error: genericFailure})
	}
	return resp
}

// process implements the combined strategy: one comprehensive call carries
// classification, synthesis and narrative together. Only a response that
// fails to parse as JSON falls back to the legacy multi-call strategy.
func (p *Pipeline) process(ctx context.Context, message, projectID string, snap *schema.Snapshot, extra map[string]any) (*Response, error) {
	payload := map[string]any{
		"user_message": message,
		"schema":       snap,
	}
	if len(extra) > 0 {
		payload["context"] = extra
	}

	raw, err := p.gateway.Generate(ctx, llm.KindComprehensive, payload)
	if err != nil {
		return nil, err
	}

	var combined combinedResult
	if err := json.Unmarshal([]byte(stripFences(raw)), &combined); err != nil {
		p.logger.Warn("combined response is not JSON, falling back to legacy strategy",
			slog.String("project_id", projectID))
		return p.processLegacy(ctx, message, projectID, snap)
	}

	if !combined.IsSQLQuery {
		reply := combined.Response
		if strings.TrimSpace(reply) == "" {
			reply = defaultRedirect
		}
		return textResponse(reply), nil
	}

	stmt := strings.TrimSpace(combined.SQLQuery)
	if stmt == "" {
		return errorResponse(&ErrorContent{Error: synthesisFailure}), nil
	}

	out, failed, err := p.runStatement(ctx, projectID, stmt, snap)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		return failed, nil
	}

	analysis := combined.Analysis
	if strings.TrimSpace(analysis) == "" {
		analysis = defaultAnalysis
	}
	optimization := combined.Optimization
	if strings.TrimSpace(optimization) == "" {
		optimization = defaultOptimization
	}

	return sqlResponse(&SQLContent{
		Query:        stmt,
		Result:       resultFromOutcome(out),
		Analysis:     analysis,
		Optimization: optimization,
	}), nil
}

// processLegacy is the multi-call strategy: intent, generator, then analyzer
// and optimizer after a successful execution.
func (p *Pipeline) processLegacy(ctx context.Context, message, projectID string, snap *schema.Snapshot) (*Response, error) {
	verdict, err := p.gateway.Generate(ctx, llm.KindIntent, map[string]any{"user_message": message})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(verdict) != "YES" {
		return textResponse(legacyRedirect), nil
	}

	generated, err := p.gateway.Generate(ctx, llm.KindGenerator, map[string]any{
		"schema": snap,
		"query":  message,
	})
	if err != nil {
		return nil, err
	}
	stmt := strings.TrimSpace(stripFences(generated))
	if stmt == "" {
		return errorResponse(&ErrorContent{Error: synthesisFailure}), nil
	}

	out, failed, err := p.runStatement(ctx, projectID, stmt, snap)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		return failed, nil
	}

	return sqlResponse(&SQLContent{
		Query:        stmt,
		Result:       resultFromOutcome(out),
		Analysis:     p.narrative(ctx, llm.KindAnalyzer, defaultAnalysis, map[string]any{"query": stmt, "result": out, "user_message": message}),
		Optimization: p.narrative(ctx, llm.KindOptimizer, defaultOptimization, map[string]any{"query": stmt, "schema": snap}),
	}), nil
}

// runStatement acquires the project's sandbox and executes one statement.
// It returns the outcome on success, a ready error response when the
// statement failed and error-recovery ran, or an error for acquisition
// failures.
func (p *Pipeline) runStatement(ctx context.Context, projectID, stmt string, snap *schema.Snapshot) (*sandbox.Outcome, *Response, error) {
	sess, err := p.pool.Get(ctx, projectID, sandboxConfig(snap))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire sandbox: %w", err)
	}

	out, err := sess.Execute(ctx, stmt)
	if err != nil {
		return nil, p.recover(ctx, stmt, err.Error(), snap), nil
	}
	if !out.Success {
		return nil, p.recover(ctx, stmt, out.Error, snap), nil
	}
	return out, nil, nil
}

// recover issues exactly one error-prompt call and assembles the error
// response. The failing statement is never re-executed.
func (p *Pipeline) recover(ctx context.Context, query, errText string, snap *schema.Snapshot) *Response {
	content := &ErrorContent{Query: query, Error: errText}

	explanation, err := p.gateway.Generate(ctx, llm.KindError, map[string]any{
		"query":  query,
		"error":  errText,
		"schema": snap,
	})
	if err != nil {
		p.logger.Warn("error explanation failed", slog.String("error", err.Error()))
	} else {
		content.Analysis = strings.TrimSpace(explanation)
	}
	return errorResponse(content)
}

// narrative requests one analysis or optimization text, substituting the
// default when the call fails or comes back blank.
func (p *Pipeline) narrative(ctx context.Context, kind llm.PromptKind, fallback string, payload map[string]any) string {
	text, err := p.gateway.Generate(ctx, kind, payload)
	if err != nil {
		p.logger.Warn("narrative generation failed",
			slog.String("kind", string(kind)), slog.String("error", err.Error()))
		return fallback
	}
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	return strings.TrimSpace(text)
}

// sandboxConfig derives a connection descriptor from the snapshot. Host and
// port defaults are applied by the sandbox itself.
func sandboxConfig(snap *schema.Snapshot) sandbox.Config {
	info := snap.DatabaseInfo
	cfg := sandbox.Config{
		Host:     info.Host,
		Port:     info.Port,
		User:     info.User,
		Password: info.Password,
		Database: info.Database,
	}
	if cfg.Database == "" {
		cfg.Database = snap.DatabaseName
	}
	return cfg
}

// stripFences removes a markdown code fence around a model response, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```sql")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
