package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantum-lens/lens/internal/llm"
	"github.com/quantum-lens/lens/internal/schema"
)

// ExecuteQuery runs a caller-supplied query directly. Input that the intent
// check flags as natural language is first turned into SQL. Like
// ProcessMessage, every failure degrades to an error response.
func (p *Pipeline) ExecuteQuery(ctx context.Context, query, projectID string, snap *schema.Snapshot) *Response {
	resp, err := p.executeDirect(ctx, query, projectID, snap)
	if err != nil {
		p.logger.Error("direct execution failed",
			slog.String("project_id", projectID), slog.String("error", err.Error()))
		return errorResponse(&ErrorContent{Error: genericFailure})
	}
	return resp
}

func (p *Pipeline) executeDirect(ctx context.Context, query, projectID string, snap *schema.Snapshot) (*Response, error) {
	verdict, err := p.gateway.Generate(ctx, llm.KindIntent, map[string]any{"user_message": query})
	if err != nil {
		return nil, err
	}

	stmt := strings.TrimSpace(query)
	// A negative verdict means the input is natural language, not SQL, so
	// synthesize a statement from it first.
	if strings.Contains(strings.ToUpper(verdict), "NO") {
		generated, err := p.gateway.Generate(ctx, llm.KindGenerator, map[string]any{
			"schema": snap,
			"query":  query,
		})
		if err != nil {
			return nil, err
		}
		stmt = strings.TrimSpace(stripFences(generated))
		if stmt == "" {
			return errorResponse(&ErrorContent{Error: synthesisFailure}), nil
		}
	}

	out, failed, err := p.runStatement(ctx, projectID, stmt, snap)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		return failed, nil
	}

	analysis := defaultAnalysis
	if out.TotalRows > 0 {
		analysis = p.narrative(ctx, llm.KindAnalyzer, defaultAnalysis,
			map[string]any{"query": stmt, "result": out})
	}

	return sqlResponse(&SQLContent{
		Query:        stmt,
		Result:       resultFromOutcome(out),
		Analysis:     analysis,
		Optimization: defaultOptimization,
	}), nil
}

// QuerySuggestions introspects the project's database and asks the model for
// example queries a user might run against it. A non-empty userInput grounds
// the suggestions in what the user is trying to do.
func (p *Pipeline) QuerySuggestions(ctx context.Context, projectID, userInput string, snap *schema.Snapshot) (string, error) {
	sess, err := p.pool.Get(ctx, projectID, sandboxConfig(snap))
	if err != nil {
		return "", fmt.Errorf("failed to acquire sandbox: %w", err)
	}

	info, err := sess.DescribeDatabase(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to introspect database: %w", err)
	}

	payload := map[string]any{
		"schema": info,
		"query":  "Suggest useful example queries a user could run against this database.",
	}
	if input := strings.TrimSpace(userInput); input != "" {
		payload["user_input"] = input
	}

	text, err := p.gateway.Generate(ctx, llm.KindGenerator, payload)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ExplainQuery runs the statement under EXPLAIN and narrates the plan. The
// statement itself is never executed.
func (p *Pipeline) ExplainQuery(ctx context.Context, query, projectID string, snap *schema.Snapshot) *Response {
	stmt := "EXPLAIN FORMAT=JSON " + strings.TrimSpace(query)

	out, failed, err := p.runStatement(ctx, projectID, stmt, snap)
	if err != nil {
		p.logger.Error("explain failed",
			slog.String("project_id", projectID), slog.String("error", err.Error()))
		return errorResponse(&ErrorContent{Error: genericFailure})
	}
	if failed != nil {
		return failed
	}

	return sqlResponse(&SQLContent{
		Query:        query,
		Result:       resultFromOutcome(out),
		Analysis:     p.narrative(ctx, llm.KindOptimizer, defaultOptimization, map[string]any{"query": query, "plan": out.Rows}),
		Optimization: defaultOptimization,
	})
}

// OptimizeQuery asks the model for optimization suggestions without touching
// the sandbox.
func (p *Pipeline) OptimizeQuery(ctx context.Context, query string, snap *schema.Snapshot) (string, error) {
	text, err := p.gateway.Generate(ctx, llm.KindOptimizer, map[string]any{
		"query":  query,
		"schema": snap,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Cleanup tears down the project's sandbox session, if one exists.
func (p *Pipeline) Cleanup(projectID string) error {
	return p.pool.Cleanup(projectID)
}

// Close releases every sandbox session. Called at process shutdown.
func (p *Pipeline) Close() error {
	return p.pool.Close()
}
