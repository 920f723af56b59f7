package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantum-lens/lens/internal/llm"
	"github.com/quantum-lens/lens/internal/sandbox"
	"github.com/quantum-lens/lens/internal/schema"
)

type gwCall struct {
	kind    llm.PromptKind
	payload map[string]any
}

// stubGateway answers each prompt kind with a canned response and records
// every call it receives.
type stubGateway struct {
	responses map[llm.PromptKind]string
	errs      map[llm.PromptKind]error
	calls     []gwCall
}

func (g *stubGateway) Generate(_ context.Context, kind llm.PromptKind, payload map[string]any) (string, error) {
	g.calls = append(g.calls, gwCall{kind: kind, payload: payload})
	if err := g.errs[kind]; err != nil {
		return "", err
	}
	return g.responses[kind], nil
}

func (g *stubGateway) count(kind llm.PromptKind) int {
	n := 0
	for _, c := range g.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

type stubSession struct {
	outcome  *sandbox.Outcome
	execErr  error
	dbInfo   *sandbox.DatabaseInfo
	executed []string
}

func (s *stubSession) Execute(_ context.Context, stmt string, _ ...any) (*sandbox.Outcome, error) {
	s.executed = append(s.executed, stmt)
	if s.execErr != nil {
		return nil, s.execErr
	}
	return s.outcome, nil
}

func (s *stubSession) DescribeDatabase(_ context.Context) (*sandbox.DatabaseInfo, error) {
	return s.dbInfo, nil
}

type stubPool struct {
	session *stubSession
	getErr  error
	gets    []string
	cfgs    []sandbox.Config
	cleaned []string
	closed  bool
}

func (p *stubPool) Get(_ context.Context, projectID string, cfg sandbox.Config) (Session, error) {
	p.gets = append(p.gets, projectID)
	p.cfgs = append(p.cfgs, cfg)
	if p.getErr != nil {
		return nil, p.getErr
	}
	return p.session, nil
}

func (p *stubPool) Cleanup(projectID string) error {
	p.cleaned = append(p.cleaned, projectID)
	return nil
}

func (p *stubPool) Close() error {
	p.closed = true
	return nil
}

func testSnapshot() *schema.Snapshot {
	return &schema.Snapshot{
		DatabaseName: "store_db",
		Tables:       []schema.Table{{Name: "products", RowCount: 156, ColumnCount: 5}},
		Connected:    true,
		DatabaseInfo: schema.ConnInfo{
			Host:     "db.internal",
			Port:     3307,
			User:     "app",
			Password: "s3cret",
			Database: "store_db",
		},
	}
}

func countOutcome() *sandbox.Outcome {
	return &sandbox.Outcome{
		Success:       true,
		QueryType:     "SELECT",
		Rows:          []map[string]any{{"COUNT(*)": int64(156)}},
		TotalRows:     1,
		Columns:       []sandbox.ColumnInfo{{Name: "COUNT(*)", Type: "BIGINT"}},
		ExecutionTime: 0.002,
	}
}

func newTestPipeline(gw *stubGateway, pool *stubPool) *Pipeline {
	return New(gw, pool, nil)
}

func TestProcessMessage_NonDatabaseIntent(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: `{"is_sql_query": false, "confidence": 0.95}`,
	}}
	pool := &stubPool{}
	p := newTestPipeline(gw, pool)

	resp := p.ProcessMessage(context.Background(), "what's the weather today?", "proj-1", testSnapshot(), nil)

	assert.True(t, resp.Success)
	assert.Equal(t, KindText, resp.Type)
	assert.Equal(t, defaultRedirect, resp.Content)
	assert.Empty(t, pool.gets, "sandbox must stay untouched for non-database messages")
	assert.Len(t, gw.calls, 1)
}

func TestProcessMessage_NonDatabaseIntentWithReply(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: `{"is_sql_query": false, "response": "I can only answer questions about your data."}`,
	}}
	p := newTestPipeline(gw, &stubPool{})

	resp := p.ProcessMessage(context.Background(), "tell me a joke", "proj-1", testSnapshot(), nil)
	assert.Equal(t, "I can only answer questions about your data.", resp.Content)
}

func TestProcessMessage_HappyPath(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: `{
			"is_sql_query": true,
			"sql_query": "SELECT COUNT(*) FROM products",
			"analysis": "You have 156 products.",
			"optimization": "Consider an index on created_at.",
			"confidence": 0.99
		}`,
	}}
	sess := &stubSession{outcome: countOutcome()}
	pool := &stubPool{session: sess}
	p := newTestPipeline(gw, pool)

	resp := p.ProcessMessage(context.Background(), "how many products do I have?", "proj-1", testSnapshot(), nil)

	assert.True(t, resp.Success)
	assert.Equal(t, KindSQL, resp.Type)
	content, ok := resp.Content.(*SQLContent)
	require.True(t, ok)
	assert.Equal(t, "SELECT COUNT(*) FROM products", content.Query)
	assert.Equal(t, "You have 156 products.", content.Analysis)
	assert.Equal(t, "Consider an index on created_at.", content.Optimization)
	require.NotNil(t, content.Result)
	assert.Equal(t, 1, content.Result.TotalRows)
	assert.Equal(t, []map[string]any{{"COUNT(*)": int64(156)}}, content.Result.Rows)
	assert.Equal(t, []string{"SELECT COUNT(*) FROM products"}, sess.executed)
	assert.Len(t, gw.calls, 1, "the combined strategy makes exactly one call on success")
}

func TestProcessMessage_MissingKeysUseDefaultsNotFallback(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: `{"is_sql_query": true, "sql_query": "SELECT 1"}`,
	}}
	pool := &stubPool{session: &stubSession{outcome: countOutcome()}}
	p := newTestPipeline(gw, pool)

	resp := p.ProcessMessage(context.Background(), "anything", "proj-1", testSnapshot(), nil)

	content := resp.Content.(*SQLContent)
	assert.Equal(t, defaultAnalysis, content.Analysis)
	assert.Equal(t, defaultOptimization, content.Optimization)
	assert.Zero(t, gw.count(llm.KindIntent), "missing keys must not trigger the legacy strategy")
}

func TestProcessMessage_SynthesisFailure(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: `{"is_sql_query": true, "sql_query": "   "}`,
	}}
	pool := &stubPool{}
	p := newTestPipeline(gw, pool)

	resp := p.ProcessMessage(context.Background(), "count products", "proj-1", testSnapshot(), nil)

	assert.False(t, resp.Success)
	assert.Equal(t, KindError, resp.Type)
	content, ok := resp.Content.(*ErrorContent)
	require.True(t, ok)
	assert.Equal(t, synthesisFailure, content.Error)
	assert.Empty(t, content.Query)
	assert.Empty(t, pool.gets, "a blank statement must never reach the sandbox")
}

func TestProcessMessage_ExecutionFailure(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: `{"is_sql_query": true, "sql_query": "SELECT * FROM missing"}`,
		llm.KindError:         "The table `missing` does not exist in store_db.",
	}}
	sess := &stubSession{outcome: &sandbox.Outcome{
		Success:   false,
		QueryType: "SELECT",
		Rows:      []map[string]any{},
		Error:     "Table 'store_db.missing' doesn't exist",
	}}
	p := newTestPipeline(gw, &stubPool{session: sess})

	resp := p.ProcessMessage(context.Background(), "show missing", "proj-1", testSnapshot(), nil)

	assert.False(t, resp.Success)
	assert.Equal(t, KindError, resp.Type)
	content := resp.Content.(*ErrorContent)
	assert.Equal(t, "SELECT * FROM missing", content.Query)
	assert.Equal(t, "Table 'store_db.missing' doesn't exist", content.Error)
	assert.Equal(t, "The table `missing` does not exist in store_db.", content.Analysis)
	assert.Equal(t, 1, gw.count(llm.KindError), "exactly one error-prompt call")
	assert.Len(t, sess.executed, 1, "the failing statement is never re-executed")
}

func TestProcessMessage_ExecutionPanicRoutesToRecovery(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: `{"is_sql_query": true, "sql_query": "SELECT 1"}`,
		llm.KindError:         "The database connection was lost mid-statement.",
	}}
	sess := &stubSession{execErr: errors.New("driver: bad connection")}
	p := newTestPipeline(gw, &stubPool{session: sess})

	resp := p.ProcessMessage(context.Background(), "anything", "proj-1", testSnapshot(), nil)

	assert.False(t, resp.Success)
	content := resp.Content.(*ErrorContent)
	assert.Equal(t, "driver: bad connection", content.Error)
	assert.Equal(t, 1, gw.count(llm.KindError))
}

func TestProcessMessage_RecoveryToleratesExplanationFailure(t *testing.T) {
	gw := &stubGateway{
		responses: map[llm.PromptKind]string{
			llm.KindComprehensive: `{"is_sql_query": true, "sql_query": "SELECT 1"}`,
		},
		errs: map[llm.PromptKind]error{llm.KindError: errors.New("rate limited")},
	}
	sess := &stubSession{outcome: &sandbox.Outcome{Success: false, Error: "syntax error"}}
	p := newTestPipeline(gw, &stubPool{session: sess})

	resp := p.ProcessMessage(context.Background(), "anything", "proj-1", testSnapshot(), nil)

	assert.False(t, resp.Success)
	content := resp.Content.(*ErrorContent)
	assert.Equal(t, "syntax error", content.Error)
	assert.Empty(t, content.Analysis)
}

func TestProcessMessage_FencedJSONParses(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: "```json\n{\"is_sql_query\": true, \"sql_query\": \"SELECT 1\"}\n```",
	}}
	p := newTestPipeline(gw, &stubPool{session: &stubSession{outcome: countOutcome()}})

	resp := p.ProcessMessage(context.Background(), "anything", "proj-1", testSnapshot(), nil)
	assert.Equal(t, KindSQL, resp.Type)
	assert.Zero(t, gw.count(llm.KindIntent))
}

func TestProcessMessage_LegacyFallback(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: "Sure! Here is the query you asked for: SELECT 1",
		llm.KindIntent:        "YES",
		llm.KindGenerator:     "SELECT COUNT(*) FROM products",
		llm.KindAnalyzer:      "There are 156 products.",
		llm.KindOptimizer:     "The query is already optimal.",
	}}
	sess := &stubSession{outcome: countOutcome()}
	p := newTestPipeline(gw, &stubPool{session: sess})

	resp := p.ProcessMessage(context.Background(), "how many products?", "proj-1", testSnapshot(), nil)

	assert.True(t, resp.Success)
	content := resp.Content.(*SQLContent)
	assert.Equal(t, "SELECT COUNT(*) FROM products", content.Query)
	assert.Equal(t, "There are 156 products.", content.Analysis)
	assert.Equal(t, "The query is already optimal.", content.Optimization)
	assert.Equal(t, 1, gw.count(llm.KindIntent))
	assert.Equal(t, 1, gw.count(llm.KindGenerator))
}

func TestProcessMessage_LegacyNonDatabaseIntent(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: "not json at all",
		llm.KindIntent:        "NO",
	}}
	pool := &stubPool{}
	p := newTestPipeline(gw, pool)

	resp := p.ProcessMessage(context.Background(), "hello there", "proj-1", testSnapshot(), nil)

	assert.True(t, resp.Success)
	assert.Equal(t, KindText, resp.Type)
	assert.Equal(t, legacyRedirect, resp.Content)
	assert.Empty(t, pool.gets)
	assert.Zero(t, gw.count(llm.KindGenerator))
}

func TestProcessMessage_LegacyNarrativeFailuresUseDefaults(t *testing.T) {
	gw := &stubGateway{
		responses: map[llm.PromptKind]string{
			llm.KindComprehensive: "not json",
			llm.KindIntent:        "YES",
			llm.KindGenerator:     "SELECT 1",
		},
		errs: map[llm.PromptKind]error{
			llm.KindAnalyzer:  errors.New("rate limited"),
			llm.KindOptimizer: errors.New("rate limited"),
		},
	}
	p := newTestPipeline(gw, &stubPool{session: &stubSession{outcome: countOutcome()}})

	resp := p.ProcessMessage(context.Background(), "anything", "proj-1", testSnapshot(), nil)

	require.True(t, resp.Success)
	content := resp.Content.(*SQLContent)
	assert.Equal(t, defaultAnalysis, content.Analysis)
	assert.Equal(t, defaultOptimization, content.Optimization)
}

func TestProcessMessage_TransportFailureDegradesToGenericError(t *testing.T) {
	gw := &stubGateway{errs: map[llm.PromptKind]error{
		llm.KindComprehensive: errors.New("connection refused"),
	}}
	p := newTestPipeline(gw, &stubPool{})

	resp := p.ProcessMessage(context.Background(), "anything", "proj-1", testSnapshot(), nil)

	assert.False(t, resp.Success)
	assert.Equal(t, KindError, resp.Type)
	content := resp.Content.(*ErrorContent)
	assert.Equal(t, genericFailure, content.Error)
}

func TestProcessMessage_SandboxAcquisitionFailure(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: `{"is_sql_query": true, "sql_query": "SELECT 1"}`,
	}}
	p := newTestPipeline(gw, &stubPool{getErr: errors.New("failed to connect to mysql")})

	resp := p.ProcessMessage(context.Background(), "anything", "proj-1", testSnapshot(), nil)

	assert.False(t, resp.Success)
	assert.Equal(t, genericFailure, resp.Content.(*ErrorContent).Error)
	assert.Zero(t, gw.count(llm.KindError), "no error-prompt call without an executed statement")
}

func TestProcessMessage_DerivesSandboxConfigFromSnapshot(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: `{"is_sql_query": true, "sql_query": "SELECT 1"}`,
	}}
	pool := &stubPool{session: &stubSession{outcome: countOutcome()}}
	p := newTestPipeline(gw, pool)

	p.ProcessMessage(context.Background(), "anything", "proj-42", testSnapshot(), nil)

	require.Len(t, pool.gets, 1)
	assert.Equal(t, "proj-42", pool.gets[0])
	cfg := pool.cfgs[0]
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 3307, cfg.Port)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "store_db", cfg.Database)
}

func TestProcessMessage_DatabaseNameFallsBackToSnapshot(t *testing.T) {
	gw := &stubGateway{responses: map[llm.PromptKind]string{
		llm.KindComprehensive: `{"is_sql_query": true, "sql_query": "SELECT 1"}`,
	}}
	pool := &stubPool{session: &stubSession{outcome: countOutcome()}}
	p := newTestPipeline(gw, pool)

	snap := testSnapshot()
	snap.DatabaseInfo.Database = ""
	p.ProcessMessage(context.Background(), "anything", "proj-1", snap, nil)

	require.Len(t, pool.cfgs, 1)
	assert.Equal(t, "store_db", pool.cfgs[0].Database)
}

func TestProcessMessage_Idempotent(t *testing.T) {
	newStub := func() *stubGateway {
		return &stubGateway{responses: map[llm.PromptKind]string{
			llm.KindComprehensive: `{"is_sql_query": true, "sql_query": "SELECT COUNT(*) FROM products", "analysis": "156 products"}`,
		}}
	}
	snap := testSnapshot()

	first := newTestPipeline(newStub(), &stubPool{session: &stubSession{outcome: countOutcome()}}).
		ProcessMessage(context.Background(), "how many products?", "proj-1", snap, nil)
	second := newTestPipeline(newStub(), &stubPool{session: &stubSession{outcome: countOutcome()}}).
		ProcessMessage(context.Background(), "how many products?", "proj-1", snap, nil)

	assert.Equal(t, first, second)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\nSELECT 1\n```", "SELECT 1"},
		{"```sql\nSELECT 1\n```", "SELECT 1"},
		{"  plain text  ", "plain text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripFences(tt.in), "input %q", tt.in)
	}
}
