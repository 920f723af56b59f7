package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCompleter records the conversations it receives and replies with a
// canned response.
type stubCompleter struct {
	response string
	err      error
	calls    [][]Message
}

func (s *stubCompleter) Complete(_ context.Context, messages []Message) (string, error) {
	s.calls = append(s.calls, messages)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestGateway_Generate_IntentUsesRawMessage(t *testing.T) {
	stub := &stubCompleter{response: "ok"}
	gw := NewGateway(stub, nil)

	_, err := gw.Generate(context.Background(), KindIntent, map[string]any{
		"user_message": "how many products do I have?",
		"request_type": "intent_check",
	})
	require.NoError(t, err)

	require.Len(t, stub.calls, 1)
	msgs := stub.calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, intentPrompt, msgs[0].Content)
	assert.Equal(t, "how many products do I have?", msgs[1].Content)
}

func TestGateway_Generate_IntentFallsBackToMessageKey(t *testing.T) {
	stub := &stubCompleter{response: "YES"}
	gw := NewGateway(stub, nil)

	_, err := gw.Generate(context.Background(), KindIntent, map[string]any{"message": "show tables"})
	require.NoError(t, err)
	assert.Equal(t, "show tables", stub.calls[0][1].Content)
}

func TestGateway_Generate_GeneratorFormatsSchema(t *testing.T) {
	stub := &stubCompleter{response: "SELECT 1"}
	gw := NewGateway(stub, nil)

	_, err := gw.Generate(context.Background(), KindGenerator, map[string]any{
		"schema": map[string]any{"tables": []string{"products"}},
		"query":  "count products",
	})
	require.NoError(t, err)

	user := stub.calls[0][1].Content
	assert.True(t, strings.HasPrefix(user, "Schema Context:\n"))
	assert.Contains(t, user, `"products"`)
	assert.Contains(t, user, "User Query: count products")
}

func TestGateway_Generate_ComprehensiveSerializesPayload(t *testing.T) {
	stub := &stubCompleter{response: "{}"}
	gw := NewGateway(stub, nil)

	_, err := gw.Generate(context.Background(), KindComprehensive, map[string]any{
		"user_message": "how many products?",
		"schema":       map[string]any{"database_name": "store"},
	})
	require.NoError(t, err)

	msgs := stub.calls[0]
	assert.Equal(t, comprehensivePrompt, msgs[0].Content)
	assert.Contains(t, msgs[1].Content, `"user_message"`)
	assert.Contains(t, msgs[1].Content, `"store"`)
}

func TestGateway_Generate_EachKindHasDistinctSystemPrompt(t *testing.T) {
	kinds := []PromptKind{KindIntent, KindComprehensive, KindGenerator, KindAnalyzer, KindOptimizer, KindError}
	seen := make(map[string]PromptKind)
	for _, kind := range kinds {
		prompt := systemPrompt(kind)
		require.NotEmpty(t, prompt, "kind %s", kind)
		if prev, dup := seen[prompt]; dup {
			t.Fatalf("kinds %s and %s share a system prompt", prev, kind)
		}
		seen[prompt] = kind
	}
}

func TestGateway_Generate_WrapsTransportError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("connection refused")}
	gw := NewGateway(stub, nil)

	_, err := gw.Generate(context.Background(), KindError, map[string]any{"query": "SELECT 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error completion failed")
}
