package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// PromptKind selects the system instruction and context formatting for a
// gateway call.
type PromptKind string

const (
	KindIntent        PromptKind = "intent"
	KindComprehensive PromptKind = "comprehensive"
	KindGenerator     PromptKind = "generator"
	KindAnalyzer      PromptKind = "analyzer"
	KindOptimizer     PromptKind = "optimizer"
	KindError         PromptKind = "error"
)

// Completer is the transport the gateway speaks through. *Client implements
// it; tests substitute stubs.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Gateway turns a prompt kind plus a context payload into one generated text
// completion. It performs no retries and holds no per-call state, so a single
// instance is safe to share across concurrent requests.
type Gateway struct {
	completer Completer
	logger    *slog.Logger
}

// NewGateway creates a gateway over the given completer. If logger is nil, a
// discard logger is used.
func NewGateway(completer Completer, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gateway{completer: completer, logger: logger}
}

// Generate issues one completion for the given prompt kind. The context
// payload is formatted deterministically per kind, so identical inputs build
// identical conversations.
func (g *Gateway) Generate(ctx context.Context, kind PromptKind, payload map[string]any) (string, error) {
	messages, err := preparePrompt(kind, payload)
	if err != nil {
		return "", fmt.Errorf("failed to prepare %s prompt: %w", kind, err)
	}

	g.logger.Debug("generating completion", slog.String("kind", string(kind)))

	text, err := g.completer.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", kind, err)
	}
	return text, nil
}

// Complete forwards a raw conversation to the model. Used by the chat
// service, which manages its own history.
func (g *Gateway) Complete(ctx context.Context, messages []Message) (string, error) {
	return g.completer.Complete(ctx, messages)
}

// preparePrompt builds the two-message conversation for a prompt kind.
func preparePrompt(kind PromptKind, payload map[string]any) ([]Message, error) {
	var content string
	switch kind {
	case KindIntent:
		// The intent kind takes the raw user message, under either key the
		// callers use.
		if msg, ok := payload["user_message"].(string); ok && msg != "" {
			content = msg
		} else if msg, ok := payload["message"].(string); ok {
			content = msg
		}
	case KindGenerator:
		schemaJSON, err := marshalIndent(payload["schema"])
		if err != nil {
			return nil, err
		}
		query, _ := payload["query"].(string)
		content = fmt.Sprintf("Schema Context:\n%s\n\nUser Query: %s", schemaJSON, query)
	case KindAnalyzer:
		body, err := marshalIndent(payload)
		if err != nil {
			return nil, err
		}
		content = "Analysis Context:\n" + body
	case KindOptimizer:
		body, err := marshalIndent(payload)
		if err != nil {
			return nil, err
		}
		content = "Optimization Context:\n" + body
	case KindError:
		body, err := marshalIndent(payload)
		if err != nil {
			return nil, err
		}
		content = "Error Context:\n" + body
	default:
		body, err := marshalIndent(payload)
		if err != nil {
			return nil, err
		}
		content = body
	}

	return []Message{
		{Role: "system", Content: systemPrompt(kind)},
		{Role: "user", Content: content},
	}, nil
}

func marshalIndent(v any) (string, error) {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize prompt context: %w", err)
	}
	return string(b), nil
}
