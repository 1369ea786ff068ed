// Package collab defines the narrow interfaces to the four external
// collaborators named in §6: the Tool Host, the Vault, Knowledge, and the
// Inference provider. The kernel core only ever depends on these interfaces;
// concrete implementations live in the collab subpackages and are wired in
// at cell-runtime construction time via a runtime context object (§9:
// "Global mutable state → scoped singletons" — no module-level singletons).
package collab

import "context"

// ToolError is the structured error a Tool Host call may return.
type ToolError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *ToolError) Error() string { return e.Code + ": " + e.Message }

// ToolResult is the outcome of one ToolHost.Execute call.
type ToolResult struct {
	Success        bool       `json:"success"`
	Output         any        `json:"output"`
	Error          *ToolError `json:"error,omitempty"`
	Citations      []string   `json:"citations,omitempty"`
	TokensConsumed int        `json:"tokens_consumed,omitempty"`
}

// ToolSchema describes one entry of the tool catalogue.
type ToolSchema struct {
	Name        string `json:"name"`
	Schema      any    `json:"schema"`
	Description string `json:"description"`
	CostHint    int    `json:"cost_hint"`
}

// ToolHost is the single-RPC tool-execution service (explicitly out of scope
// to implement generally; only the interface and a minimal test stub live here).
type ToolHost interface {
	Execute(ctx context.Context, toolName string, args map[string]any) (ToolResult, error)
	ListTools(ctx context.Context, domain string) ([]ToolSchema, error)
}

// Fact is one retrieved piece of domain knowledge.
type Fact struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Knowledge is the retrieval-service interface.
type Knowledge interface {
	Search(ctx context.Context, query string, k int, domainHints []string) ([]Fact, error)
}

// Vault is the persistence-store interface; the only permitted side-effect
// channel for inter-run state. Namespaces are per-cell-domain.
type Vault interface {
	Put(ctx context.Context, key string, blob []byte, ttlSeconds int) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Query(ctx context.Context, namespace string, filter func(key string) bool) ([][]byte, error)
}

// InferenceMessage is one turn of the conversation sent to generate().
type InferenceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InferenceParams bounds one generate() call.
type InferenceParams struct {
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

// InferenceResult is generate()'s return value.
type InferenceResult struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used"`
}

// Inference is the sole mocked-in-tests interface named in §6.
type Inference interface {
	Generate(ctx context.Context, system string, messages []InferenceMessage, params InferenceParams) (InferenceResult, error)
}
