// Package toolhost provides a minimal in-memory Tool Host test double.
// Implementing the tools themselves is an explicit non-goal (§1); this stub
// exists purely so the Execute loop (C2 step 4) and the schema-repair and
// retry paths it drives have something deterministic to call in tests.
package toolhost

import (
	"context"
	"fmt"
	"sync"

	"github.com/kernel/cellruntime/internal/collab"
)

// Handler computes one tool's result for a call. A handler may return a
// schema error on its first invocations to exercise the Execute loop's
// one-shot repair path, which re-invokes the tool once without asking the
// inference provider to rewrite the arguments.
type Handler func(args map[string]any) (collab.ToolResult, error)

// Stub is a deterministic, in-memory ToolHost.
type Stub struct {
	mu       sync.Mutex
	handlers map[string]Handler
	schemas  []collab.ToolSchema
	calls    map[string]int // per-tool invocation counter, for stubs that fail N times then succeed
}

// New returns an empty Stub.
func New() *Stub {
	return &Stub{handlers: make(map[string]Handler), calls: make(map[string]int)}
}

// Register adds (or replaces) the handler for toolName plus its catalogue entry.
func (s *Stub) Register(schema collab.ToolSchema, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[schema.Name] = h
	s.schemas = append(s.schemas, schema)
}

// Execute implements collab.ToolHost.
func (s *Stub) Execute(ctx context.Context, toolName string, args map[string]any) (collab.ToolResult, error) {
	s.mu.Lock()
	h, ok := s.handlers[toolName]
	s.calls[toolName]++
	s.mu.Unlock()
	if !ok {
		return collab.ToolResult{}, fmt.Errorf("toolhost: unknown tool %q", toolName)
	}
	return h(args)
}

// ListTools implements collab.ToolHost.
func (s *Stub) ListTools(ctx context.Context, domain string) ([]collab.ToolSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]collab.ToolSchema, len(s.schemas))
	copy(out, s.schemas)
	return out, nil
}

// CallCount returns how many times toolName has been invoked so far.
func (s *Stub) CallCount(toolName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[toolName]
}

// RejectThenAccept builds a Handler that returns a retryable schema error for
// the first n-1 calls and succeeds from call n onward — the shape Scenario C
// (tool schema repair) in the testable-properties section requires.
func RejectThenAccept(n int, success collab.ToolResult) Handler {
	calls := 0
	return func(args map[string]any) (collab.ToolResult, error) {
		calls++
		if calls < n {
			return collab.ToolResult{
				Success: false,
				Error:   &collab.ToolError{Code: "schema_invalid", Message: "missing required field", Retryable: true},
			}, nil
		}
		return success, nil
	}
}
