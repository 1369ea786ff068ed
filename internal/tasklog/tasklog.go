// Package tasklog provides per-cell structured logging for the cognitive
// runtime.
//
// Each cell invocation gets one JSONL file in a configurable directory.
// Events capture every key stage: phase transitions, inference calls (with
// full prompts), tool calls, error-journal activity, and cascade/convergence
// outcomes.
//
// Design constraints:
//   - All TaskLog methods are nil-safe (no-op on nil receiver) so cognitive
//     cycle code doesn't need nil checks before every log call.
//   - Registry is the sole owner of JSONL persistence; cells never open files.
//   - The Cell Runtime opens a log via Registry.Open at cell spawn and closes
//     it via Registry.Close at cell termination.
package tasklog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventKind labels a single structured event in the task log.
type EventKind string

const (
	KindCellSpawned    EventKind = "cell_spawned"
	KindCellTerminated EventKind = "cell_terminated"
	KindPhaseEnter     EventKind = "phase_enter"
	KindInferenceCall  EventKind = "inference_call"
	KindToolCall       EventKind = "tool_call"
	KindErrorFiled     EventKind = "error_filed"
	KindFixAttempt     EventKind = "fix_attempt"
	KindCascadeDetected EventKind = "cascade_detected"
	KindHealConverged  EventKind = "heal_converged"
)

// Event is one JSONL line in the task log.
// Fields are omitempty so each event only serialises relevant data.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp string    `json:"ts"`

	// cell_spawned / cell_terminated
	CellID      string `json:"cell_id,omitempty"`
	Intent      string `json:"intent,omitempty"`
	Status      string `json:"status,omitempty"` // "completed" | "fatal_abort" | "cancelled"
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
	TotalTokens int    `json:"total_tokens,omitempty"`

	// phase_enter
	Phase string `json:"phase,omitempty"`

	// inference_call
	SystemPrompt     string `json:"system_prompt,omitempty"`
	UserPrompt       string `json:"user_prompt,omitempty"`
	Response         string `json:"response,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`

	// tool_call
	Tool       string `json:"tool,omitempty"`
	ToolInput  string `json:"tool_input,omitempty"`
	ToolOutput string `json:"tool_output,omitempty"`
	ToolError  string `json:"tool_error,omitempty"`

	// error_filed / fix_attempt / cascade_detected
	ErrorID   string `json:"error_id,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	Result    string `json:"result,omitempty"`
	CausedBy  string `json:"caused_by,omitempty"`

	// heal_converged
	Reason            string `json:"reason,omitempty"`
	UnresolvedCount   int    `json:"unresolved_count,omitempty"`
	Iterations        int    `json:"iterations,omitempty"`
}

// TaskLog is a handle for writing structured events for one cell invocation.
//
// Expectations:
//   - All methods are nil-safe (no-op when called on nil *TaskLog)
//   - Concurrent writes are safe (mutex-protected)
//   - TotalTokens returns the running sum of prompt+completion tokens across all inference_call events
type TaskLog struct {
	cellID           string
	started          time.Time
	mu               sync.Mutex
	f                *os.File
	promptTokens     int
	completionTokens int
}

// Registry maps cell IDs to open TaskLogs.
// It is the sole authority for creating and closing task log files.
//
// Expectations:
//   - Open creates the log directory if absent
//   - Open writes a cell_spawned event as the first JSONL line
//   - Open returns the existing log without re-opening when called twice for the same cellID
//   - Get returns nil for unknown cell IDs
//   - Get returns the same pointer returned by Open for the same cellID
//   - Close writes cell_terminated with status, elapsed_ms, total_tokens before flushing
//   - Close removes the cellID from the registry so subsequent Get returns nil
//   - Close no-ops gracefully when cellID is not registered
type Registry struct {
	dir  string
	mu   sync.Mutex
	logs map[string]*TaskLog
}

// NewRegistry creates a Registry that writes one JSONL file per cell under dir.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, logs: make(map[string]*TaskLog)}
}

// Open creates a new TaskLog for cellID, writes a cell_spawned event, and
// registers it. If a log for cellID is already open, it returns the existing log.
func (r *Registry) Open(cellID, intent string) *TaskLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tl, ok := r.logs[cellID]; ok {
		return tl // idempotent
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		log.Printf("[TASKLOG] could not create dir %s: %v", r.dir, err)
		return nil
	}
	path := filepath.Join(r.dir, cellID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[TASKLOG] could not open %s: %v", path, err)
		return nil
	}

	tl := &TaskLog{cellID: cellID, started: time.Now(), f: f}
	r.logs[cellID] = tl
	tl.write(Event{
		Kind:   KindCellSpawned,
		CellID: cellID,
		Intent: intent,
	})
	return tl
}

// Get returns the TaskLog for cellID, or nil if not found.
// Nil is safe to pass to all TaskLog methods.
func (r *Registry) Get(cellID string) *TaskLog {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[cellID]
}

// Close writes a cell_terminated event, flushes and closes the file, and
// removes the entry from the registry. Safe to call on a nil *Registry or
// unknown cellID.
func (r *Registry) Close(cellID, status string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	tl, ok := r.logs[cellID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.logs, cellID)
	r.mu.Unlock()

	tl.mu.Lock()
	elapsed := time.Since(tl.started).Milliseconds()
	total := tl.promptTokens + tl.completionTokens
	tl.mu.Unlock()

	tl.write(Event{
		Kind:        KindCellTerminated,
		CellID:      cellID,
		Status:      status,
		ElapsedMs:   elapsed,
		TotalTokens: total,
	})

	tl.mu.Lock()
	if tl.f != nil {
		_ = tl.f.Close()
		tl.f = nil
	}
	tl.mu.Unlock()
}

// PhaseEnter writes a phase_enter event.
func (tl *TaskLog) PhaseEnter(phase string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindPhaseEnter, Phase: phase})
}

// InferenceCall writes an inference_call event with full prompts, response,
// and token counts.
func (tl *TaskLog) InferenceCall(systemPrompt, userPrompt, response string, promptToks, completionToks int) {
	if tl == nil {
		return
	}
	tl.mu.Lock()
	tl.promptTokens += promptToks
	tl.completionTokens += completionToks
	tl.mu.Unlock()
	tl.write(Event{
		Kind:             KindInferenceCall,
		SystemPrompt:     systemPrompt,
		UserPrompt:       userPrompt,
		Response:         response,
		PromptTokens:     promptToks,
		CompletionTokens: completionToks,
	})
}

// ToolCall writes a tool_call event. toolError is empty on success.
func (tl *TaskLog) ToolCall(tool, toolInput, toolOutput, toolError string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindToolCall, Tool: tool, ToolInput: toolInput, ToolOutput: toolOutput, ToolError: toolError})
}

// ErrorFiled writes an error_filed event when an ErrorEntry is appended to the journal.
func (tl *TaskLog) ErrorFiled(errorID, errorType, severity string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindErrorFiled, ErrorID: errorID, ErrorType: errorType, Severity: severity})
}

// FixAttempt writes a fix_attempt event for one healing-loop try.
func (tl *TaskLog) FixAttempt(errorID, strategy, result string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindFixAttempt, ErrorID: errorID, Strategy: strategy, Result: result})
}

// CascadeDetected writes a cascade_detected event when a fix admits a new cascade error.
func (tl *TaskLog) CascadeDetected(causedByID, newErrorID string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindCascadeDetected, ErrorID: newErrorID, CausedBy: causedByID})
}

// HealConverged writes a heal_converged event when the Convergence Detector halts the loop.
func (tl *TaskLog) HealConverged(reason string, unresolvedCount, iterations int) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindHealConverged, Reason: reason, UnresolvedCount: unresolvedCount, Iterations: iterations})
}

// TotalTokens returns the total token count accumulated so far.
//
// Expectations:
//   - Returns 0 on nil receiver
//   - Returns sum of prompt and completion tokens from all inference_call events
func (tl *TaskLog) TotalTokens() int {
	if tl == nil {
		return 0
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.promptTokens + tl.completionTokens
}

// write appends one JSON line to the task log file. Adds timestamp, mutex-protected.
func (tl *TaskLog) write(e Event) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[TASKLOG] marshal error: %v", err)
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.f == nil {
		return
	}
	if _, err = fmt.Fprintf(tl.f, "%s\n", data); err != nil {
		log.Printf("[TASKLOG] write error: %v", err)
	}
}
