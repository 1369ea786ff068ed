package cell

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kernel/cellruntime/internal/bus"
	"github.com/kernel/cellruntime/internal/collab"
	"github.com/kernel/cellruntime/internal/collab/knowledge"
	"github.com/kernel/cellruntime/internal/collab/toolhost"
	"github.com/kernel/cellruntime/internal/config"
	"github.com/kernel/cellruntime/internal/kerneltypes"
	"github.com/kernel/cellruntime/internal/tasklog"
)

// stubInference returns a fixed reply regardless of input, for deterministic tests.
type stubInference struct {
	text   string
	tokens int
}

func (s stubInference) Generate(ctx context.Context, system string, messages []collab.InferenceMessage, params collab.InferenceParams) (collab.InferenceResult, error) {
	return collab.InferenceResult{Text: s.text, TokensUsed: s.tokens}, nil
}

func testThresholds() config.Thresholds {
	return config.Thresholds{
		DriftTau: 0.2, StagnationEpsilon: 0.05, DriftWindowN: 5, StagnationWindowM: 3,
		JaccardWindowW: 3, JaccardThreshold: 0.95, CompressionAgeK: 50,
		SafetyFloor: 100, MinHealReserve: 500, PerChildMinimum: 100,
		MaxParallelChildren: 4, MaxReviewRounds: 2, DiminishingReturnsThreshold: 0.1,
		MaxCascadeDepthLimit: 3, MaxHealIterationsStaff: 1, MaxHealIterationsManager: 3,
		WindDownSeconds: 5, DefaultToolTimeoutSeconds: 10, MailboxCapacity: 32,
		WorkerPoolMultiplier: 2, WorkerPoolCap: 16, LateralHealingEnabled: false,
		SuccessCriterionOverlapThreshold: 0.3,
	}
}

// --- nextLevel ---

func TestNextLevel_StepsDownOneRank(t *testing.T) {
	// nextLevel steps one rank below the given level
	if got := nextLevel(kerneltypes.LevelVP); got != kerneltypes.LevelDirector {
		t.Errorf("got %q, want director", got)
	}
}

func TestNextLevel_FloorsAtIntern(t *testing.T) {
	// nextLevel returns intern when already at the bottom of the ladder
	if got := nextLevel(kerneltypes.LevelIntern); got != kerneltypes.LevelIntern {
		t.Errorf("got %q, want intern (floor)", got)
	}
}

func TestNextLevel_BoardStepsToCEO(t *testing.T) {
	// nextLevel steps from board down to ceo, the top of the recursion ladder
	if got := nextLevel(kerneltypes.LevelBoard); got != kerneltypes.LevelCEO {
		t.Errorf("got %q, want ceo", got)
	}
}

// --- clampDepth ---

func TestClampDepth_UsesMaxWhenRequestedIsZero(t *testing.T) {
	// clampDepth falls back to the runtime max when the envelope requests no depth
	if got := clampDepth(0, 6); got != 6 {
		t.Errorf("got %d, want 6", got)
	}
}

func TestClampDepth_UsesMaxWhenRequestedExceedsMax(t *testing.T) {
	// clampDepth caps a requested depth above the runtime's configured max
	if got := clampDepth(10, 6); got != 6 {
		t.Errorf("got %d, want 6", got)
	}
}

func TestClampDepth_HonoursRequestedWithinBounds(t *testing.T) {
	// clampDepth passes through a requested depth that is within bounds
	if got := clampDepth(3, 6); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
}

// --- fatalAbort ---

func TestFatalAbort_ReturnsNoWorkPackage(t *testing.T) {
	// fatalAbort returns an envelope with no stdout work package and an invalid_envelope failure
	rt := &Runtime{Cfg: testThresholds()}
	identity := kerneltypes.Identity{CellID: "cell-x"}
	out := rt.fatalAbort(kerneltypes.Envelope{}, identity, context.DeadlineExceeded)

	if out.Stdout.WorkPackage != nil {
		t.Error("expected nil work package on fatal abort")
	}
	if len(out.Stderr.Failures) != 1 {
		t.Fatalf("expected exactly 1 failure, got %d", len(out.Stderr.Failures))
	}
	if out.Metadata.CellID != "cell-x" {
		t.Errorf("metadata.cell_id = %q, want cell-x", out.Metadata.CellID)
	}
}

// --- Process end-to-end with stub collaborators ---

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	dir := t.TempDir()
	return &Runtime{
		Cfg: testThresholds(),
		Bus: bus.New(32, 0),
		Collaborators: Collaborators{
			Inference: stubInference{text: "the result is ready", tokens: 40},
			Knowledge: knowledge.New(),
			ToolHost:  toolhost.New(),
		},
		Log:            tasklog.NewRegistry(filepath.Join(dir, "logs")),
		HealingEnabled: true,
		MaxDepth:       3,
	}
}

func TestProcess_ProducesWorkPackageForSimpleInstruction(t *testing.T) {
	// Process runs a full cognitive cycle and returns a packaged envelope with an artifact
	rt := newTestRuntime(t)
	env := kerneltypes.Envelope{
		Instruction: kerneltypes.Instruction{Text: "write a short status note", Intent: kerneltypes.IntentSynthesise},
		Constraints: kerneltypes.Constraints{TokenBudget: 5000, QualityLevel: kerneltypes.QualityDraft, MaxDelegationDepth: 2},
	}
	identity := kerneltypes.Identity{CellID: "root-cell", Level: kerneltypes.LevelBoard, Domain: "general"}

	out := rt.Process(context.Background(), env, identity)

	if out.Stdout.WorkPackage == nil {
		t.Fatal("expected a work package")
	}
	if len(out.Stdout.WorkPackage.Artifacts) == 0 {
		t.Error("expected at least one artifact")
	}
}

func TestProcess_DelegatesComparativeInstructionAcrossDependentPhases(t *testing.T) {
	// A comparative instruction decomposes into two independent gather
	// subtasks followed by one subtask depending on both; Process runs the
	// phase barrier end to end and collects an artifact from every child.
	rt := newTestRuntime(t)
	env := kerneltypes.Envelope{
		Instruction: kerneltypes.Instruction{
			Text:   "Compare 2023 vs 2024 revenues of Example Corp and project 2025 across every region",
			Intent: kerneltypes.IntentAnalyse,
		},
		Context:     kerneltypes.EnvelopeContext{DomainHints: []string{"finance"}},
		Constraints: kerneltypes.Constraints{TokenBudget: 60000, QualityLevel: kerneltypes.QualityDraft, MaxDelegationDepth: 1},
		Authority:   kerneltypes.Authority{CanDelegate: true},
	}
	identity := kerneltypes.Identity{CellID: "root-cell", Level: kerneltypes.LevelBoard, Domain: "finance"}

	out := rt.Process(context.Background(), env, identity)

	if len(out.Stderr.Failures) != 0 {
		t.Fatalf("expected no failures, got %+v", out.Stderr.Failures)
	}
	if out.Stdout.WorkPackage == nil {
		t.Fatal("expected a work package")
	}
	if len(out.Stdout.WorkPackage.Artifacts) != 3 {
		t.Errorf("got %d artifacts, want 3 (two gather children plus the dependent synthesis child)", len(out.Stdout.WorkPackage.Artifacts))
	}
}

func TestProcess_InvalidEnvelopeYieldsFailureNotPanic(t *testing.T) {
	// Process handles a malformed envelope gracefully via invalid_envelope rather than panicking
	rt := newTestRuntime(t)
	identity := kerneltypes.Identity{CellID: "root-cell", Level: kerneltypes.LevelBoard, Domain: "general"}

	out := rt.Process(context.Background(), kerneltypes.Envelope{}, identity)

	found := false
	for _, f := range out.Stderr.Failures {
		if f.Type == kerneltypes.FailureInvalidEnvelope {
			found = true
		}
	}
	if !found {
		t.Error("expected an invalid_envelope failure for an empty envelope")
	}
}
