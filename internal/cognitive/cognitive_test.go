package cognitive

import (
	"context"
	"testing"

	"github.com/kernel/cellruntime/internal/budget"
	"github.com/kernel/cellruntime/internal/collab"
	"github.com/kernel/cellruntime/internal/collab/knowledge"
	"github.com/kernel/cellruntime/internal/collab/toolhost"
	"github.com/kernel/cellruntime/internal/config"
	"github.com/kernel/cellruntime/internal/kerneltypes"
	"github.com/kernel/cellruntime/internal/tasklog"
	"github.com/kernel/cellruntime/internal/workmem"

	"github.com/stretchr/testify/require"
)

// testThresholds builds a valid Thresholds without going through config.Load,
// since these tests need no file or env state.
func testThresholds() (config.Thresholds, error) {
	t := config.Thresholds{
		DriftTau: 0.2, StagnationEpsilon: 0.05, DriftWindowN: 5, StagnationWindowM: 3,
		JaccardWindowW: 3, JaccardThreshold: 0.95, CompressionAgeK: 50,
		SafetyFloor: 100, MinHealReserve: 500, PerChildMinimum: 100,
		MaxParallelChildren: 4, MaxReviewRounds: 2, DiminishingReturnsThreshold: 0.1,
		MaxCascadeDepthLimit: 3, MaxHealIterationsStaff: 1, MaxHealIterationsManager: 3,
		WindDownSeconds: 5, DefaultToolTimeoutSeconds: 10, MailboxCapacity: 32,
		WorkerPoolMultiplier: 2, WorkerPoolCap: 16, LateralHealingEnabled: false,
		SuccessCriterionOverlapThreshold: 0.3,
	}
	return t, config.Validate(t)
}

// stubInference returns a fixed reply regardless of input, for deterministic tests.
type stubInference struct {
	text   string
	tokens int
}

func (s stubInference) Generate(ctx context.Context, system string, messages []collab.InferenceMessage, params collab.InferenceParams) (collab.InferenceResult, error) {
	return collab.InferenceResult{Text: s.text, TokensUsed: s.tokens}, nil
}

// --- ValidateEnvelope ---

func TestValidateEnvelope_RejectsEmptyInstruction(t *testing.T) {
	// ValidateEnvelope rejects an envelope with no instruction text
	env := kerneltypes.Envelope{Constraints: kerneltypes.Constraints{TokenBudget: 100}}
	if err := ValidateEnvelope(env); err == nil {
		t.Error("expected error for empty instruction text")
	}
}

func TestValidateEnvelope_RejectsZeroBudget(t *testing.T) {
	// ValidateEnvelope rejects an envelope with a non-positive token budget
	env := kerneltypes.Envelope{Instruction: kerneltypes.Instruction{Text: "do something"}}
	if err := ValidateEnvelope(env); err == nil {
		t.Error("expected error for zero token_budget")
	}
}

func TestValidateEnvelope_AcceptsWellFormed(t *testing.T) {
	// ValidateEnvelope accepts an envelope with non-empty instruction and positive budget
	env := kerneltypes.Envelope{
		Instruction: kerneltypes.Instruction{Text: "research the topic"},
		Constraints: kerneltypes.Constraints{TokenBudget: 1000},
	}
	if err := ValidateEnvelope(env); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

// --- classifyComplexity ---

func TestClassifyComplexity_ShortPlainTextIsTrivial(t *testing.T) {
	// A short instruction with no hints or comparative markers classifies as trivial
	got := classifyComplexity("summarise this", 0, false, 0)
	if got != kerneltypes.ComplexityTrivial {
		t.Errorf("got %q, want trivial", got)
	}
}

func TestClassifyComplexity_ComparativeLongTextIsHighComplexity(t *testing.T) {
	// A long instruction with domain hints and a comparative marker classifies above moderate
	got := classifyComplexity("compare our Q3 revenue growth versus the prior quarter and project the trend for next year across every region we operate in", 3, true, 1)
	if got != kerneltypes.ComplexityComplex && got != kerneltypes.ComplexityExtreme {
		t.Errorf("got %q, want complex or extreme", got)
	}
}

// --- hasComparativeOperator ---

func TestHasComparativeOperator_DetectsCompareKeyword(t *testing.T) {
	// hasComparativeOperator recognises "compare" regardless of case
	if !hasComparativeOperator("Compare these two options") {
		t.Error("expected true for text containing 'Compare'")
	}
}

func TestHasComparativeOperator_FalseForUnrelatedText(t *testing.T) {
	// hasComparativeOperator returns false when no comparative marker is present
	if hasComparativeOperator("write a haiku about the ocean") {
		t.Error("expected false for unrelated text")
	}
}

// --- Cycle.Run end-to-end (direct/solo mode) ---

func newTestCycle(env kerneltypes.Envelope) (*Cycle, *budget.Governor) {
	cfg, _ := testThresholds()
	b := budget.New(env.Constraints.TokenBudget, 3, env.Authority.CanDelegate, budget.AllocationEqual)
	gov := budget.NewGovernor(b, kerneltypes.LevelStaff, env.Authority, cfg)
	mem := workmem.New(cfg.StagnationWindowM)
	reg := tasklog.NewRegistry("") // Open will fail silently without a dir; logging calls stay nil-safe
	log := reg.Open("test-cell", string(env.Instruction.Intent))
	cycle := &Cycle{
		Identity:  kerneltypes.Identity{CellID: "test-cell", Level: kerneltypes.LevelStaff, Domain: "general"},
		Envelope:  env,
		Memory:    mem,
		Gov:       gov,
		Cfg:       cfg,
		Inference: stubInference{text: "the answer is 42", tokens: 50},
		Knowledge: knowledge.New(),
		ToolHost:  toolhost.New(),
		Log:       log,
	}
	return cycle, gov
}

func TestCycle_Run_ProducesArtifactForTrivialInstruction(t *testing.T) {
	// A trivial, non-delegating instruction runs in direct mode and produces one artifact
	env := kerneltypes.Envelope{
		Instruction: kerneltypes.Instruction{Text: "summarise this note", Intent: kerneltypes.IntentSynthesise},
		Constraints: kerneltypes.Constraints{TokenBudget: 5000, QualityLevel: kerneltypes.QualityDraft, MaxDelegationDepth: 2},
	}
	cycle, _ := newTestCycle(env)

	out, err := cycle.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Stdout.WorkPackage == nil {
		t.Fatal("expected a work package in stdout")
	}
	if len(out.Stdout.WorkPackage.Artifacts) == 0 {
		t.Error("expected at least one artifact")
	}
	if out.EnvelopeVersion != kerneltypes.CurrentEnvelopeVersion {
		t.Errorf("envelope_version = %q, want %q", out.EnvelopeVersion, kerneltypes.CurrentEnvelopeVersion)
	}
}

func TestCycle_Run_RejectsInvalidEnvelope(t *testing.T) {
	// An envelope failing schema validation returns invalid_envelope in stderr, no stdout
	env := kerneltypes.Envelope{} // no instruction text, no budget
	cycle, _ := newTestCycle(env)

	out, err := cycle.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out.Stdout.WorkPackage != nil {
		t.Error("expected nil work package for invalid envelope")
	}
	found := false
	for _, f := range out.Stderr.Failures {
		if f.Type == kerneltypes.FailureInvalidEnvelope {
			found = true
		}
	}
	if !found {
		t.Error("expected an invalid_envelope failure")
	}
}

// --- monitor helpers: drift and success-criterion ---

func TestDriftDistance_ZeroForColdStart(t *testing.T) {
	// driftDistance reports no drift when the recent-goals window is empty
	if got := driftDistance(nil, "research the market"); got != 0 {
		t.Errorf("got %v, want 0 for an empty goal window", got)
	}
}

func TestDriftDistance_LowForMatchingWording(t *testing.T) {
	// driftDistance is near zero when recent goals share most words with the focus
	got := driftDistance([]string{"research the market size"}, "research the market size")
	if got > 0.05 {
		t.Errorf("got %v, want near 0 for matching wording", got)
	}
}

func TestDriftDistance_HighForUnrelatedWording(t *testing.T) {
	// driftDistance is high when recent goals share no words with the focus
	got := driftDistance([]string{"bake a cake"}, "audit the financial statements")
	if got < 0.9 {
		t.Errorf("got %v, want near 1 for disjoint wording", got)
	}
}

func TestSuccessCriterionMet_FalseWithNoFacts(t *testing.T) {
	// successCriterionMet is false when no facts have been accumulated yet
	if successCriterionMet("produces a report", nil, 0.3) {
		t.Error("expected false with zero facts")
	}
}

func TestSuccessCriterionMet_TrueWhenFactsCoverCriterion(t *testing.T) {
	// successCriterionMet is true once accumulated facts overlap the criterion above threshold
	facts := []workmem.Fact{{ID: "f1", Content: "quarterly revenue grew 12 percent"}}
	if !successCriterionMet("quarterly revenue growth", facts, 0.3) {
		t.Error("expected true for facts closely covering the criterion")
	}
}

func TestSuccessCriterionMet_FalseWhenFactsDontCoverCriterion(t *testing.T) {
	// successCriterionMet stays false when accumulated facts share no words with the criterion
	facts := []workmem.Fact{{ID: "f1", Content: "the weather today is sunny"}}
	if successCriterionMet("quarterly revenue growth", facts, 0.3) {
		t.Error("expected false for unrelated facts")
	}
}

// --- Execute loop: tool schema repair (one rejected call, then accepted) ---

func TestExecuteLoop_RepairsRejectedToolCallThenProducesArtifact(t *testing.T) {
	// A tool that rejects its first call with a retryable schema error and
	// accepts the repaired retry yields one artifact and no step-execution error.
	env := kerneltypes.Envelope{
		Instruction: kerneltypes.Instruction{Text: "look something up", Intent: kerneltypes.IntentExecute},
		Constraints: kerneltypes.Constraints{TokenBudget: 5000, QualityLevel: kerneltypes.QualityDraft, MaxDelegationDepth: 0},
		Authority:   kerneltypes.Authority{ToolAccess: []string{"lookup"}},
	}
	cycle, _ := newTestCycle(env)

	host := toolhost.New()
	host.Register(collab.ToolSchema{Name: "lookup"}, toolhost.RejectThenAccept(2, collab.ToolResult{Success: true, Output: "42"}))
	cycle.ToolHost = host

	require.NoError(t, cycle.intake(context.Background()))
	steps := []kerneltypes.Step{{Goal: "look something up", PreferredTool: "lookup", SuccessCriterion: "found the value"}}

	artifacts := cycle.executeLoop(context.Background(), steps)

	require.Len(t, artifacts, 1)
	require.Equal(t, 2, host.CallCount("lookup"))
	require.Empty(t, cycle.Memory.Journal.Unresolved())
}

func TestCycle_Run_LowConfidenceArtifactWarnsBelowQualityFloor(t *testing.T) {
	// An artifact whose confidence sits below the quality floor triggers a low_confidence warning
	env := kerneltypes.Envelope{
		Instruction: kerneltypes.Instruction{Text: "draft a quick note", Intent: kerneltypes.IntentExecute},
		Constraints: kerneltypes.Constraints{TokenBudget: 5000, QualityLevel: kerneltypes.QualityPublication, MaxDelegationDepth: 2},
	}
	cycle, _ := newTestCycle(env)

	out, err := cycle.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	found := false
	for _, w := range out.Stderr.Warnings {
		if w.Type == kerneltypes.WarningLowConfidence {
			found = true
		}
	}
	if !found {
		t.Error("expected a low_confidence warning under the publication quality floor")
	}
}
