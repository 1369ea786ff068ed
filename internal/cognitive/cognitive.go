// Package cognitive implements the Cognitive Cycle (C2): the seven-phase
// intra-cell state machine (Intake, Assess, Plan, Execute/Monitor, Heal,
// Package) every cell runs regardless of rank.
//
// Grounded on the retrieved teacher codebase's role pipeline — perceiver.go
// (Intake: parse input, enrich memory, set focus), planner.go (Assess/Plan:
// classify and build a plan), executor.go (Execute loop: tool-call-or-generate,
// loop-detection, up to a bounded iteration count), agentval.go (Monitor:
// per-step verdicts, correction loop) — collapsed from the teacher's five
// separate bus-mediated roles into one in-process phase sequence per cell,
// since this spec's Cognitive Cycle is intentionally a single state machine
// rather than a society of always-on roles.
package cognitive

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kernel/cellruntime/internal/budget"
	"github.com/kernel/cellruntime/internal/collab"
	"github.com/kernel/cellruntime/internal/config"
	"github.com/kernel/cellruntime/internal/healing"
	"github.com/kernel/cellruntime/internal/kernelerr"
	"github.com/kernel/cellruntime/internal/kerneltypes"
	"github.com/kernel/cellruntime/internal/tasklog"
	"github.com/kernel/cellruntime/internal/workmem"
)

// Phase names the cell's current state, per the C8 state machine.
type Phase string

const (
	PhaseSpawned   Phase = "spawned"
	PhaseIntaking  Phase = "intaking"
	PhaseAssessing Phase = "assessing"
	PhasePlanning  Phase = "planning"
	PhaseExecuting Phase = "executing"
	PhaseMonitoring Phase = "monitoring"
	PhaseHealing   Phase = "healing"
	PhaseReviewing Phase = "reviewing"
	PhasePackaging Phase = "packaging"
	PhaseTerminated Phase = "terminated"
)

// StepVerdict is the small typed-result variant the Monitor phase returns
// instead of using exceptions for loop exit (§9).
type StepVerdict string

const (
	VerdictContinue         StepVerdict = "continue"
	VerdictReplan           StepVerdict = "replan"
	VerdictTerminateSuccess StepVerdict = "terminate_success"
	VerdictTerminateFailure StepVerdict = "terminate_failure"
)

// DelegationRunner is the interface the Delegation Protocol (C4) satisfies.
// The Cognitive Cycle depends only on this narrow interface so that C2 has no
// import-time dependency on C4, matching the leaf-first dependency order.
type DelegationRunner interface {
	RunDelegation(ctx context.Context, dag []kerneltypes.SubTask) ([]kerneltypes.Artifact, []workmem.ErrorEntry, []kerneltypes.Warning, error)
}

// Cycle runs one cell invocation's seven phases.
type Cycle struct {
	Identity kerneltypes.Identity
	Envelope kerneltypes.Envelope
	Memory   *workmem.WorkingMemory
	Gov      *budget.Governor
	Cfg      config.Thresholds

	Inference collab.Inference
	Knowledge collab.Knowledge
	ToolHost  collab.ToolHost

	Delegation DelegationRunner // nil when the cell cannot delegate (solo/direct only)
	HealingEnabled bool

	Log *tasklog.TaskLog

	phase              Phase
	delegationWarnings []kerneltypes.Warning

	// recentGoals is the sliding window of the last Cfg.DriftWindowN step
	// goals the Monitor phase's drift check compares against the focus.
	recentGoals []string
}

// Result holds a fully populated outbound Envelope. Run itself returns the
// Envelope and an error directly, not a Result.
type Result struct {
	Envelope kerneltypes.Envelope
}

// Run executes Intake → Assess → Plan → Execute/Monitor → Heal → Package in
// strict order, honouring ctx cancellation at every suspension point.
func (c *Cycle) Run(ctx context.Context) (kerneltypes.Envelope, error) {
	start := time.Now()
	c.phase = PhaseIntaking
	c.logPhase(PhaseIntaking)

	if err := c.intake(ctx); err != nil {
		return c.invalidEnvelope(err), nil
	}

	c.phase = PhaseAssessing
	c.logPhase(PhaseAssessing)
	mode := c.assess()

	c.phase = PhasePlanning
	c.logPhase(PhasePlanning)
	steps, dag, err := c.plan(ctx, mode)
	if err != nil {
		return c.failAndPackage(start, fmt.Errorf("plan: %w", err)), nil
	}

	var artifacts []kerneltypes.Artifact
	switch mode {
	case kerneltypes.ModeDelegate, kerneltypes.ModeHierarchy:
		if c.Delegation == nil {
			return c.failAndPackage(start, kernelerr.Runtime(fmt.Sprintf("mode %s requires delegation but none was wired", mode), nil)), nil
		}
		arts, errs, warnings, err := c.Delegation.RunDelegation(ctx, dag)
		if err != nil {
			return c.failAndPackage(start, err), nil
		}
		for _, e := range errs {
			c.Memory.Journal.File(e)
		}
		c.delegationWarnings = warnings
		artifacts = arts
	default:
		c.phase = PhaseExecuting
		c.logPhase(PhaseExecuting)
		artifacts = c.executeLoop(ctx, steps)
	}

	if len(c.Memory.Journal.Unresolved()) > 0 {
		c.phase = PhaseHealing
		c.logPhase(PhaseHealing)
		c.heal(ctx)
	}

	return c.packageEnvelope(start, artifacts), nil
}

func (c *Cycle) logPhase(p Phase) {
	c.Log.PhaseEnter(string(p))
}

// intake parses/validates the inbound envelope, enriches working memory via
// Knowledge, and sets focus. Schema-invalid envelopes never reach Run's
// normal path — invalidEnvelope is called by the caller when validation fails.
func (c *Cycle) intake(ctx context.Context) error {
	if err := ValidateEnvelope(c.Envelope); err != nil {
		return err
	}
	c.Memory.SetFocus(c.Envelope.Instruction.Text)

	if c.Knowledge != nil {
		facts, err := c.Knowledge.Search(ctx, c.Envelope.Instruction.Text, 5, c.Envelope.Context.DomainHints)
		if err == nil {
			for i, f := range facts {
				c.Memory.AddFact(workmem.Fact{
					ID:         fmt.Sprintf("intake-%d", i),
					Content:    f.Content,
					Confidence: f.Confidence,
					Source:     f.Source,
				})
			}
		}
	}
	return nil
}

// ValidateEnvelope rejects any envelope failing schema validation, as §4.1 requires.
func ValidateEnvelope(e kerneltypes.Envelope) error {
	if e.Instruction.Text == "" {
		return kernelerr.Validation("instruction.text is required")
	}
	if e.Constraints.TokenBudget <= 0 {
		return kernelerr.Validation("constraints.token_budget must be positive")
	}
	if e.Constraints.MaxDelegationDepth < 0 {
		return kernelerr.Validation("constraints.max_delegation_depth cannot be negative")
	}
	return nil
}

// assess classifies complexity and maps it to a processing mode per §4.2 step 2.
func (c *Cycle) assess() kerneltypes.Mode {
	text := c.Envelope.Instruction.Text
	hints := len(c.Envelope.Context.DomainHints)
	findingsGap := len(c.Envelope.Context.PriorFindings)
	comparative := hasComparativeOperator(text)

	complexity := classifyComplexity(text, hints, comparative, findingsGap)

	switch complexity {
	case kerneltypes.ComplexityTrivial:
		return kerneltypes.ModeDirect
	case kerneltypes.ComplexitySimple:
		return kerneltypes.ModeSolo
	case kerneltypes.ComplexityModerate:
		if c.Gov.CanDelegate() {
			return kerneltypes.ModeDelegate
		}
		return kerneltypes.ModeSolo
	default: // complex, extreme
		if c.Gov.CanDelegate() {
			return kerneltypes.ModeHierarchy
		}
		return kerneltypes.ModeSolo
	}
}

func classifyComplexity(text string, hintCount int, comparative bool, findingsGap int) kerneltypes.Complexity {
	words := len(strings.Fields(text))
	score := 0
	switch {
	case words <= 8:
		score += 0
	case words <= 20:
		score += 1
	case words <= 40:
		score += 2
	default:
		score += 3
	}
	if hintCount >= 1 {
		score++
	}
	if hintCount >= 3 {
		score++
	}
	if comparative {
		score += 2
	}
	if findingsGap > 0 {
		score++
	}

	switch {
	case score <= 0:
		return kerneltypes.ComplexityTrivial
	case score <= 1:
		return kerneltypes.ComplexitySimple
	case score <= 3:
		return kerneltypes.ComplexityModerate
	case score <= 5:
		return kerneltypes.ComplexityComplex
	default:
		return kerneltypes.ComplexityExtreme
	}
}

func hasComparativeOperator(text string) bool {
	lower := strings.ToLower(text)
	markers := []string{"vs", "versus", "compare", "project", "forecast", "growth", "change from", "increase", "decrease"}
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// plan builds either a linear step_plan (direct/solo) or a SubTask DAG
// (delegate/hierarchy), per §4.2 step 3.
func (c *Cycle) plan(ctx context.Context, mode kerneltypes.Mode) ([]kerneltypes.Step, []kerneltypes.SubTask, error) {
	switch mode {
	case kerneltypes.ModeDelegate, kerneltypes.ModeHierarchy:
		dag, err := c.decompose(ctx)
		return nil, dag, err
	default:
		return c.buildStepPlan(), nil, nil
	}
}

func (c *Cycle) buildStepPlan() []kerneltypes.Step {
	return []kerneltypes.Step{{
		Goal:             c.Envelope.Instruction.Text,
		SuccessCriterion: "produces at least one artifact addressing the instruction",
	}}
}

// decompose partitions the instruction into a SubTask DAG without calling
// the inference provider: an instruction with a comparative marker yields a
// two-phase DAG (two gather subtasks, then one synthesise subtask), and any
// other instruction yields a single-subtask DAG.
func (c *Cycle) decompose(ctx context.Context) ([]kerneltypes.SubTask, error) {
	if hasComparativeOperator(c.Envelope.Instruction.Text) {
		return []kerneltypes.SubTask{
			{ID: "gather-a", Description: "gather first comparison input", Domain: c.Identity.Domain, Sequence: 0, EstimatedComplexity: kerneltypes.ComplexitySimple, ExpectedOutput: "dataset", AssignedRole: "researcher"},
			{ID: "gather-b", Description: "gather second comparison input", Domain: c.Identity.Domain, Sequence: 0, EstimatedComplexity: kerneltypes.ComplexitySimple, ExpectedOutput: "dataset", AssignedRole: "researcher"},
			{ID: "synthesise", Description: "compare and project", Domain: c.Identity.Domain, Sequence: 1, DependsOn: []string{"gather-a", "gather-b"}, EstimatedComplexity: kerneltypes.ComplexityModerate, ExpectedOutput: "recommendation", AssignedRole: "analyst"},
		}, nil
	}
	return []kerneltypes.SubTask{
		{ID: "solo-child", Description: c.Envelope.Instruction.Text, Domain: c.Identity.Domain, Sequence: 0, EstimatedComplexity: kerneltypes.ComplexityModerate, ExpectedOutput: "report", AssignedRole: "generalist"},
	}, nil
}

// executeLoop runs the Execute/Monitor iteration of §4.2 steps 4-5.
func (c *Cycle) executeLoop(ctx context.Context, steps []kerneltypes.Step) []kerneltypes.Artifact {
	var artifacts []kerneltypes.Artifact
	for _, step := range steps {
		if !c.Gov.CanAffordStep(estimateStepCost(step)) {
			e := workmem.ErrorEntry{
				ID: "budget-" + step.Goal, Source: workmem.SourceRuntime,
				ErrorType: "budget_exhaustion_imminent", Message: "insufficient remaining budget for next step",
				Severity: workmem.SeverityMedium,
			}
			c.Memory.Journal.File(e)
			c.Log.ErrorFiled(e.ID, e.ErrorType, string(e.Severity))
			break
		}

		fact, artifact, err := c.runStep(ctx, step)
		if err != nil {
			e := workmem.ErrorEntry{
				ID: "step-" + step.Goal, Source: workmem.SourceToolFailure,
				ErrorType: "step_execution_failed", Message: err.Error(),
				Severity: workmem.SeverityMedium,
			}
			c.Memory.Journal.File(e)
			c.Log.ErrorFiled(e.ID, e.ErrorType, string(e.Severity))
			continue
		}
		c.Memory.AddFact(fact)
		if artifact != nil {
			artifacts = append(artifacts, *artifact)
		}

		sig := workmem.CanonicalHash(step.Goal, []string{fact.Content})
		c.Memory.RecordStepSignature(sig)

		c.recentGoals = append(c.recentGoals, step.Goal)
		if n := c.Cfg.DriftWindowN; n > 0 && len(c.recentGoals) > n {
			c.recentGoals = c.recentGoals[len(c.recentGoals)-n:]
		}

		verdict := c.monitor(step)
		switch verdict {
		case VerdictTerminateFailure:
			return artifacts
		case VerdictTerminateSuccess:
			return artifacts
		case VerdictReplan:
			// a micro-replan returns to Plan with preserved memory; this
			// reference loop simply continues to the next step since its
			// step_plan is not dynamically regenerated mid-loop.
			continue
		}
	}
	return artifacts
}

func estimateStepCost(step kerneltypes.Step) int {
	return 100 + len(step.Goal)
}

// runStep calls the inference provider (and, if it names a tool, the Tool
// Host) for one step, returning the resulting Fact and, if the step produced
// a deliverable, an Artifact.
func (c *Cycle) runStep(ctx context.Context, step kerneltypes.Step) (workmem.Fact, *kerneltypes.Artifact, error) {
	if c.ToolHost != nil && step.PreferredTool != "" && c.Envelope.Authority.HasToolAccess(step.PreferredTool) {
		result, err := c.ToolHost.Execute(ctx, step.PreferredTool, map[string]any{"goal": step.Goal})
		if err != nil {
			c.Log.ToolCall(step.PreferredTool, step.Goal, "", err.Error())
			return workmem.Fact{}, nil, kernelerr.ToolFailure(fmt.Sprintf("tool %s invocation", step.PreferredTool), err)
		}
		if !result.Success && result.Error != nil {
			if !result.Error.Retryable {
				c.Log.ToolCall(step.PreferredTool, step.Goal, "", result.Error.Message)
				return workmem.Fact{}, nil, kernelerr.ToolFailure(fmt.Sprintf("tool %s: %s", step.PreferredTool, result.Error.Message), nil)
			}
			// one repair attempt: re-invoke once with the same goal plus a
			// "repaired" flag; no inference call rewrites the arguments.
			result, err = c.ToolHost.Execute(ctx, step.PreferredTool, map[string]any{"goal": step.Goal, "repaired": true})
			if err != nil || !result.Success {
				c.Log.ToolCall(step.PreferredTool, step.Goal, "", "repair failed")
				return workmem.Fact{}, nil, kernelerr.ToolFailure(fmt.Sprintf("tool %s: repair failed", step.PreferredTool), err)
			}
		}
		content := fmt.Sprintf("%v", result.Output)
		c.Log.ToolCall(step.PreferredTool, step.Goal, content, "")
		return workmem.Fact{ID: step.Goal, Content: content, Confidence: 0.7, Source: step.PreferredTool},
			&kerneltypes.Artifact{ID: step.Goal, Type: kerneltypes.ArtifactEvidence, Title: step.Goal, Content: content, Confidence: 0.7}, nil
	}

	if c.Inference == nil {
		return workmem.Fact{}, nil, kernelerr.Runtime("no inference provider wired", nil)
	}
	system := "Answer the step goal directly and concisely."
	res, err := c.Inference.Generate(ctx, system, []collab.InferenceMessage{{Role: "user", Content: step.Goal}}, collab.InferenceParams{MaxTokens: 512, Temperature: 0.2})
	if err != nil {
		return workmem.Fact{}, nil, err
	}
	c.Gov.Budget().Spend(res.TokensUsed)
	c.Log.InferenceCall(system, step.Goal, res.Text, res.TokensUsed, 0)
	return workmem.Fact{ID: step.Goal, Content: res.Text, Confidence: 0.75, Source: "inference"},
		&kerneltypes.Artifact{ID: step.Goal, Type: kerneltypes.ArtifactReport, Title: step.Goal, Content: res.Text, Confidence: 0.75}, nil
}

// monitor implements §4.2 step 5: drift, stagnation, budget-imminent, and
// success-criterion checks, in that priority order.
func (c *Cycle) monitor(step kerneltypes.Step) StepVerdict {
	if driftDistance(c.recentGoals, c.Memory.FocusText()) > c.Cfg.DriftTau {
		return VerdictReplan
	}
	if c.Memory.StagnationByRepetition(c.Cfg.StagnationWindowM) {
		return VerdictReplan
	}
	if c.Memory.DetectJaccardStagnation(c.Cfg.JaccardWindowW, c.Cfg.JaccardThreshold) {
		return VerdictReplan
	}
	if c.Gov.Budget().Remaining() < c.Cfg.SafetyFloor {
		return VerdictTerminateSuccess // budget-imminent shortcuts straight to Package
	}
	if successCriterionMet(step.SuccessCriterion, c.Memory.FactsSnapshot(), c.Cfg.SuccessCriterionOverlapThreshold) {
		return VerdictTerminateSuccess
	}
	return VerdictContinue
}

// driftDistance is a lexical-overlap proxy for the semantic distance between
// the recent step goals and the cell's current focus: 1 minus the Jaccard
// similarity of their word sets. An empty window (cold start) reports no
// drift, since there is nothing yet to have drifted from.
func driftDistance(recentGoals []string, focus string) float64 {
	if len(recentGoals) == 0 || focus == "" {
		return 0
	}
	return 1 - wordJaccard(strings.Join(recentGoals, " "), focus)
}

// successCriterionMet reports whether the accumulated facts already cover a
// step's success_criterion closely enough, per word overlap, to let Monitor
// terminate early instead of continuing to spend budget on further steps.
func successCriterionMet(criterion string, facts []workmem.Fact, threshold float64) bool {
	if criterion == "" || len(facts) == 0 {
		return false
	}
	var b strings.Builder
	for i, f := range facts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.Content)
	}
	return wordJaccard(criterion, b.String()) >= threshold
}

// wordJaccard is the set-overlap similarity between the lower-cased word
// tokens of a and b; the same lexical-similarity stand-in workmem.jaccard
// uses for stagnation detection, applied here to goal/focus and
// criterion/fact text instead of fact-bag signatures.
func wordJaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = struct{}{}
	}
	return out
}

// heal runs the Self-Healing Loop (C7) against the cell's own error journal.
func (c *Cycle) heal(ctx context.Context) {
	minReserve := c.Envelope.Constraints.TokenBudget / 4
	if minReserve < 1000 {
		minReserve = 1000
	}
	if c.Gov.Budget().Remaining() < minReserve {
		// leave entries unresolved: packageEnvelope records a stderr failure
		// for each and then marks it wont_fix.
		return
	}

	det := healing.NewDetector(c.Cfg, c.Identity.Level.IsManagerOrAbove())
	fixer := &inlineFixer{cycle: c}
	reason := healing.Run(ctx, c.Memory.Journal, c.Gov, det, fixer, c.HealingEnabled)
	c.Log.HealConverged(string(reason), len(c.Memory.Journal.Unresolved()), 0)
}

// inlineFixer is the healing loop's Fixer: it asks the inference provider for
// a one-line fix strategy and reports success. It does not re-execute the
// failed step, and no child cell is spawned to fix an error, whatever the
// error's estimated complexity.
type inlineFixer struct {
	cycle *Cycle
}

func (f *inlineFixer) Fix(ctx context.Context, entry workmem.ErrorEntry) (healing.FixOutcome, error) {
	if f.cycle.Inference == nil {
		return healing.FixOutcome{Result: workmem.FixFailed}, kernelerr.Runtime("no inference provider wired", nil)
	}
	res, err := f.cycle.Inference.Generate(ctx, "Diagnose the root cause and propose a one-line fix strategy.",
		[]collab.InferenceMessage{{Role: "user", Content: entry.Message}},
		collab.InferenceParams{MaxTokens: 256, Temperature: 0.1})
	if err != nil {
		return healing.FixOutcome{Result: workmem.FixFailed}, err
	}
	f.cycle.Gov.Budget().Spend(res.TokensUsed)
	f.cycle.Log.FixAttempt(entry.ID, res.Text, string(workmem.FixSuccess))
	return healing.FixOutcome{
		Result:         workmem.FixSuccess,
		Strategy:       res.Text,
		TokensConsumed: res.TokensUsed,
	}, nil
}

// packageEnvelope implements §4.2 step 7.
func (c *Cycle) packageEnvelope(start time.Time, artifacts []kerneltypes.Artifact) kerneltypes.Envelope {
	out := c.Envelope
	out.EnvelopeVersion = kerneltypes.CurrentEnvelopeVersion

	floor := kerneltypes.QualityFloor(c.Envelope.Constraints.QualityLevel)
	warnings := append([]kerneltypes.Warning(nil), c.delegationWarnings...)
	for i := range artifacts {
		if artifacts[i].Confidence < floor {
			warnings = append(warnings, kerneltypes.Warning{Type: kerneltypes.WarningLowConfidence, Message: fmt.Sprintf("artifact %s below quality floor %.2f", artifacts[i].ID, floor)})
		}
	}

	var failures []kerneltypes.Failure
	for _, e := range c.Memory.Journal.Unresolved() {
		failures = append(failures, kerneltypes.Failure{Type: kerneltypes.FailureType(e.Source), Message: e.Message})
		c.Memory.Journal.Transition(e.ID, workmem.StatusWontFix)
	}

	var keyFindings []string
	sort.SliceStable(artifacts, func(i, j int) bool { return false }) // causal order already preserved by construction
	for _, a := range artifacts {
		if a.Title != "" {
			keyFindings = append(keyFindings, a.Title)
		}
	}

	wp := &kerneltypes.WorkPackage{
		Summary:           summarise(artifacts),
		Artifacts:         artifacts,
		OverallConfidence: kerneltypes.OverallConfidence(artifacts),
		KeyFindings:       keyFindings,
	}

	if len(artifacts) == 0 {
		out.Stdout = kerneltypes.Stdout{}
		if len(failures) == 0 {
			failures = append(failures, kerneltypes.Failure{Type: kerneltypes.FailureBudgetExhausted, Message: "no artifacts produced"})
		}
	} else {
		out.Stdout = kerneltypes.Stdout{
			Format:      formatFor(artifacts),
			WorkPackage: wp,
			Summary:     wp.Summary,
		}
	}

	out.Stderr = kerneltypes.Stderr{Warnings: warnings, Failures: failures}
	out.Metadata = kerneltypes.Metadata{
		CellID:     c.Identity.CellID,
		TraceID:    c.Envelope.Context.ParentTaskID,
		TokensUsed: c.Envelope.Constraints.TokenBudget - c.Gov.Budget().Remaining(),
		DurationMs: time.Since(start).Milliseconds(),
		Confidence: wp.OverallConfidence,
	}
	c.phase = PhaseTerminated
	return out
}

func (c *Cycle) failAndPackage(start time.Time, err error) kerneltypes.Envelope {
	c.Memory.Journal.File(workmem.ErrorEntry{ID: "fatal", Source: workmem.SourceValidation, ErrorType: "fatal", Message: err.Error(), Severity: workmem.SeverityCritical})
	return c.packageEnvelope(start, nil)
}

func (c *Cycle) invalidEnvelope(err error) kerneltypes.Envelope {
	out := c.Envelope
	out.EnvelopeVersion = kerneltypes.CurrentEnvelopeVersion
	out.Stdout = kerneltypes.Stdout{}
	out.Stderr = kerneltypes.Stderr{Failures: []kerneltypes.Failure{{Type: kerneltypes.FailureInvalidEnvelope, Message: err.Error()}}}
	out.Metadata = kerneltypes.Metadata{CellID: c.Identity.CellID}
	return out
}

func summarise(artifacts []kerneltypes.Artifact) string {
	if len(artifacts) == 0 {
		return "no artifacts produced"
	}
	var b strings.Builder
	for i, a := range artifacts {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(a.Title)
	}
	return b.String()
}

func formatFor(artifacts []kerneltypes.Artifact) kerneltypes.StdoutFormat {
	if len(artifacts) == 0 {
		return kerneltypes.FormatBrief
	}
	switch artifacts[len(artifacts)-1].Type {
	case kerneltypes.ArtifactDataset:
		return kerneltypes.FormatDataset
	case kerneltypes.ArtifactRecommendation:
		return kerneltypes.FormatRecommendation
	case kerneltypes.ArtifactCode:
		return kerneltypes.FormatCode
	default:
		return kerneltypes.FormatReport
	}
}
