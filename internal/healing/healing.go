// Package healing implements the Self-Healing Loop (C7): the
// error-journal-driven fix/cascade/convergence cycle triggered from the
// Cognitive Cycle's Heal phase or when a parent detects child failure.
//
// Structurally grounded on the gradient/loss convergence machinery in the
// retrieved teacher codebase's internal/roles/ggs package: that component
// computes a loss over (distance-to-intent, process-implausibility,
// resource-cost) and derives a directive from its gradient. This package
// generalises the same "track an improvement signal, stop on diminishing
// returns or budget exhaustion" shape to the error journal's unresolved-count
// signal, which is what this spec's Convergence Detector is actually defined
// over (§4.7), rather than the teacher's domain-specific D/P/Ω loss.
package healing

import (
	"context"
	"sort"
	"strconv"

	"github.com/kernel/cellruntime/internal/budget"
	"github.com/kernel/cellruntime/internal/config"
	"github.com/kernel/cellruntime/internal/kerneltypes"
	"github.com/kernel/cellruntime/internal/workmem"
)

// FixOutcome is what one Fixer.Fix call reports. Any cascade candidates it
// proposes are validated against live memory state before admission (see
// cascade_check in §4.7 — only the admission-against-actual-state half lives
// in this package; proposing candidates is left to the Fixer).
type FixOutcome struct {
	Result           workmem.FixResult
	Strategy         string
	TokensConsumed   int
	CascadeCandidates []CascadeCandidate // proposed by the caller's inference call
}

// CascadeCandidate is a speculative follow-on error proposed after a fix;
// Validate determines whether it is admitted to the journal.
type CascadeCandidate struct {
	ErrorType   string
	Message     string
	Context     string
	Severity    workmem.Severity
	Complexity  kerneltypes.Complexity
	// Validate reports whether the candidate is backed by actual memory state
	// (e.g. the referenced artifact still exists, the recomputed number still
	// matches its cited source). Pure speculation without evidence is dropped.
	Validate func() bool
}

// Fixer performs one fix attempt for a single ErrorEntry and proposes cascade
// candidates; it is supplied by the Cognitive Cycle, since fixing may itself
// run a mini cognitive cycle or spawn a child cell (§4.7).
type Fixer interface {
	Fix(ctx context.Context, entry workmem.ErrorEntry) (FixOutcome, error)
}

// ConvergenceReason names why the loop stopped.
type ConvergenceReason string

const (
	ReasonFullyConverged    ConvergenceReason = "fully_converged"
	ReasonBudgetExhausted   ConvergenceReason = "budget_exhausted"
	ReasonMaxIterations     ConvergenceReason = "max_iterations"
	ReasonMaxCascadeDepth   ConvergenceReason = "max_cascade_depth"
	ReasonDiminishingReturns ConvergenceReason = "diminishing_returns"
	ReasonContinue          ConvergenceReason = "" // loop should continue
)

// Decision is the Convergence Detector's per-iteration verdict.
type Decision struct {
	Continue bool
	Reason   ConvergenceReason
}

// Detector implements convergence.should_continue(journal, budget).
type Detector struct {
	cfg              config.Thresholds
	maxHealIterations int
	cascadeDepth     int
	iteration        int

	// lastAttempted/lastFixed record the prior iteration's fix-pass outcome,
	// set via RecordIterationOutcome; haveIterated guards the first
	// iteration, which has no prior pass to compare against.
	lastAttempted int
	lastFixed     int
	haveIterated  bool
}

// NewDetector seeds a Detector for one Heal-phase invocation. isManager
// selects the per-level max_heal_iterations default (§4.7: 1 for staff,
// 3 for manager-and-above).
func NewDetector(cfg config.Thresholds, isManager bool) *Detector {
	return &Detector{
		cfg:               cfg,
		maxHealIterations: cfg.MaxHealIterations(isManager),
	}
}

// ShouldContinue evaluates the stop conditions against the journal and
// budget's current state. Diminishing returns is judged on the fix success
// rate of the iteration just completed (fixed/attempted), not on raw
// unresolved-count delta, since admitting a cascade can increase the
// unresolved count even on an otherwise-productive iteration.
func (d *Detector) ShouldContinue(journal *workmem.ErrorJournal, b *budget.TokenBudget) Decision {
	unresolved := journal.Unresolved()
	curr := len(unresolved)

	if curr == 0 {
		return Decision{Continue: false, Reason: ReasonFullyConverged}
	}
	if b.Remaining() < d.cfg.MinHealReserve {
		return Decision{Continue: false, Reason: ReasonBudgetExhausted}
	}
	if d.iteration >= d.maxHealIterations {
		return Decision{Continue: false, Reason: ReasonMaxIterations}
	}
	if d.cascadeDepth >= d.cfg.MaxCascadeDepthLimit {
		return Decision{Continue: false, Reason: ReasonMaxCascadeDepth}
	}
	if d.haveIterated {
		denom := d.lastAttempted
		if denom < 1 {
			denom = 1
		}
		ratio := float64(d.lastFixed) / float64(denom)
		if ratio < d.cfg.DiminishingReturnsThreshold {
			return Decision{Continue: false, Reason: ReasonDiminishingReturns}
		}
	}

	return Decision{Continue: true, Reason: ReasonContinue}
}

// RecordIterationOutcome is called once per loop iteration with how many
// entries the fix pass attempted and how many it fixed, feeding the next
// ShouldContinue call's diminishing-returns ratio.
func (d *Detector) RecordIterationOutcome(attempted, fixed int) {
	d.lastAttempted = attempted
	d.lastFixed = fixed
	d.haveIterated = true
}

// AdvanceIteration is called once per loop iteration (after ShouldContinue
// returns Continue: true and the fix pass for that iteration has run).
func (d *Detector) AdvanceIteration() { d.iteration++ }

// RecordCascadeGeneration is called whenever a fix produces at least one
// admitted cascade, deepening the cascade chain being chased.
func (d *Detector) RecordCascadeGeneration() { d.cascadeDepth++ }

// Prioritise orders unresolved entries by descending severity, the order the
// Self-Healing Loop's inner for-loop consumes (journal.Unresolved already
// does this sort; Prioritise exists as the named hook the pseudocode calls out).
func Prioritise(unresolved []workmem.ErrorEntry) []workmem.ErrorEntry {
	out := append([]workmem.ErrorEntry(nil), unresolved...)
	sort.SliceStable(out, func(i, j int) bool {
		return severityWeight(out[i].Severity) > severityWeight(out[j].Severity)
	})
	return out
}

func severityWeight(s workmem.Severity) int {
	switch s {
	case workmem.SeverityCritical:
		return 3
	case workmem.SeverityHigh:
		return 2
	case workmem.SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Run executes the full healing loop described in §4.7's pseudocode: it asks
// the Detector whether to continue, then for each unresolved error (most
// severe first) consults the Governor's can_heal(), fixes, cascade-checks,
// and links any admitted cascades, until the Detector calls a halt.
func Run(ctx context.Context, journal *workmem.ErrorJournal, gov *budget.Governor, det *Detector, fixer Fixer, healingEnabled bool) ConvergenceReason {
	var lastReason ConvergenceReason
	for {
		decision := det.ShouldContinue(journal, gov.Budget())
		if !decision.Continue {
			lastReason = decision.Reason
			break
		}

		var attempted, fixed int
		for _, entry := range Prioritise(journal.Unresolved()) {
			if !gov.CanHeal(healingEnabled) {
				break
			}
			attempted++
			journal.Transition(entry.ID, workmem.StatusDiagnosing)
			journal.Transition(entry.ID, workmem.StatusFixing)

			outcome, err := fixer.Fix(ctx, entry)
			if err != nil {
				journal.AddAttempt(entry.ID, workmem.FixAttempt{
					N: len(entry.Attempts) + 1, Result: workmem.FixFailed,
				})
				continue
			}

			journal.AddAttempt(entry.ID, workmem.FixAttempt{
				N:              len(entry.Attempts) + 1,
				Strategy:       outcome.Strategy,
				Result:         outcome.Result,
				TokensConsumed: outcome.TokensConsumed,
			})

			admitted := admitCascades(journal, entry.ID, outcome.CascadeCandidates)
			if len(admitted) > 0 {
				det.RecordCascadeGeneration()
			}

			if outcome.Result == workmem.FixSuccess {
				fixed++
				journal.Transition(entry.ID, workmem.StatusFixed)
				journal.ReconcileCascadeStatus(entry.ID)
				// a resolved cascade child can let its own originating
				// error converge too, so reconciliation must walk up.
				for _, rel := range entry.RelatedErrors {
					journal.ReconcileCascadeStatus(rel)
				}
			}
		}
		det.RecordIterationOutcome(attempted, fixed)
		det.AdvanceIteration()
	}
	return lastReason
}

// admitCascades validates each candidate against live state and, for the
// ones that pass, files a new ErrorEntry linked to the originating error.
func admitCascades(journal *workmem.ErrorJournal, originID string, candidates []CascadeCandidate) []string {
	var admittedIDs []string
	for i, c := range candidates {
		if c.Validate == nil || !c.Validate() {
			continue // pure speculation without evidence is dropped
		}
		id := originID + "-cascade-" + strconv.Itoa(i)
		journal.File(workmem.ErrorEntry{
			ID:                  id,
			Source:              workmem.SourceValidation,
			ErrorType:           c.ErrorType,
			Message:             c.Message,
			Context:             c.Context,
			Severity:            c.Severity,
			RelatedErrors:       []string{originID},
			EstimatedComplexity: c.Complexity,
		})
		journal.LinkCascade(originID, id)
		admittedIDs = append(admittedIDs, id)
	}
	return admittedIDs
}
