// Package delegation implements the Spawn and Review verbs of the Delegation
// Protocol (C4), which a cell in delegate or hierarchy mode runs instead of
// executing its step_plan directly. Decompose happens in the cognitive cycle,
// and there is no Supervise step: the bus is not read while children run.
//
// Grounded on the retrieved teacher codebase's cmd/agsh/main.go subtask
// dispatcher: dispatchSeq groups subtasks by their resolved sequence number
// and runs each sequence's subtasks concurrently with a WaitGroup, advancing
// to the next sequence only once every task in the current one has reported
// back. This package keeps that phase-barrier shape but replaces the
// WaitGroup with golang.org/x/sync/errgroup, since Spawn additionally needs
// first-error cancellation semantics the teacher's dispatcher did not.
package delegation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kernel/cellruntime/internal/budget"
	"github.com/kernel/cellruntime/internal/bus"
	"github.com/kernel/cellruntime/internal/config"
	"github.com/kernel/cellruntime/internal/kernelerr"
	"github.com/kernel/cellruntime/internal/kerneltypes"
	"github.com/kernel/cellruntime/internal/workmem"
)

// ChildRunner is implemented by the Cell Runtime (C8); it is the recursive
// call back into process() that Spawn invokes once per child SubTask. This
// narrow interface is how Delegation avoids importing Cell, matching the
// spec's declared C2→C4→C8 dependency order.
type ChildRunner interface {
	RunChild(ctx context.Context, env kerneltypes.Envelope, childBudget *budget.TokenBudget) (kerneltypes.Envelope, error)
}

// ReviewVerdict is the Review phase's per-child outcome.
type ReviewVerdict string

const (
	VerdictAccept   ReviewVerdict = "accept"
	VerdictFeedback ReviewVerdict = "feedback"
)

// Protocol runs Spawn and Review for one parent cell invocation. Bus is held
// but not read: PROGRESS, ESCALATE, INSIGHT and CLARIFY messages from children
// are not handled here.
type Protocol struct {
	ParentIdentity kerneltypes.Identity
	ParentEnvelope kerneltypes.Envelope
	Gov            *budget.Governor
	Cfg            config.Thresholds
	Bus            *bus.Bus
	Runner         ChildRunner

	// QualityFloor gates Review's accept/feedback decision; defaults to the
	// parent envelope's own quality_level floor when unset.
	QualityFloor float64
}

// childReview tracks one child's accumulated review rounds.
type childReview struct {
	subtask      kerneltypes.SubTask
	rounds       int
	best         kerneltypes.Envelope
	finalVerdict ReviewVerdict
}

// RunDelegation implements cognitive.DelegationRunner: Decompose has already
// happened (the DAG is the input); this rejects a DAG with more subtasks than
// max_parallel_children, then runs Spawn and Review to produce the parent's
// artifact list plus any errors children surfaced. When
// two sibling branches report artifacts under the same title with differing
// content, Review's tie-break resolves the contradiction per §4.4: prefer
// higher confidence, then more independent sources, else keep both and warn.
func (p *Protocol) RunDelegation(ctx context.Context, dag []kerneltypes.SubTask) ([]kerneltypes.Artifact, []workmem.ErrorEntry, []kerneltypes.Warning, error) {
	if err := checkAcyclic(dag); err != nil {
		return nil, nil, nil, err
	}
	if len(dag) > p.Cfg.MaxParallelChildren {
		return nil, nil, nil, kernelerr.Validation(fmt.Sprintf("decomposition has %d subtasks, above max_parallel_children %d", len(dag), p.Cfg.MaxParallelChildren))
	}

	children, err := p.spawnAndReview(ctx, dag)
	if err != nil {
		return nil, nil, nil, kernelerr.DelegationFailure("spawn and review", err)
	}

	var raw []kerneltypes.Artifact
	var errs []workmem.ErrorEntry
	for _, c := range sortBySequence(children) {
		wp := c.best.Stdout.WorkPackage
		if wp == nil {
			for _, f := range c.best.Stderr.Failures {
				errs = append(errs, workmem.ErrorEntry{
					ID: c.subtask.ID + "-failed", Source: workmem.SourceDelegationFailure,
					ErrorType: string(f.Type), Message: f.Message, Severity: workmem.SeverityHigh,
				})
			}
			continue
		}
		if c.finalVerdict == VerdictFeedback {
			errs = append(errs, workmem.ErrorEntry{
				ID: c.subtask.ID + "-quality-gate", Source: workmem.SourceQualityGate,
				ErrorType: "below_quality_floor",
				Message:   kernelerr.QualityGate(fmt.Sprintf("child %s exhausted review rounds below the required confidence floor", c.subtask.ID)).Error(),
				Severity:  workmem.SeverityMedium,
			})
		}
		raw = append(raw, wp.Artifacts...)
	}

	artifacts, warnings := tieBreak(raw)
	return artifacts, errs, warnings, nil
}

// tieBreak groups artifacts by title and, for any title with more than one
// differing-content artifact, resolves the contradiction: the artifact with
// higher confidence wins; a confidence tie falls to the one with more
// independent sources; a true tie keeps both and emits a contradiction
// warning so the parent's stderr surfaces the disagreement instead of
// silently picking one side. Order is preserved so causal sequencing
// (earlier artifacts as inputs to later ones) survives the collapse.
func tieBreak(artifacts []kerneltypes.Artifact) ([]kerneltypes.Artifact, []kerneltypes.Warning) {
	byTitle := make(map[string][]int, len(artifacts))
	for i, a := range artifacts {
		byTitle[a.Title] = append(byTitle[a.Title], i)
	}

	drop := make(map[int]bool)
	var warnings []kerneltypes.Warning
	for title, idxs := range byTitle {
		if len(idxs) < 2 {
			continue
		}
		if !hasContradiction(artifacts, idxs) {
			continue
		}
		winner, tied := pickWinner(artifacts, idxs)
		for _, i := range idxs {
			if i != winner {
				drop[i] = true
			}
		}
		if tied {
			for _, i := range idxs {
				delete(drop, i) // a true tie keeps every competing hypothesis
			}
			warnings = append(warnings, kerneltypes.Warning{
				Type:    kerneltypes.WarningContradiction,
				Message: fmt.Sprintf("artifact %q: %d sibling branches produced conflicting content with no clear tie-break winner", title, len(idxs)),
			})
		} else {
			warnings = append(warnings, kerneltypes.Warning{
				Type:    kerneltypes.WarningContradiction,
				Message: fmt.Sprintf("artifact %q: resolved conflicting sibling content in favour of %s", title, artifacts[winner].ID),
			})
		}
	}

	out := make([]kerneltypes.Artifact, 0, len(artifacts))
	for i, a := range artifacts {
		if !drop[i] {
			out = append(out, a)
		}
	}
	return out, warnings
}

// hasContradiction reports whether the artifacts at idxs disagree on content;
// identical content across siblings is corroboration, not a contradiction.
func hasContradiction(artifacts []kerneltypes.Artifact, idxs []int) bool {
	first := artifacts[idxs[0]].Content
	for _, i := range idxs[1:] {
		if artifacts[i].Content != first {
			return true
		}
	}
	return false
}

// pickWinner applies the §4.4 tie-break order: higher confidence first, then
// more independent sources. tied is true only when every candidate matches
// the winner on both criteria, meaning every competing hypothesis must be kept.
func pickWinner(artifacts []kerneltypes.Artifact, idxs []int) (winner int, tied bool) {
	winner = idxs[0]
	for _, i := range idxs[1:] {
		switch {
		case artifacts[i].Confidence > artifacts[winner].Confidence:
			winner = i
		case artifacts[i].Confidence == artifacts[winner].Confidence && len(artifacts[i].Sources) > len(artifacts[winner].Sources):
			winner = i
		}
	}
	tied = true
	for _, i := range idxs {
		if artifacts[i].Confidence != artifacts[winner].Confidence || len(artifacts[i].Sources) != len(artifacts[winner].Sources) {
			tied = false
			break
		}
	}
	return winner, tied
}

// complexityWeight maps a SubTask's estimated complexity to its Carve weight
// under AllocationWeighted, so a subtask expected to take more work is
// carved a proportionally larger sub-budget than its siblings.
func complexityWeight(c kerneltypes.Complexity) float64 {
	switch c {
	case kerneltypes.ComplexityTrivial:
		return 0.5
	case kerneltypes.ComplexitySimple:
		return 1
	case kerneltypes.ComplexityModerate:
		return 2
	case kerneltypes.ComplexityComplex:
		return 3
	case kerneltypes.ComplexityExtreme:
		return 4
	default:
		return 1
	}
}

// spawnAndReview runs the Spawn→Review cycle phase-by-phase: every
// subtask sharing a Sequence value is dispatched concurrently (bounded by
// max_parallel_children), and a phase only advances once all of its subtasks
// have been reviewed to VerdictAccept or exhausted their round cap.
func (p *Protocol) spawnAndReview(ctx context.Context, dag []kerneltypes.SubTask) ([]*childReview, error) {
	phases := groupBySequence(dag)
	sem := semaphore.NewWeighted(int64(p.Cfg.MaxParallelChildren))

	weights := make([]float64, len(dag))
	priorityIdx := 0
	for i, st := range dag {
		weights[i] = complexityWeight(st.EstimatedComplexity)
		if weights[i] > weights[priorityIdx] {
			priorityIdx = i
		}
	}
	budgets, err := p.Gov.Carve(len(dag), weights, priorityIdx)
	if err != nil {
		return nil, kernelerr.Runtime("carve child budgets", err)
	}
	budgetOf := make(map[string]*budget.TokenBudget, len(dag))
	for i, st := range dag {
		budgetOf[st.ID] = budgets[i]
	}

	var mu sync.Mutex
	results := make(map[string]*childReview, len(dag))

	for _, phase := range phases {
		g, gctx := errgroup.WithContext(ctx)
		for _, st := range phase {
			st := st
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				cr, err := p.runChildWithReview(gctx, st, budgetOf[st.ID])
				if err != nil {
					return kernelerr.DelegationFailure(fmt.Sprintf("subtask %s", st.ID), err)
				}
				mu.Lock()
				results[st.ID] = cr
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([]*childReview, 0, len(results))
	for _, st := range dag {
		if cr, ok := results[st.ID]; ok {
			out = append(out, cr)
		}
	}
	return out, nil
}

// runChildWithReview runs one child through Spawn, then Review rounds: on
// VerdictFeedback it re-invokes the same child with the feedback folded into
// the instruction, up to max_review_rounds per child.
func (p *Protocol) runChildWithReview(ctx context.Context, st kerneltypes.SubTask, b *budget.TokenBudget) (*childReview, error) {
	cr := &childReview{subtask: st}
	env := p.childEnvelope(st)

	for {
		cr.rounds++
		result, err := p.Runner.RunChild(ctx, env, b)
		if err != nil {
			return nil, err
		}
		cr.best = result

		verdict, feedback := p.review(result)
		cr.finalVerdict = verdict
		if verdict == VerdictAccept || cr.rounds >= p.Cfg.MaxReviewRounds {
			return cr, nil
		}
		env = p.withFeedback(env, feedback)
	}
}

// review implements the Review verb: accept when every artifact clears the
// quality floor and no unresolved failures were surfaced, feedback otherwise.
func (p *Protocol) review(result kerneltypes.Envelope) (ReviewVerdict, string) {
	floor := p.QualityFloor
	if floor == 0 {
		floor = kerneltypes.QualityFloor(p.ParentEnvelope.Constraints.QualityLevel)
	}
	if len(result.Stderr.Failures) > 0 {
		return VerdictFeedback, "resolve surfaced failures: " + result.Stderr.Failures[0].Message
	}
	if result.Stdout.WorkPackage == nil {
		return VerdictFeedback, "no work package produced"
	}
	if result.Stdout.WorkPackage.OverallConfidence < floor {
		return VerdictFeedback, fmt.Sprintf("overall_confidence %.2f below required floor %.2f", result.Stdout.WorkPackage.OverallConfidence, floor)
	}
	return VerdictAccept, ""
}

func (p *Protocol) childEnvelope(st kerneltypes.SubTask) kerneltypes.Envelope {
	return kerneltypes.Envelope{
		EnvelopeVersion: kerneltypes.CurrentEnvelopeVersion,
		Instruction: kerneltypes.Instruction{
			Text:    st.Description,
			Intent:  kerneltypes.IntentExecute,
			Urgency: p.ParentEnvelope.Instruction.Urgency,
		},
		Context: kerneltypes.EnvelopeContext{
			ParentTaskID:       p.ParentIdentity.CellID,
			OrganisationalGoal: p.ParentEnvelope.Context.OrganisationalGoal,
			DomainHints:        append([]string{st.Domain}, p.ParentEnvelope.Context.DomainHints...),
		},
		Constraints: kerneltypes.Constraints{
			TokenBudget:        0, // the runtime substitutes the carved TokenBudget.Total
			QualityLevel:       p.ParentEnvelope.Constraints.QualityLevel,
			MaxDelegationDepth: p.ParentEnvelope.Constraints.MaxDelegationDepth,
		},
		Authority: p.ParentEnvelope.Authority,
	}
}

func (p *Protocol) withFeedback(env kerneltypes.Envelope, feedback string) kerneltypes.Envelope {
	env.Context.PriorFindings = append(env.Context.PriorFindings, "reviewer feedback: "+feedback)
	return env
}

// groupBySequence buckets subtasks by Sequence, returning buckets in
// ascending sequence order — the phase barrier Spawn advances through.
func groupBySequence(dag []kerneltypes.SubTask) [][]kerneltypes.SubTask {
	buckets := map[int][]kerneltypes.SubTask{}
	for _, st := range dag {
		buckets[st.Sequence] = append(buckets[st.Sequence], st)
	}
	seqs := make([]int, 0, len(buckets))
	for s := range buckets {
		seqs = append(seqs, s)
	}
	sort.Ints(seqs)
	out := make([][]kerneltypes.SubTask, 0, len(seqs))
	for _, s := range seqs {
		out = append(out, buckets[s])
	}
	return out
}

func sortBySequence(children []*childReview) []*childReview {
	out := append([]*childReview(nil), children...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].subtask.Sequence < out[j].subtask.Sequence })
	return out
}

// checkAcyclic verifies the DAG's depends_on edges contain no cycle, via
// Kahn's algorithm; a cycle means Decompose produced an invalid plan.
func checkAcyclic(dag []kerneltypes.SubTask) error {
	indeg := make(map[string]int, len(dag))
	adj := make(map[string][]string, len(dag))
	for _, st := range dag {
		if _, ok := indeg[st.ID]; !ok {
			indeg[st.ID] = 0
		}
		for _, dep := range st.DependsOn {
			adj[dep] = append(adj[dep], st.ID)
			indeg[st.ID]++
		}
	}
	queue := make([]string, 0)
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adj[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(indeg) {
		return kernelerr.Validation(fmt.Sprintf("dependency cycle detected among %d subtasks", len(indeg)-visited))
	}
	return nil
}
