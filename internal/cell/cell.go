// Package cell implements the Cell Runtime (C8): the recursive process()
// entrypoint every cell — root or delegated child — runs, wiring the
// Cognitive Cycle (C2) and Delegation Protocol (C4) together, owning
// cancellation and the bounded wind-down window, and classifying failures
// per the spec's four-way failure-semantics split (§4.8).
//
// Grounded on the retrieved teacher codebase's cmd/agsh/main.go runTask
// orchestration, which opens a task log, runs planner→executor→agentval→
// metaval in sequence, and closes the log on completion; this package keeps
// that "single top-level driver owns the whole lifecycle of one unit of
// work" shape but makes it recursive, since a child cell's unit of work is
// itself a full Cognitive Cycle rather than the teacher's flat subtask loop.
package cell

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kernel/cellruntime/internal/budget"
	"github.com/kernel/cellruntime/internal/bus"
	"github.com/kernel/cellruntime/internal/cognitive"
	"github.com/kernel/cellruntime/internal/collab"
	"github.com/kernel/cellruntime/internal/config"
	"github.com/kernel/cellruntime/internal/delegation"
	"github.com/kernel/cellruntime/internal/kerneltypes"
	"github.com/kernel/cellruntime/internal/tasklog"
	"github.com/kernel/cellruntime/internal/workmem"
)

// Collaborators bundles the four external-boundary interfaces a cell needs;
// all fields are optional except Inference, which every non-trivial
// instruction eventually requires.
type Collaborators struct {
	Inference collab.Inference
	Knowledge collab.Knowledge
	ToolHost  collab.ToolHost
	Vault     collab.Vault
}

// Runtime is the process-wide shared state every cell in a run draws on:
// configuration thresholds, the message bus, collaborators, and the logging
// registry. One Runtime is constructed per invocation of the kernel binary.
type Runtime struct {
	Cfg            config.Thresholds
	Bus            *bus.Bus
	Collaborators  Collaborators
	Log            *tasklog.Registry
	HealingEnabled bool

	// MaxDepth bounds recursive delegation regardless of what an individual
	// envelope's constraints.max_delegation_depth requests.
	MaxDepth int
}

// Process runs one cell's full lifecycle against the root envelope: it is
// the public entrypoint the CLI calls. Child cells run through
// processWithBudget, which childRunner calls directly.
func (rt *Runtime) Process(ctx context.Context, env kerneltypes.Envelope, identity kerneltypes.Identity) kerneltypes.Envelope {
	b := budget.New(env.Constraints.TokenBudget, clampDepth(env.Constraints.MaxDelegationDepth, rt.MaxDepth), env.Authority.CanDelegate, rootAllocationStrategy(identity))
	return rt.processWithBudget(ctx, env, identity, b)
}

// rootAllocationStrategy picks how this cell carves sub-budgets for its own
// children: board/CEO-level cells weight children by estimated subtask
// complexity, since a root decomposition typically spans enough subtasks for
// weighting to matter; every other level falls back to an equal split, which
// Carve still honours per_child_minimum against.
func rootAllocationStrategy(identity kerneltypes.Identity) budget.AllocationStrategy {
	switch identity.Level {
	case kerneltypes.LevelBoard, kerneltypes.LevelCEO:
		return budget.AllocationWeighted
	default:
		return budget.AllocationEqual
	}
}

func (rt *Runtime) processWithBudget(ctx context.Context, env kerneltypes.Envelope, identity kerneltypes.Identity, b *budget.TokenBudget) kerneltypes.Envelope {
	log := rt.Log.Open(identity.CellID, string(env.Instruction.Intent))
	defer rt.Log.Close(identity.CellID, "completed")

	windDown, cancel := context.WithTimeout(ctx, time.Duration(rt.Cfg.WindDownSeconds)*time.Second)
	defer cancel()

	mem := workmem.New(rt.Cfg.StagnationWindowM)
	gov := budget.NewGovernor(b, identity.Level, env.Authority, rt.Cfg)

	runner := &childRunner{rt: rt, parent: identity}

	cycle := &cognitive.Cycle{
		Identity:       identity,
		Envelope:       env,
		Memory:         mem,
		Gov:            gov,
		Cfg:            rt.Cfg,
		Inference:      rt.Collaborators.Inference,
		Knowledge:      rt.Collaborators.Knowledge,
		ToolHost:       rt.Collaborators.ToolHost,
		HealingEnabled: rt.HealingEnabled,
		Log:            log,
	}
	if gov.CanDelegate() {
		cycle.Delegation = &delegation.Protocol{
			ParentIdentity: identity,
			ParentEnvelope: env,
			Gov:            gov,
			Cfg:            rt.Cfg,
			Bus:            rt.Bus,
			Runner:         runner,
		}
	}

	out, err := cycle.Run(windDown)
	if err != nil {
		return rt.fatalAbort(env, identity, err)
	}

	select {
	case <-ctx.Done():
		out.Stderr.Failures = append(out.Stderr.Failures, kerneltypes.Failure{
			Type: kerneltypes.FailureCancelled, Message: "cancelled during wind-down",
		})
	default:
	}
	return out
}

// fatalAbort implements the fourth failure-semantics tier (§4.8): a
// fatal-abort returns immediately without attempting Package, since the
// condition (e.g. a panic recovered upstream, a malformed envelope that
// escaped Intake) means working memory cannot be trusted to synthesise from.
func (rt *Runtime) fatalAbort(env kerneltypes.Envelope, identity kerneltypes.Identity, err error) kerneltypes.Envelope {
	env.EnvelopeVersion = kerneltypes.CurrentEnvelopeVersion
	env.Stdout = kerneltypes.Stdout{}
	env.Stderr = kerneltypes.Stderr{Failures: []kerneltypes.Failure{{
		Type: kerneltypes.FailureInvalidEnvelope, Message: fmt.Sprintf("fatal abort: %v", err),
	}}}
	env.Metadata = kerneltypes.Metadata{CellID: identity.CellID}
	return env
}

// childRunner implements delegation.ChildRunner by recursing into
// processWithBudget one level deeper, assigning the child a fresh cell id and the next rank
// down the corporate ladder.
type childRunner struct {
	rt     *Runtime
	parent kerneltypes.Identity
}

func (c *childRunner) RunChild(ctx context.Context, env kerneltypes.Envelope, childBudget *budget.TokenBudget) (kerneltypes.Envelope, error) {
	env.Constraints.TokenBudget = childBudget.Total
	childIdentity := kerneltypes.Identity{
		CellID: uuid.Must(uuid.NewV7()).String(),
		Level:  nextLevel(c.parent.Level),
		Role:   env.Context.DomainHints[0],
		Domain: c.parent.Domain,
	}
	return c.rt.processWithBudget(ctx, env, childIdentity, childBudget), nil
}

// nextLevel returns the corporate rank one step below lvl, floored at intern.
func nextLevel(lvl kerneltypes.Level) kerneltypes.Level {
	order := []kerneltypes.Level{
		kerneltypes.LevelBoard, kerneltypes.LevelCEO, kerneltypes.LevelVP,
		kerneltypes.LevelDirector, kerneltypes.LevelManager, kerneltypes.LevelSeniorStaff,
		kerneltypes.LevelStaff, kerneltypes.LevelIntern,
	}
	for i, l := range order {
		if l == lvl && i < len(order)-1 {
			return order[i+1]
		}
	}
	return kerneltypes.LevelIntern
}

func clampDepth(requested, max int) int {
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}
