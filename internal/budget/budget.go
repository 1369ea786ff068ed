// Package budget implements the Token Budget data type and the Resource
// Governor (C6): a purely advisory component consulted synchronously before
// any tool call, child spawn, or self-heal iteration. It never interrupts a
// running tool call; it fails the *next* admission check instead.
package budget

import (
	"fmt"
	"sync"

	"github.com/kernel/cellruntime/internal/config"
	"github.com/kernel/cellruntime/internal/kerneltypes"
)

// AllocationStrategy is how a parent carves sub-budgets for its children.
type AllocationStrategy string

const (
	AllocationEqual    AllocationStrategy = "equal"
	AllocationWeighted AllocationStrategy = "weighted"
	AllocationPriority AllocationStrategy = "priority"
)

// TokenBudget is immutable on creation except for Remaining, which decrements
// as work progresses. A fresh budget is carved from the parent's at delegation
// time; it never exceeds what the parent had available.
type TokenBudget struct {
	mu sync.Mutex

	Total                     int
	remaining                 int
	Depth                     int
	MaxDepth                  int
	CanDelegate               bool
	PerChildAllocationStrategy AllocationStrategy
}

// New creates a root TokenBudget at depth 0.
func New(total, maxDepth int, canDelegate bool, strategy AllocationStrategy) *TokenBudget {
	return &TokenBudget{
		Total:                      total,
		remaining:                  total,
		Depth:                      0,
		MaxDepth:                   maxDepth,
		CanDelegate:                canDelegate,
		PerChildAllocationStrategy: strategy,
	}
}

// Remaining returns the current remaining balance.
func (b *TokenBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Spend decrements remaining by n, floored at 0. Returns the new remaining.
func (b *TokenBudget) Spend(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining -= n
	if b.remaining < 0 {
		b.remaining = 0
	}
	return b.remaining
}

// Governor is the advisory Resource Governor for one cell.
type Governor struct {
	budget *TokenBudget
	level  kerneltypes.Level
	auth   kerneltypes.Authority
	cfg    config.Thresholds
}

// NewGovernor binds a Governor to one cell's budget, level, authority and the
// process-wide threshold configuration.
func NewGovernor(b *TokenBudget, level kerneltypes.Level, auth kerneltypes.Authority, cfg config.Thresholds) *Governor {
	return &Governor{budget: b, level: level, auth: auth, cfg: cfg}
}

// CanAffordStep reports can_afford_step(est): remaining ≥ est + safety_floor.
func (g *Governor) CanAffordStep(est int) bool {
	return g.budget.Remaining() >= est+g.cfg.SafetyFloor
}

// CanDelegate reports can_delegate(): depth < max_depth ∧ authority.can_delegate
// ∧ remaining ≥ per_child_minimum.
func (g *Governor) CanDelegate() bool {
	return g.budget.Depth < g.budget.MaxDepth &&
		g.auth.CanDelegate &&
		g.budget.Remaining() >= g.cfg.PerChildMinimum
}

// CanHeal reports can_heal(): remaining ≥ min_heal_reserve ∧ level ≠ intern ∧
// healing enabled. "config.healing.enabled" is folded into the caller-supplied
// healingEnabled flag, since it is a cell-runtime-level switch, not a Governor field.
func (g *Governor) CanHeal(healingEnabled bool) bool {
	return g.budget.Remaining() >= g.cfg.MinHealReserve &&
		g.level != kerneltypes.LevelIntern &&
		healingEnabled
}

// Carve splits the budget's current remaining*0.9 across k children per the
// configured PerChildAllocationStrategy. weights, when using
// AllocationWeighted, must have length k and sum > 0; priorityIdx, when using
// AllocationPriority, names the child receiving a 2x share. Carve fails (nil,
// error) if it cannot satisfy Σ children.budget ≤ 0.9 × remaining or
// per_child_minimum for every child.
func (g *Governor) Carve(k int, weights []float64, priorityIdx int) ([]*TokenBudget, error) {
	if k <= 0 {
		return nil, fmt.Errorf("budget: carve: k must be positive, got %d", k)
	}
	pool := int(float64(g.budget.Remaining()) * 0.9)
	shares := make([]float64, k)

	switch g.budget.PerChildAllocationStrategy {
	case AllocationWeighted:
		if len(weights) != k {
			return nil, fmt.Errorf("budget: carve: weighted strategy needs %d weights, got %d", k, len(weights))
		}
		var sum float64
		for _, w := range weights {
			sum += w
		}
		if sum <= 0 {
			return nil, fmt.Errorf("budget: carve: weights must sum > 0")
		}
		for i, w := range weights {
			shares[i] = w / sum
		}
	case AllocationPriority:
		if priorityIdx < 0 || priorityIdx >= k {
			return nil, fmt.Errorf("budget: carve: priorityIdx %d out of range [0,%d)", priorityIdx, k)
		}
		// priority child gets 2x the others' equal share: solve n*s + 2s = 1 => s = 1/(k+1)
		base := 1.0 / float64(k+1)
		for i := range shares {
			shares[i] = base
		}
		shares[priorityIdx] = 2 * base
	default: // AllocationEqual
		for i := range shares {
			shares[i] = 1.0 / float64(k)
		}
	}

	out := make([]*TokenBudget, k)
	for i, s := range shares {
		amt := int(float64(pool) * s)
		if amt < g.cfg.PerChildMinimum {
			return nil, fmt.Errorf("budget: carve: child %d share %d below per_child_minimum %d", i, amt, g.cfg.PerChildMinimum)
		}
		out[i] = &TokenBudget{
			Total:                      amt,
			remaining:                  amt,
			Depth:                      g.budget.Depth + 1,
			MaxDepth:                   g.budget.MaxDepth,
			CanDelegate:                g.auth.CanDelegate,
			PerChildAllocationStrategy: g.budget.PerChildAllocationStrategy,
		}
	}
	return out, nil
}

// Budget exposes the underlying TokenBudget for read access (e.g. logging,
// metadata population) without letting callers bypass the Governor's checks.
func (g *Governor) Budget() *TokenBudget { return g.budget }
