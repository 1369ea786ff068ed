// Package knowledge provides a minimal in-memory Knowledge test double.
// Defining retrieval semantics is explicitly out of scope (§1); this stub
// exists so the Intake phase (C2 step 1) has something deterministic to query.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kernel/cellruntime/internal/collab"
)

// Stub is a deterministic, in-memory Knowledge collaborator: a flat fact
// corpus filtered by naive substring match against the query and domain hints.
type Stub struct {
	mu    sync.Mutex
	facts []collab.Fact
}

// New returns an empty Stub.
func New() *Stub { return &Stub{} }

// Seed adds facts to the corpus.
func (s *Stub) Seed(facts ...collab.Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, facts...)
}

// Search implements collab.Knowledge: returns up to k facts whose content
// contains the query or any domain hint (case-insensitive), highest
// confidence first.
func (s *Stub) Search(ctx context.Context, query string, k int, domainHints []string) ([]collab.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	needles := []string{q}
	for _, h := range domainHints {
		needles = append(needles, strings.ToLower(h))
	}

	var matched []collab.Fact
	for _, f := range s.facts {
		content := strings.ToLower(f.Content)
		for _, n := range needles {
			if n != "" && strings.Contains(content, n) {
				matched = append(matched, f)
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Confidence > matched[j].Confidence })
	if k > 0 && len(matched) > k {
		matched = matched[:k]
	}
	return matched, nil
}
