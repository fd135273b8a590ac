// Package transition applies action-sets to states. Ordering honors each
// rule's before-constraints; application is total: an effect that no longer
// fits the evolving state is recorded as an annotation on the child instead
// of aborting the branch.
package transition

import (
	"fmt"
	"sort"

	"github.com/diegorhoger/prospect/internal/match"
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/state"
)

// Order sequences the set's rules for application. Before-edges between
// member rules are honored via a stable topological sort with rule-id
// tiebreaks; rules without ordering constraints fire in rule-id order.
// A before-cycle inside the set cannot be honored, so the rules fall back
// to plain rule-id order and the second return flags the cycle.
func Order(set match.ActionSet) ([]rules.Rule, bool) {
	rs := make([]rules.Rule, len(set.Rules))
	copy(rs, set.Rules)
	rules.SortByID(rs)
	if len(rs) < 2 {
		return rs, false
	}

	index := make(map[string]int, len(rs))
	for i, r := range rs {
		index[r.ID] = i
	}

	// successors[i] holds the members rule i must precede.
	successors := make([][]int, len(rs))
	indegree := make([]int, len(rs))
	for i, r := range rs {
		for _, after := range r.Before {
			j, ok := index[after]
			if !ok || j == i {
				continue
			}
			successors[i] = append(successors[i], j)
			indegree[j]++
		}
	}

	// Kahn's algorithm over a sorted ready list keeps ties in rule-id order.
	var ready []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	ordered := make([]rules.Rule, 0, len(rs))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		ordered = append(ordered, rs[i])
		for _, j := range successors[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}
	if len(ordered) != len(rs) {
		return rs, true
	}
	return ordered, false
}

// Apply derives the child state reached from parent by firing the set's
// effects in temporal order. Effects that fail against the evolving draft
// are annotated, not fatal; the returned state always exists.
func Apply(parent *state.Graph, set match.ActionSet) *state.Graph {
	ordered, cyclic := Order(set)
	draft := parent.Derive()
	if cyclic {
		draft.Annotate("before-cycle: falling back to rule-id order for " + set.Signature())
	}

	applied := make([]string, 0, len(ordered))
	for _, r := range ordered {
		if applyRule(draft, r) > 0 {
			applied = append(applied, r.ID)
		}
	}
	return draft.Seal(applied)
}

// applyRule fires every effect of r against the draft. A failing effect is
// annotated and skipped; the rest of the rule still fires. Returns the number
// of effects that applied, so a rule whose every effect failed stays out of
// the action path.
func applyRule(d *state.Draft, r rules.Rule) int {
	applied := 0
	for _, e := range r.Effects {
		if err := applyEffect(d, e); err != nil {
			d.Annotate(fmt.Sprintf("effect-conflict: rule %s: %v", r.ID, err))
			continue
		}
		applied++
	}
	return applied
}

func applyEffect(d *state.Draft, e rules.Effect) error {
	switch e.Kind {
	case rules.EffectSetProperty:
		return d.SetProperty(e.Entity, state.Property{
			Name:  e.Property,
			Value: e.Value,
			Kind:  e.PropertyKind,
		})
	case rules.EffectAddEntity:
		return d.AddEntity(state.NewEntity(e.Entity, e.EntityType, e.Props...))
	case rules.EffectRemoveEntity:
		return d.RemoveEntity(e.Entity)
	case rules.EffectAddRelationship:
		return d.AddRelationship(state.Relationship{
			Source: e.Source,
			Target: e.Target,
			Kind:   e.Relation,
			Weight: e.Weight,
		})
	case rules.EffectRemoveRelationship:
		return d.RemoveRelationship(e.Source, e.Target, e.Relation)
	default:
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
}
