// Package match finds the rules applicable to a state and partitions them
// into internally consistent action-sets. Matching is pure: it never mutates
// the graph and two calls with the same inputs return identical results.
package match

import (
	"sort"
	"strings"

	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/state"
)

// DefaultMaxActionSets caps how many action-sets a single expansion keeps.
const DefaultMaxActionSets = 4

// maxEnumeratedSets bounds independent-set enumeration on dense conflict
// graphs so pathological rule packs cannot blow up a level expansion.
const maxEnumeratedSets = 128

// Match returns every rule whose preconditions all hold against g, sorted by
// rule ID. An empty result means the state is terminal for this rule pack.
func Match(g *state.Graph, rs []rules.Rule) []rules.Rule {
	var matched []rules.Rule
	for _, r := range rs {
		if r.Applicable(g) {
			matched = append(matched, r)
		}
	}
	rules.SortByID(matched)
	return matched
}

// ActionSet is a group of matched rules whose effects do not conflict and can
// therefore fire together in one transition. Rules is always sorted by ID.
type ActionSet struct {
	Rules []rules.Rule
}

// NewActionSet copies rs into a set sorted by rule ID.
func NewActionSet(rs []rules.Rule) ActionSet {
	cp := make([]rules.Rule, len(rs))
	copy(cp, rs)
	rules.SortByID(cp)
	return ActionSet{Rules: cp}
}

// IDs returns the member rule IDs in ascending order.
func (s ActionSet) IDs() []string {
	ids := make([]string, len(s.Rules))
	for i, r := range s.Rules {
		ids[i] = r.ID
	}
	return ids
}

// Signature is a stable identity for the set, used as a deterministic
// tiebreaker when two sets score equally.
func (s ActionSet) Signature() string {
	return strings.Join(s.IDs(), "+")
}

// Confidence is the product of the member rules' base confidences. Firing
// several uncertain rules together is less certain than firing any one alone.
func (s ActionSet) Confidence() float64 {
	c := 1.0
	for _, r := range s.Rules {
		c *= r.Confidence
	}
	return c
}

// Conflicts reports whether a and b cannot fire in the same action-set:
// either they write different values to the same target, or one removes an
// entity the other touches.
func Conflicts(a, b rules.Rule) bool {
	writes := make(map[string]string, len(a.Effects))
	removed := make(map[string]bool)
	for _, e := range a.Effects {
		key, value := e.WriteKey()
		writes[key] = value
		if e.Kind == rules.EffectRemoveEntity {
			removed[e.Entity] = true
		}
	}
	for _, e := range b.Effects {
		key, value := e.WriteKey()
		if prev, seen := writes[key]; seen && prev != value {
			return true
		}
		if e.Kind == rules.EffectRemoveEntity {
			if touchesEntity(a, e.Entity, key) {
				return true
			}
		}
		for _, id := range e.Touches() {
			if removed[id] && e.Kind != rules.EffectRemoveEntity {
				return true
			}
		}
	}
	return false
}

// touchesEntity reports whether any effect of r touches id other than by
// removing it under the same write key.
func touchesEntity(r rules.Rule, id, removeKey string) bool {
	for _, e := range r.Effects {
		key, _ := e.WriteKey()
		if e.Kind == rules.EffectRemoveEntity && key == removeKey {
			continue
		}
		for _, t := range e.Touches() {
			if t == id {
				return true
			}
		}
	}
	return false
}

// Partition groups matched rules into maximal conflict-free action-sets and
// keeps the k highest-confidence sets, ties broken by signature. k <= 0 uses
// DefaultMaxActionSets. When no rules conflict the result is a single set
// containing every matched rule.
func Partition(matched []rules.Rule, k int) []ActionSet {
	if len(matched) == 0 {
		return nil
	}
	if k <= 0 {
		k = DefaultMaxActionSets
	}
	sorted := make([]rules.Rule, len(matched))
	copy(sorted, matched)
	rules.SortByID(sorted)

	n := len(sorted)
	conflict := make([][]bool, n)
	any := false
	for i := range conflict {
		conflict[i] = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if Conflicts(sorted[i], sorted[j]) {
				conflict[i][j] = true
				conflict[j][i] = true
				any = true
			}
		}
	}
	if !any {
		return []ActionSet{{Rules: sorted}}
	}

	sets := maximalIndependentSets(n, conflict)
	out := make([]ActionSet, 0, len(sets))
	for _, idx := range sets {
		members := make([]rules.Rule, len(idx))
		for i, v := range idx {
			members[i] = sorted[v]
		}
		out = append(out, ActionSet{Rules: members})
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].Confidence(), out[j].Confidence()
		if ci != cj {
			return ci > cj
		}
		return out[i].Signature() < out[j].Signature()
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// maximalIndependentSets enumerates the maximal independent sets of the
// conflict graph as maximal cliques of its complement, using Bron-Kerbosch
// with pivoting. Vertices are visited in ascending order so enumeration is
// deterministic; results are index slices in ascending order.
func maximalIndependentSets(n int, conflict [][]bool) [][]int {
	compatible := func(i, j int) bool { return i != j && !conflict[i][j] }

	var out [][]int
	var bk func(r, p, x []int)
	bk = func(r, p, x []int) {
		if len(out) >= maxEnumeratedSets {
			return
		}
		if len(p) == 0 && len(x) == 0 {
			clique := make([]int, len(r))
			copy(clique, r)
			out = append(out, clique)
			return
		}
		// Pivot on the vertex of P union X compatible with the most of P.
		pivot, best := -1, -1
		for _, u := range append(append([]int{}, p...), x...) {
			count := 0
			for _, v := range p {
				if compatible(u, v) {
					count++
				}
			}
			if count > best {
				pivot, best = u, count
			}
		}
		for i := 0; i < len(p); i++ {
			v := p[i]
			if compatible(pivot, v) {
				continue
			}
			var np, nx []int
			for _, w := range p {
				if compatible(v, w) {
					np = append(np, w)
				}
			}
			for _, w := range x {
				if compatible(v, w) {
					nx = append(nx, w)
				}
			}
			nr := make([]int, len(r), len(r)+1)
			copy(nr, r)
			bk(append(nr, v), np, nx)
			p = append(p[:i], p[i+1:]...)
			i--
			x = append(x, v)
		}
	}

	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	bk(nil, p, nil)
	for _, s := range out {
		sort.Ints(s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
	return out
}
