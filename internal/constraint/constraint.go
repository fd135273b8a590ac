// Package constraint defines caller-injected exploration bias: seek
// predicates reward branches that reach desirable states, avoid predicates
// penalize branches that reach undesirable ones. Constraints never change
// rule semantics; they only bias confidence scoring and, for mandatory avoid
// predicates, pruning.
package constraint

import (
	"fmt"

	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/state"
)

// Predicate is one avoid or seek clause over a state graph.
type Predicate struct {
	// ID labels the predicate in annotations and trace output.
	ID string `json:"id" yaml:"id"`

	// Condition is the state test, using the same vocabulary as rule
	// preconditions.
	Condition rules.Condition `json:"condition" yaml:"condition"`

	// Weight scales the predicate's influence relative to its siblings.
	// Zero means 1.0.
	Weight float64 `json:"weight,omitempty" yaml:"weight,omitempty"`

	// Mandatory marks an avoid predicate as a hard wall: matching states
	// are pruned rather than merely penalized. Ignored on seek predicates.
	Mandatory bool `json:"mandatory,omitempty" yaml:"mandatory,omitempty"`
}

// EffectiveWeight returns the predicate weight, defaulting to 1.0.
func (p Predicate) EffectiveWeight() float64 {
	if p.Weight == 0 {
		return 1.0
	}
	return p.Weight
}

// Spec is the full constraint specification for one simulation request.
// The zero value means "no bias".
type Spec struct {
	Seek  []Predicate `json:"seek,omitempty" yaml:"seek,omitempty"`
	Avoid []Predicate `json:"avoid,omitempty" yaml:"avoid,omitempty"`
}

// Empty reports whether the spec carries no predicates.
func (s Spec) Empty() bool {
	return len(s.Seek) == 0 && len(s.Avoid) == 0
}

// Validate checks predicate weights and IDs.
func (s Spec) Validate() error {
	check := func(kind string, ps []Predicate) error {
		for i, p := range ps {
			if p.ID == "" {
				return fmt.Errorf("%s predicate %d: ID is required", kind, i)
			}
			if p.Weight < 0 || p.Weight > 1 {
				return fmt.Errorf("%s predicate %s: weight %g outside [0, 1]", kind, p.ID, p.Weight)
			}
		}
		return nil
	}
	if err := check("seek", s.Seek); err != nil {
		return err
	}
	return check("avoid", s.Avoid)
}

// MatchedSeek returns the seek predicates satisfied by the graph.
func (s Spec) MatchedSeek(g *state.Graph) []Predicate {
	return matched(s.Seek, g)
}

// MatchedAvoid returns the avoid predicates satisfied by the graph.
func (s Spec) MatchedAvoid(g *state.Graph) []Predicate {
	return matched(s.Avoid, g)
}

func matched(ps []Predicate, g *state.Graph) []Predicate {
	var out []Predicate
	for _, p := range ps {
		if p.Condition.Holds(g) {
			out = append(out, p)
		}
	}
	return out
}
