// Package scenario loads simulation scenarios from YAML: the root state, the
// constraint spec, and optional per-scenario budget overrides.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/diegorhoger/prospect/internal/constraint"
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/state"
)

// EntitySpec declares one root entity.
type EntitySpec struct {
	ID    string           `yaml:"id"`
	Type  string           `yaml:"type"`
	Props []state.Property `yaml:"props,omitempty"`
}

// RelationshipSpec declares one root relationship.
type RelationshipSpec struct {
	Source   string  `yaml:"source"`
	Target   string  `yaml:"target"`
	Relation string  `yaml:"relation"`
	Weight   float64 `yaml:"weight"`
}

// PredicateSpec declares one seek or avoid condition.
type PredicateSpec struct {
	ID        string          `yaml:"id"`
	Condition rules.Condition `yaml:"condition"`
	Weight    float64         `yaml:"weight,omitempty"`
	Mandatory bool            `yaml:"mandatory,omitempty"`
}

// BudgetSpec overrides engine budgets for one scenario. Zero values mean
// "use the configured default".
type BudgetSpec struct {
	MaxDepth      int     `yaml:"max_depth,omitempty"`
	MaxNodes      int     `yaml:"max_nodes,omitempty"`
	MaxBreadth    int     `yaml:"max_breadth,omitempty"`
	MinConfidence float64 `yaml:"min_confidence,omitempty"`
}

// Scenario is a complete simulation input.
type Scenario struct {
	Name          string             `yaml:"name"`
	Entities      []EntitySpec       `yaml:"entities"`
	Relationships []RelationshipSpec `yaml:"relationships,omitempty"`
	Seek          []PredicateSpec    `yaml:"seek,omitempty"`
	Avoid         []PredicateSpec    `yaml:"avoid,omitempty"`
	Budget        BudgetSpec         `yaml:"budget,omitempty"`
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario name is required")
	}
	if len(s.Entities) == 0 {
		return nil, fmt.Errorf("scenario %s: at least one entity is required", s.Name)
	}
	if _, err := s.Graph(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if err := s.Constraints().Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return &s, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	return Parse(data)
}

// Graph builds the validated root state.
func (s *Scenario) Graph() (*state.Graph, error) {
	b := state.NewBuilder()
	for _, e := range s.Entities {
		b.AddEntity(e.ID, e.Type, e.Props...)
	}
	for _, r := range s.Relationships {
		b.AddRelationship(r.Source, r.Target, r.Relation, r.Weight)
	}
	return b.Build()
}

// Constraints builds the scenario's constraint spec.
func (s *Scenario) Constraints() constraint.Spec {
	return constraint.Spec{
		Seek:  predicates(s.Seek),
		Avoid: predicates(s.Avoid),
	}
}

func predicates(ps []PredicateSpec) []constraint.Predicate {
	out := make([]constraint.Predicate, len(ps))
	for i, p := range ps {
		out[i] = constraint.Predicate{
			ID:        p.ID,
			Condition: p.Condition,
			Weight:    p.Weight,
			Mandatory: p.Mandatory,
		}
	}
	return out
}
