package state

import (
	"fmt"
	"strings"
)

// Problem classifies a validation issue.
type Problem string

const (
	ProblemDangling      Problem = "dangling"
	ProblemSelfReference Problem = "self-reference"
	ProblemDuplicate     Problem = "duplicate"
	ProblemUnknownKind   Problem = "unknown-kind"
	ProblemBadWeight     Problem = "bad-weight"
	ProblemMissingID     Problem = "missing-id"
)

// Issue describes a single graph validation problem.
type Issue struct {
	EntityID string `json:"entity_id"`
	Field    string `json:"field"` // "id", "property:<name>", "relationship"
	Ref      string `json:"ref"`   // the problematic reference or value
	Problem  Problem `json:"problem"`
}

// String returns a human-readable description of the issue.
func (i Issue) String() string {
	return fmt.Sprintf("%s: %s in %s references %s", i.Problem, i.EntityID, i.Field, i.Ref)
}

// ValidationError reports every issue found while constructing a graph.
// Construction collects all problems rather than stopping at the first, so
// callers can surface a complete diagnosis.
type ValidationError struct {
	Issues []Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid state graph"
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("invalid state graph: %s", strings.Join(parts, "; "))
}

// Builder assembles a root graph and validates it on Build. The builder is
// the only way to construct a Graph from scratch; successor graphs come from
// Draft.Seal.
type Builder struct {
	entities  []*Entity
	relations []Relationship
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddEntity adds an entity with the given properties.
func (b *Builder) AddEntity(id, typ string, props ...Property) *Builder {
	b.entities = append(b.entities, NewEntity(id, typ, props...))
	return b
}

// AddRelationship adds a weighted relationship between two entity IDs.
func (b *Builder) AddRelationship(source, target, kind string, weight float64) *Builder {
	b.relations = append(b.relations, Relationship{Source: source, Target: target, Kind: kind, Weight: weight})
	return b
}

// Build validates the accumulated entities and relationships and produces
// the root graph (depth 0, confidence 1.0, empty action path). All issues
// are collected into a single *ValidationError.
func (b *Builder) Build() (*Graph, error) {
	var issues []Issue

	entities := make(map[string]*Entity, len(b.entities))
	for _, e := range b.entities {
		if e.ID == "" {
			issues = append(issues, Issue{Field: "id", Problem: ProblemMissingID})
			continue
		}
		if _, exists := entities[e.ID]; exists {
			issues = append(issues, Issue{EntityID: e.ID, Field: "id", Ref: e.ID, Problem: ProblemDuplicate})
			continue
		}
		for _, name := range e.PropertyNames() {
			if p := e.Props[name]; !p.Kind.Valid() {
				issues = append(issues, Issue{
					EntityID: e.ID,
					Field:    "property:" + name,
					Ref:      string(p.Kind),
					Problem:  ProblemUnknownKind,
				})
			}
		}
		entities[e.ID] = e
	}

	relations := make(map[string]Relationship, len(b.relations))
	for _, r := range b.relations {
		issues = append(issues, checkRelationship(r, entities)...)
		relations[r.Key()] = r
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	return &Graph{
		entities:   entities,
		relations:  relations,
		depth:      0,
		confidence: 1.0,
	}, nil
}

// checkRelationship validates one relationship against the entity set.
func checkRelationship(r Relationship, entities map[string]*Entity) []Issue {
	var issues []Issue
	if r.Source == r.Target {
		issues = append(issues, Issue{
			EntityID: r.Source,
			Field:    "relationship",
			Ref:      r.Target,
			Problem:  ProblemSelfReference,
		})
	}
	if _, ok := entities[r.Source]; !ok {
		issues = append(issues, Issue{
			EntityID: r.Source,
			Field:    "relationship-source",
			Ref:      r.Source,
			Problem:  ProblemDangling,
		})
	}
	if _, ok := entities[r.Target]; !ok {
		issues = append(issues, Issue{
			EntityID: r.Source,
			Field:    "relationship-target",
			Ref:      r.Target,
			Problem:  ProblemDangling,
		})
	}
	if r.Weight < 0 || r.Weight > 1 {
		issues = append(issues, Issue{
			EntityID: r.Source,
			Field:    "relationship-weight",
			Ref:      fmt.Sprintf("%g", r.Weight),
			Problem:  ProblemBadWeight,
		})
	}
	return issues
}
