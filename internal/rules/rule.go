// Package rules defines the condition→effect rules the simulation engine
// applies, plus the read-only repositories that supply them. The engine never
// learns rules or adjusts their confidence; rules arrive from outside (a rule
// pack file or the SQLite repository) and are only ever read.
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/diegorhoger/prospect/internal/state"
)

// ConditionKind identifies what a precondition inspects.
type ConditionKind string

const (
	ConditionEntityExists       ConditionKind = "entity-exists"
	ConditionEntityAbsent       ConditionKind = "entity-absent"
	ConditionPropertyEquals     ConditionKind = "property-equals"
	ConditionPropertyNotEquals  ConditionKind = "property-not-equals"
	ConditionRelationshipExists ConditionKind = "relationship-exists"
	ConditionRelationshipAbsent ConditionKind = "relationship-absent"
)

// Operator compares a property value against an expected value.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpContains Operator = "contains"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
)

// Condition is one precondition clause. Entity selection works by ID when
// Entity is set, by type tag when EntityType is set, and over all entities
// when both are empty. For relationship conditions, empty Source, Target, or
// Relation fields act as wildcards.
type Condition struct {
	Kind       ConditionKind `json:"kind" yaml:"kind"`
	Entity     string        `json:"entity,omitempty" yaml:"entity,omitempty"`
	EntityType string        `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	Property   string        `json:"property,omitempty" yaml:"property,omitempty"`
	Value      string        `json:"value,omitempty" yaml:"value,omitempty"`
	Op         Operator      `json:"op,omitempty" yaml:"op,omitempty"`

	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
	Target   string `json:"target,omitempty" yaml:"target,omitempty"`
	Relation string `json:"relation,omitempty" yaml:"relation,omitempty"`
}

// Holds evaluates the condition against a state graph. Evaluation is a pure
// read; it never modifies the graph.
func (c Condition) Holds(g *state.Graph) bool {
	switch c.Kind {
	case ConditionEntityExists:
		return c.entityExists(g)
	case ConditionEntityAbsent:
		return !c.entityExists(g)
	case ConditionPropertyEquals:
		return c.propertyMatches(g)
	case ConditionPropertyNotEquals:
		return !c.propertyMatches(g)
	case ConditionRelationshipExists:
		return c.relationshipExists(g)
	case ConditionRelationshipAbsent:
		return !c.relationshipExists(g)
	default:
		return false
	}
}

func (c Condition) entityExists(g *state.Graph) bool {
	if c.Entity != "" {
		_, ok := g.Entity(c.Entity)
		return ok
	}
	if c.EntityType != "" {
		return len(g.EntitiesOfType(c.EntityType)) > 0
	}
	return false
}

// propertyMatches reports whether any selected entity carries the property
// with a value satisfying the comparison.
func (c Condition) propertyMatches(g *state.Graph) bool {
	for _, e := range c.selectEntities(g) {
		p, ok := e.Property(c.Property)
		if !ok {
			continue
		}
		if compare(p.Value, c.Value, c.operator()) {
			return true
		}
	}
	return false
}

func (c Condition) selectEntities(g *state.Graph) []*state.Entity {
	if c.Entity != "" {
		e, ok := g.Entity(c.Entity)
		if !ok {
			return nil
		}
		return []*state.Entity{e}
	}
	if c.EntityType != "" {
		return g.EntitiesOfType(c.EntityType)
	}
	return g.Entities()
}

func (c Condition) relationshipExists(g *state.Graph) bool {
	for _, r := range g.Relationships() {
		if c.Source != "" && r.Source != c.Source {
			continue
		}
		if c.Target != "" && r.Target != c.Target {
			continue
		}
		if c.Relation != "" && r.Kind != c.Relation {
			continue
		}
		return true
	}
	return false
}

func (c Condition) operator() Operator {
	if c.Op == "" {
		return OpEq
	}
	return c.Op
}

// compare applies an operator, comparing numerically when both sides parse
// as numbers and falling back to string comparison otherwise.
func compare(actual, expected string, op Operator) bool {
	switch op {
	case OpEq:
		return actual == expected
	case OpNe:
		return actual != expected
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
	case OpGt:
		if a, e, ok := parsePair(actual, expected); ok {
			return a > e
		}
		return actual > expected
	case OpLt:
		if a, e, ok := parsePair(actual, expected); ok {
			return a < e
		}
		return actual < expected
	default:
		return false
	}
}

func parsePair(a, b string) (float64, float64, bool) {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return fa, fb, true
}

// EffectKind identifies one of the five composable state mutations.
type EffectKind string

const (
	EffectSetProperty        EffectKind = "set-property"
	EffectAddEntity          EffectKind = "add-entity"
	EffectRemoveEntity       EffectKind = "remove-entity"
	EffectAddRelationship    EffectKind = "add-relationship"
	EffectRemoveRelationship EffectKind = "remove-relationship"
)

// Effect is one small state mutation carried by a rule.
type Effect struct {
	Kind EffectKind `json:"kind" yaml:"kind"`

	// set-property, add-entity, remove-entity
	Entity       string             `json:"entity,omitempty" yaml:"entity,omitempty"`
	EntityType   string             `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	Property     string             `json:"property,omitempty" yaml:"property,omitempty"`
	Value        string             `json:"value,omitempty" yaml:"value,omitempty"`
	PropertyKind state.PropertyKind `json:"property_kind,omitempty" yaml:"property_kind,omitempty"`
	Props        []state.Property   `json:"props,omitempty" yaml:"props,omitempty"`

	// add-relationship, remove-relationship
	Source   string  `json:"source,omitempty" yaml:"source,omitempty"`
	Target   string  `json:"target,omitempty" yaml:"target,omitempty"`
	Relation string  `json:"relation,omitempty" yaml:"relation,omitempty"`
	Weight   float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Validate checks that the effect carries the fields its kind requires.
func (e Effect) Validate() error {
	switch e.Kind {
	case EffectSetProperty:
		if e.Entity == "" || e.Property == "" {
			return fmt.Errorf("set-property requires entity and property")
		}
		if !e.PropertyKind.Valid() {
			return fmt.Errorf("set-property %s.%s: unknown property kind %q", e.Entity, e.Property, e.PropertyKind)
		}
	case EffectAddEntity:
		if e.Entity == "" {
			return fmt.Errorf("add-entity requires entity")
		}
		for _, p := range e.Props {
			if !p.Kind.Valid() {
				return fmt.Errorf("add-entity %s: property %s has unknown kind %q", e.Entity, p.Name, p.Kind)
			}
		}
	case EffectRemoveEntity:
		if e.Entity == "" {
			return fmt.Errorf("remove-entity requires entity")
		}
	case EffectAddRelationship:
		if e.Source == "" || e.Target == "" || e.Relation == "" {
			return fmt.Errorf("add-relationship requires source, target, and relation")
		}
		if e.Weight < 0 || e.Weight > 1 {
			return fmt.Errorf("add-relationship %s->%s: weight %g outside [0, 1]", e.Source, e.Target, e.Weight)
		}
	case EffectRemoveRelationship:
		if e.Source == "" || e.Target == "" || e.Relation == "" {
			return fmt.Errorf("remove-relationship requires source, target, and relation")
		}
	default:
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
	return nil
}

// WriteKey returns the canonical write target and value for conflict
// detection. Two effects writing different values to the same key cannot
// fire in one action-set.
func (e Effect) WriteKey() (key, value string) {
	switch e.Kind {
	case EffectSetProperty:
		return "prop:" + e.Entity + "." + e.Property, e.Value
	case EffectAddEntity:
		return "ent:" + e.Entity, "present"
	case EffectRemoveEntity:
		return "ent:" + e.Entity, "absent"
	case EffectAddRelationship:
		return "rel:" + state.RelationshipKey(e.Source, e.Target, e.Relation), strconv.FormatFloat(e.Weight, 'g', -1, 64)
	case EffectRemoveRelationship:
		return "rel:" + state.RelationshipKey(e.Source, e.Target, e.Relation), "absent"
	default:
		return "", ""
	}
}

// Touches lists every entity ID the effect reads or writes. Used to detect
// conflicts between entity removal and any other write on the same entity.
func (e Effect) Touches() []string {
	switch e.Kind {
	case EffectSetProperty, EffectAddEntity, EffectRemoveEntity:
		return []string{e.Entity}
	case EffectAddRelationship, EffectRemoveRelationship:
		return []string{e.Source, e.Target}
	default:
		return nil
	}
}

// Rule couples preconditions to effects with a base confidence learned
// elsewhere. Before lists rule IDs this rule must fire before when they land
// in the same action-set; untagged rules apply in rule-id order.
type Rule struct {
	ID            string      `json:"id" yaml:"id"`
	Name          string      `json:"name,omitempty" yaml:"name,omitempty"`
	Preconditions []Condition `json:"preconditions,omitempty" yaml:"preconditions,omitempty"`
	Effects       []Effect    `json:"effects" yaml:"effects"`
	Confidence    float64     `json:"confidence" yaml:"confidence"`
	Before        []string    `json:"before,omitempty" yaml:"before,omitempty"`
}

// Applicable reports whether every precondition holds against the graph.
// A rule with no preconditions is always applicable.
func (r Rule) Applicable(g *state.Graph) bool {
	for _, c := range r.Preconditions {
		if !c.Holds(g) {
			return false
		}
	}
	return true
}

// Validate checks structural soundness of a single rule.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule ID is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rule %s: confidence %g outside [0, 1]", r.ID, r.Confidence)
	}
	if len(r.Effects) == 0 {
		return fmt.Errorf("rule %s: at least one effect is required", r.ID)
	}
	writes := make(map[string]string, len(r.Effects))
	for i, e := range r.Effects {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("rule %s: effect %d: %w", r.ID, i, err)
		}
		key, value := e.WriteKey()
		if prev, seen := writes[key]; seen && prev != value {
			return fmt.Errorf("rule %s: effects write conflicting values to %s", r.ID, key)
		}
		writes[key] = value
	}
	return nil
}

// SortByID orders rules by ID ascending, in place. Rule-id order is the
// reproducibility tiebreak throughout the engine.
func SortByID(rs []Rule) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}
