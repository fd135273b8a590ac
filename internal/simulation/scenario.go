package simulation

import (
	"github.com/diegorhoger/prospect/internal/constraint"
	"github.com/diegorhoger/prospect/internal/driver"
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/state"
	"github.com/diegorhoger/prospect/internal/tree"
)

// EntitySpec seeds one root entity.
type EntitySpec struct {
	ID    string
	Type  string
	Props []state.Property
}

// RelationshipSpec seeds one root relationship.
type RelationshipSpec struct {
	Source, Target, Relation string
	Weight                   float64
}

// Scenario is a complete harness input: the root state, the rule pack, the
// constraint spec, and an optional hook to tweak the driver config before
// the run.
type Scenario struct {
	Name          string
	Entities      []EntitySpec
	Relationships []RelationshipSpec
	Rules         []rules.Rule
	Constraints   constraint.Spec

	// Configure mutates the default driver config before the run.
	Configure func(*driver.Config)
}

// Result is a finished harness run.
type Result struct {
	Tree    *tree.Tree
	Summary tree.Summary
}
