package simulation_test

import (
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/simulation"
	"github.com/diegorhoger/prospect/internal/state"
)

// harborEntities is the shared world: a harbor with weather, a fleet docked
// in it.
func harborEntities() []simulation.EntitySpec {
	return []simulation.EntitySpec{
		{ID: "harbor", Type: "place", Props: []state.Property{
			{Name: "weather", Value: "clear", Kind: state.KindPhysical},
		}},
		{ID: "fleet", Type: "group", Props: []state.Property{
			{Name: "status", Value: "docked", Kind: state.KindStatus},
		}},
	}
}

func harborRelationships() []simulation.RelationshipSpec {
	return []simulation.RelationshipSpec{
		{Source: "fleet", Target: "harbor", Relation: "located-at", Weight: 1.0},
	}
}

// weatherRule writes a distinct value to harbor weather when it is clear.
// Any two weatherRules conflict with each other.
func weatherRule(id, weather string, confidence float64) rules.Rule {
	return rules.Rule{
		ID:         id,
		Confidence: confidence,
		Preconditions: []rules.Condition{{
			Kind: rules.ConditionPropertyEquals, Entity: "harbor", Property: "weather", Value: "clear",
		}},
		Effects: []rules.Effect{{
			Kind: rules.EffectSetProperty, Entity: "harbor", Property: "weather",
			Value: weather, PropertyKind: state.KindPhysical,
		}},
	}
}

// stormChain is a two-step narrative: clear weather turns stormy, then the
// fleet shelters. Both steps terminate on their own preconditions.
func stormChain() []rules.Rule {
	return []rules.Rule{
		{
			ID:         "r-storm",
			Name:       "storm rolls in",
			Confidence: 0.6,
			Preconditions: []rules.Condition{{
				Kind: rules.ConditionPropertyEquals, Entity: "harbor", Property: "weather", Value: "clear",
			}},
			Effects: []rules.Effect{{
				Kind: rules.EffectSetProperty, Entity: "harbor", Property: "weather",
				Value: "storm", PropertyKind: state.KindPhysical,
			}},
		},
		{
			ID:         "r-shelter",
			Name:       "fleet shelters",
			Confidence: 0.9,
			Preconditions: []rules.Condition{
				{Kind: rules.ConditionPropertyEquals, Entity: "harbor", Property: "weather", Value: "storm"},
				{Kind: rules.ConditionPropertyNotEquals, Entity: "fleet", Property: "status", Value: "sheltered"},
			},
			Effects: []rules.Effect{{
				Kind: rules.EffectSetProperty, Entity: "fleet", Property: "status",
				Value: "sheltered", PropertyKind: state.KindStatus,
			}},
		},
	}
}
