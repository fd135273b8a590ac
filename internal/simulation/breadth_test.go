package simulation_test

import (
	"testing"

	"github.com/diegorhoger/prospect/internal/driver"
	"github.com/diegorhoger/prospect/internal/simulation"
	"github.com/diegorhoger/prospect/internal/tree"
)

// TestBreadthCapKeepsStrongestSets validates the per-node breadth cap:
// when more conflict-free action sets exist than the cap allows, the
// highest-confidence sets are expanded and the rest are counted as not
// explored on the node.
func TestBreadthCapKeepsStrongestSets(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:          "breadth-cap",
		Entities:      harborEntities(),
		Relationships: harborRelationships(),
		Rules: append(stormChain(),
			weatherRule("r-fog", "fog", 0.8),
			weatherRule("r-hail", "hail", 0.7),
		),
		Configure: func(c *driver.Config) {
			c.Budget.MaxBreadth = 2
		},
	})

	root := result.Tree.Root()
	if len(root.Children) != 2 {
		t.Fatalf("root has %d children, want 2", len(root.Children))
	}
	if root.NotExplored != 1 {
		t.Errorf("root.NotExplored = %d, want 1", root.NotExplored)
	}

	// Fog (0.8) and hail (0.7) beat the storm (0.6); the storm branch is
	// the one sacrificed.
	first, second := root.Children[0], root.Children[1]
	if first.Confidence < second.Confidence {
		t.Errorf("children out of confidence order: %g before %g", first.Confidence, second.Confidence)
	}
	for _, c := range root.Children {
		weather := mustWeather(t, c)
		if weather == "storm" {
			t.Error("the weakest branch should have been the one cut")
		}
	}
}

// TestBreadthCapOneIsGreedy validates the degenerate cap of one: the run
// becomes a greedy single-path walk.
func TestBreadthCapOneIsGreedy(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:          "breadth-one",
		Entities:      harborEntities(),
		Relationships: harborRelationships(),
		Rules: append(stormChain(),
			weatherRule("r-fog", "fog", 0.8),
		),
		Configure: func(c *driver.Config) {
			c.Budget.MaxBreadth = 1
		},
	})

	node := result.Tree.Root()
	for len(node.Children) > 0 {
		if len(node.Children) != 1 {
			t.Fatalf("node %s has %d children under a breadth cap of 1", node.ID, len(node.Children))
		}
		node = node.Children[0]
	}
	if mustWeather(t, node) != "fog" {
		t.Errorf("greedy walk should follow the strongest rule, got weather %q", mustWeather(t, node))
	}
}

// mustWeather reads the harbor weather off a node's state.
func mustWeather(t *testing.T, n *tree.Node) string {
	t.Helper()
	harbor, ok := n.State.Entity("harbor")
	if !ok {
		t.Fatalf("node %s lost the harbor entity", n.ID)
	}
	prop, ok := harbor.Property("weather")
	if !ok {
		t.Fatalf("node %s lost the weather property", n.ID)
	}
	return prop.Value
}
