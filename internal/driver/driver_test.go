package driver

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/diegorhoger/prospect/internal/constraint"
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/state"
	"github.com/diegorhoger/prospect/internal/tree"
)

func harborGraph(t *testing.T) *state.Graph {
	t.Helper()
	g, err := state.NewBuilder().
		AddEntity("harbor", "place",
			state.Property{Name: "weather", Value: "clear", Kind: state.KindPhysical},
		).
		AddEntity("fleet", "group",
			state.Property{Name: "status", Value: "docked", Kind: state.KindStatus},
		).
		AddRelationship("fleet", "harbor", "located-at", 1.0).
		Build()
	if err != nil {
		t.Fatalf("harborGraph: %v", err)
	}
	return g
}

// stormRules chains two transitions: clear weather turns stormy, then the
// stormy fleet shelters. Both chains terminate on their own preconditions.
func stormRules(t *testing.T) rules.Repository {
	t.Helper()
	repo, err := rules.NewMemoryRepository(
		rules.Rule{
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
		rules.Rule{
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
	)
	if err != nil {
		t.Fatalf("stormRules: %v", err)
	}
	return repo
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDriver(t *testing.T, repo rules.Repository, mutate func(*Config)) *Driver {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Budget.MaxDuration = 0
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := New(repo, cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestNewValidation(t *testing.T) {
	repo, _ := rules.NewMemoryRepository()

	if _, err := New(nil, DefaultConfig(), quietLogger(), nil); err == nil {
		t.Error("expected error for nil repository")
	}

	bad := DefaultConfig()
	bad.Budget.MaxBreadth = 0
	if _, err := New(repo, bad, quietLogger(), nil); err == nil {
		t.Error("expected error for zero breadth")
	}

	bad = DefaultConfig()
	bad.Scoring.DecayLambda = 0
	if _, err := New(repo, bad, quietLogger(), nil); err == nil {
		t.Error("expected error for bad scoring config")
	}
}

func TestRunNoMatchingRulesIsTerminal(t *testing.T) {
	repo, err := rules.NewMemoryRepository()
	if err != nil {
		t.Fatalf("NewMemoryRepository: %v", err)
	}
	d := newTestDriver(t, repo, nil)

	res, err := d.Run(context.Background(), harborGraph(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Tree.Len() != 1 {
		t.Errorf("tree has %d nodes, want 1", res.Tree.Len())
	}
	if !res.Tree.Root().Terminal {
		t.Error("root should be terminal when no rule matches")
	}
	if res.Summary.TerminalNodes != 1 {
		t.Errorf("TerminalNodes = %d, want 1", res.Summary.TerminalNodes)
	}
}

func TestRunStormChain(t *testing.T) {
	d := newTestDriver(t, stormRules(t), func(c *Config) {
		c.Budget.MaxDepth = 2
	})

	res, err := d.Run(context.Background(), harborGraph(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Root -> storm -> sheltered.
	if res.Tree.Len() != 3 {
		t.Fatalf("tree has %d nodes, want 3", res.Tree.Len())
	}

	level1 := res.Tree.Depth(1)
	if len(level1) != 1 {
		t.Fatalf("depth 1 has %d nodes, want 1", len(level1))
	}
	storm := level1[0]
	wantStorm := 0.6 * 0.95
	if math.Abs(storm.Confidence-wantStorm) > 1e-9 {
		t.Errorf("storm confidence = %g, want %g", storm.Confidence, wantStorm)
	}
	if e, ok := storm.State.Entity("harbor"); ok {
		if p, _ := e.Property("weather"); p.Value != "storm" {
			t.Errorf("harbor weather = %q, want storm", p.Value)
		}
	} else {
		t.Fatal("harbor missing at depth 1")
	}

	level2 := res.Tree.Depth(2)
	if len(level2) != 1 {
		t.Fatalf("depth 2 has %d nodes, want 1", len(level2))
	}
	sheltered := level2[0]
	wantSheltered := wantStorm * 0.9 * 0.95
	if math.Abs(sheltered.Confidence-wantSheltered) > 1e-9 {
		t.Errorf("sheltered confidence = %g, want %g", sheltered.Confidence, wantSheltered)
	}
	if !sheltered.Terminal {
		t.Error("depth-2 node should be terminal at max depth")
	}

	actions := sheltered.State.Actions()
	if len(actions) != 2 || actions[0] != "r-storm" || actions[1] != "r-shelter" {
		t.Errorf("action path = %v, want [r-storm r-shelter]", actions)
	}
}

func TestRunConfidenceMonotonic(t *testing.T) {
	d := newTestDriver(t, stormRules(t), func(c *Config) {
		c.Budget.MaxDepth = 4
	})
	res, err := d.Run(context.Background(), harborGraph(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	res.Tree.Walk(func(n *tree.Node) bool {
		for _, c := range n.Children {
			if c.Confidence > n.Confidence {
				t.Errorf("node %s confidence %g exceeds parent %g", c.ID, c.Confidence, n.Confidence)
			}
		}
		return true
	})
}

func TestRunConfidenceFloorPrunes(t *testing.T) {
	d := newTestDriver(t, stormRules(t), func(c *Config) {
		c.Budget.MaxDepth = 3
		c.MinConfidence = 0.7
	})
	res, err := d.Run(context.Background(), harborGraph(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The storm branch scores 0.57, below the floor, so it is attached
	// but pruned and never expanded.
	if res.Tree.Len() != 2 {
		t.Fatalf("tree has %d nodes, want 2", res.Tree.Len())
	}
	child := res.Tree.Root().Children[0]
	if !child.Pruned {
		t.Fatal("low-confidence child should be pruned")
	}
	if child.PruneReason != PruneBelowFloor {
		t.Errorf("PruneReason = %q, want %q", child.PruneReason, PruneBelowFloor)
	}
	if len(child.Children) != 0 {
		t.Error("pruned node must not be expanded")
	}
	if res.Summary.PrunedNodes != 1 {
		t.Errorf("PrunedNodes = %d, want 1", res.Summary.PrunedNodes)
	}
}

func TestRunNodeBudget(t *testing.T) {
	d := newTestDriver(t, stormRules(t), func(c *Config) {
		c.Budget.MaxDepth = 10
		c.Budget.MaxNodes = 2
	})
	res, err := d.Run(context.Background(), harborGraph(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Tree.Len() > 2 {
		t.Errorf("tree has %d nodes, budget was 2", res.Tree.Len())
	}
	if !res.Summary.BudgetExceeded {
		t.Error("summary should flag the exceeded budget")
	}
}

func TestRunBreadthCap(t *testing.T) {
	// Three mutually conflicting successors for the same property.
	repo, err := rules.NewMemoryRepository(
		conflictingRule("r1", "storm", 0.9),
		conflictingRule("r2", "fog", 0.8),
		conflictingRule("r3", "hail", 0.7),
	)
	if err != nil {
		t.Fatalf("NewMemoryRepository: %v", err)
	}

	d := newTestDriver(t, repo, func(c *Config) {
		c.Budget.MaxDepth = 1
		c.Budget.MaxBreadth = 2
	})
	res, err := d.Run(context.Background(), harborGraph(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	root := res.Tree.Root()
	if len(root.Children) != 2 {
		t.Fatalf("root has %d children, want 2 under the breadth cap", len(root.Children))
	}
	if root.NotExplored != 1 {
		t.Errorf("NotExplored = %d, want 1", root.NotExplored)
	}
	if res.Summary.NotExplored != 1 {
		t.Errorf("summary NotExplored = %d, want 1", res.Summary.NotExplored)
	}
	// Highest confidence sets survive the cap.
	if res.Tree.Root().Children[0].State.Actions()[0] != "r1" {
		t.Errorf("first child action = %v, want r1", root.Children[0].State.Actions())
	}
}

func TestRunMandatoryAvoidPrunes(t *testing.T) {
	d := newTestDriver(t, stormRules(t), func(c *Config) {
		c.Budget.MaxDepth = 3
		c.Constraints = constraint.Spec{
			Avoid: []constraint.Predicate{{
				ID: "no-storms",
				Condition: rules.Condition{
					Kind: rules.ConditionPropertyEquals, Entity: "harbor", Property: "weather", Value: "storm",
				},
				Mandatory: true,
			}},
		}
	})
	res, err := d.Run(context.Background(), harborGraph(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Tree.Len() != 2 {
		t.Fatalf("tree has %d nodes, want 2", res.Tree.Len())
	}
	child := res.Tree.Root().Children[0]
	if !child.Pruned || child.PruneReason != PruneMandatoryAvoid {
		t.Errorf("child pruned=%v reason=%q, want mandatory avoid prune", child.Pruned, child.PruneReason)
	}
}

func TestRunDeterministic(t *testing.T) {
	repo, err := rules.NewMemoryRepository(
		conflictingRule("r1", "storm", 0.9),
		conflictingRule("r2", "fog", 0.8),
		conflictingRule("r3", "hail", 0.7),
	)
	if err != nil {
		t.Fatalf("NewMemoryRepository: %v", err)
	}

	run := func() []string {
		d := newTestDriver(t, repo, func(c *Config) {
			c.Budget.MaxDepth = 2
			c.Concurrency = 4
		})
		res, err := d.Run(context.Background(), harborGraph(t))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		var ids []string
		res.Tree.Walk(func(n *tree.Node) bool {
			ids = append(ids, n.ID)
			return true
		})
		return ids
	}

	first := run()
	for i := 0; i < 10; i++ {
		again := run()
		if len(again) != len(first) {
			t.Fatalf("run %d produced %d nodes, want %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d node %d = %s, want %s", i, j, again[j], first[j])
			}
		}
	}
}

func TestRunCancelledContext(t *testing.T) {
	d := newTestDriver(t, stormRules(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Run(ctx, harborGraph(t)); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestRunNilRoot(t *testing.T) {
	d := newTestDriver(t, stormRules(t), nil)
	if _, err := d.Run(context.Background(), nil); err == nil {
		t.Error("expected error for nil root")
	}
}

// conflictingRule writes a distinct value to the shared harbor weather
// property, so any two of them conflict.
func conflictingRule(id, weather string, confidence float64) rules.Rule {
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
