package simulation

import (
	"math"
	"testing"

	"github.com/diegorhoger/prospect/internal/tree"
)

// AssertMonotonicConfidence asserts that no node is more confident than its
// parent, anywhere in the tree.
func AssertMonotonicConfidence(t *testing.T, result Result) {
	t.Helper()
	result.Tree.Walk(func(n *tree.Node) bool {
		for _, c := range n.Children {
			if c.Confidence > n.Confidence {
				t.Errorf("AssertMonotonicConfidence: node %s confidence %.6f exceeds parent %.6f", c.ID, c.Confidence, n.Confidence)
			}
		}
		return true
	})
}

// AssertFiniteConfidence asserts that every node carries a finite confidence
// in [0, 1].
func AssertFiniteConfidence(t *testing.T, result Result) {
	t.Helper()
	result.Tree.Walk(func(n *tree.Node) bool {
		if math.IsNaN(n.Confidence) || math.IsInf(n.Confidence, 0) {
			t.Errorf("AssertFiniteConfidence: node %s confidence %v is not finite", n.ID, n.Confidence)
		}
		if n.Confidence < 0 || n.Confidence > 1 {
			t.Errorf("AssertFiniteConfidence: node %s confidence %.6f outside [0, 1]", n.ID, n.Confidence)
		}
		return true
	})
}

// AssertReferentialIntegrity asserts that every node's state validates: no
// relationship endpoint is dangling and no property carries an unknown kind.
func AssertReferentialIntegrity(t *testing.T, result Result) {
	t.Helper()
	result.Tree.Walk(func(n *tree.Node) bool {
		if err := n.State.Validate(); err != nil {
			t.Errorf("AssertReferentialIntegrity: node %s: %v", n.ID, err)
		}
		return true
	})
}

// AssertBudgetRespected asserts the tree stayed within the node and depth
// budgets (0 means unbounded).
func AssertBudgetRespected(t *testing.T, result Result, maxNodes, maxDepth int) {
	t.Helper()
	if maxNodes > 0 && result.Tree.Len() > maxNodes {
		t.Errorf("AssertBudgetRespected: tree has %d nodes, budget was %d", result.Tree.Len(), maxNodes)
	}
	if maxDepth > 0 && result.Summary.MaxDepth > maxDepth {
		t.Errorf("AssertBudgetRespected: tree reached depth %d, budget was %d", result.Summary.MaxDepth, maxDepth)
	}
}

// AssertPruningSound asserts that pruned nodes carry a reason and were never
// expanded, and that unpruned internal nodes sit at or above the floor.
func AssertPruningSound(t *testing.T, result Result, minConfidence float64) {
	t.Helper()
	result.Tree.Walk(func(n *tree.Node) bool {
		if n.Pruned {
			if n.PruneReason == "" {
				t.Errorf("AssertPruningSound: node %s pruned without a reason", n.ID)
			}
			if len(n.Children) != 0 {
				t.Errorf("AssertPruningSound: pruned node %s has %d children", n.ID, len(n.Children))
			}
			return true
		}
		if len(n.Children) > 0 && n.Confidence < minConfidence {
			t.Errorf("AssertPruningSound: node %s expanded below the floor (%.6f < %.6f)", n.ID, n.Confidence, minConfidence)
		}
		return true
	})
}

// AssertDeterministic runs the scenario several more times on fresh runners
// and asserts every run produces the identical tree: same nodes in the same
// order, each with the same confidence.
func AssertDeterministic(t *testing.T, scenario Scenario, reference Result, runs int) {
	t.Helper()
	want := collectNodes(reference)
	for i := 0; i < runs; i++ {
		got := collectNodes(NewRunner(t).Run(scenario))
		if len(got) != len(want) {
			t.Fatalf("AssertDeterministic: run %d produced %d nodes, want %d", i, len(got), len(want))
		}
		for j := range got {
			if got[j].id != want[j].id {
				t.Fatalf("AssertDeterministic: run %d node %d = %s, want %s", i, j, got[j].id, want[j].id)
			}
			if got[j].confidence != want[j].confidence {
				t.Fatalf("AssertDeterministic: run %d node %s confidence = %v, want %v",
					i, got[j].id, got[j].confidence, want[j].confidence)
			}
		}
	}
}

type nodeFingerprint struct {
	id         string
	confidence float64
}

func collectNodes(result Result) []nodeFingerprint {
	var nodes []nodeFingerprint
	result.Tree.Walk(func(n *tree.Node) bool {
		nodes = append(nodes, nodeFingerprint{id: n.ID, confidence: n.Confidence})
		return true
	})
	return nodes
}
