package visualization

import (
	"strings"
	"testing"

	"github.com/diegorhoger/prospect/internal/match"
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/state"
	"github.com/diegorhoger/prospect/internal/transition"
	"github.com/diegorhoger/prospect/internal/tree"
)

// smallTree builds a three-node tree: root -> storm (pruned) and
// root -> fog (terminal).
func smallTree(t *testing.T) *tree.Tree {
	t.Helper()
	b := state.NewBuilder()
	b.AddEntity("harbor", "place", state.Property{Name: "weather", Value: "clear", Kind: state.KindPhysical})
	root, err := b.Build()
	if err != nil {
		t.Fatalf("building root: %v", err)
	}

	mk := func(id, weather string, confidence float64) *state.Graph {
		r := rules.Rule{
			ID:         id,
			Confidence: confidence,
			Effects: []rules.Effect{{
				Kind: rules.EffectSetProperty, Entity: "harbor", Property: "weather",
				Value: weather, PropertyKind: state.KindPhysical,
			}},
		}
		child := transition.Apply(root, match.NewActionSet([]rules.Rule{r}))
		return child.WithConfidence(confidence)
	}

	tr := tree.New(root)
	storm := tr.AddChild(tr.Root(), mk("r-storm", "storm", 0.3))
	storm.Prune("below confidence floor")
	fog := tr.AddChild(tr.Root(), mk("r-fog", "fog", 0.8))
	fog.Terminal = true
	return tr
}

func TestRenderDOT(t *testing.T) {
	out := RenderDOT(smallTree(t))

	if !strings.HasPrefix(out, "digraph prospect {") {
		t.Errorf("output does not open a digraph:\n%s", out)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "}") {
		t.Error("output does not close the digraph")
	}
	for _, want := range []string{
		`label="start"`,
		`label="r-storm"`,
		`label="r-fog"`,
		"tomato",         // pruned
		"mediumseagreen", // terminal
		"below confidence floor",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "->"); got != 2 {
		t.Errorf("rendered %d edges, want 2", got)
	}
}

func TestRenderJSON(t *testing.T) {
	data := RenderJSON(smallTree(t))

	if data["node_count"] != 3 {
		t.Errorf("node_count = %v, want 3", data["node_count"])
	}
	if data["edge_count"] != 2 {
		t.Errorf("edge_count = %v, want 2", data["edge_count"])
	}

	nodes := data["nodes"].([]map[string]interface{})
	var sawPruned, sawTerminal bool
	for _, n := range nodes {
		if n["pruned"] == true {
			sawPruned = true
			if n["prune_reason"] != "below confidence floor" {
				t.Errorf("prune_reason = %v", n["prune_reason"])
			}
		}
		if n["terminal"] == true {
			sawTerminal = true
		}
	}
	if !sawPruned || !sawTerminal {
		t.Errorf("expected a pruned and a terminal node, got pruned=%v terminal=%v", sawPruned, sawTerminal)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 40); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncate(long, 40)
	if len(got) != 40 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate() = %q (len %d)", got, len(got))
	}
}
