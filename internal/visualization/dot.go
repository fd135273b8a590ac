// Package visualization renders branch trees in various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/diegorhoger/prospect/internal/tree"
)

// Format specifies the output format for tree rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// nodeColor picks a DOT fill color from the node's disposition.
func nodeColor(n *tree.Node) string {
	switch {
	case n.Pruned:
		return "tomato"
	case n.Unstable:
		return "goldenrod"
	case n.Terminal:
		return "mediumseagreen"
	default:
		return "steelblue"
	}
}

// RenderDOT produces a Graphviz DOT representation of the branch tree.
// Nodes are labeled with the rule that produced them and their confidence;
// pruned nodes carry the prune reason as a tooltip.
func RenderDOT(t *tree.Tree) string {
	var b strings.Builder
	b.WriteString("digraph prospect {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [shape=box, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	t.Walk(func(n *tree.Node) bool {
		tooltip := fmt.Sprintf("confidence=%.3f depth=%d", n.Confidence, n.Depth())
		if n.Pruned {
			tooltip += " pruned: " + n.PruneReason
		}
		b.WriteString(fmt.Sprintf("  %q [label=%q, fillcolor=%q, tooltip=%q];\n",
			n.ID, nodeLabel(n), nodeColor(n), tooltip))
		return true
	})
	b.WriteString("\n")

	t.Walk(func(n *tree.Node) bool {
		for _, c := range n.Children {
			b.WriteString(fmt.Sprintf("  %q -> %q [label=\"%.3f\"];\n", n.ID, c.ID, c.Confidence))
		}
		return true
	})

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready tree representation with nodes and edges
// arrays.
func RenderJSON(t *tree.Tree) map[string]interface{} {
	var nodes []map[string]interface{}
	var edges []map[string]interface{}

	t.Walk(func(n *tree.Node) bool {
		entry := map[string]interface{}{
			"id":         n.ID,
			"label":      nodeLabel(n),
			"depth":      n.Depth(),
			"confidence": n.Confidence,
			"terminal":   n.Terminal,
		}
		if n.Pruned {
			entry["pruned"] = true
			entry["prune_reason"] = n.PruneReason
		}
		if n.Unstable {
			entry["unstable"] = true
		}
		if n.NotExplored > 0 {
			entry["not_explored"] = n.NotExplored
		}
		nodes = append(nodes, entry)

		for _, c := range n.Children {
			edges = append(edges, map[string]interface{}{
				"source":     n.ID,
				"target":     c.ID,
				"confidence": c.Confidence,
			})
		}
		return true
	})

	return map[string]interface{}{
		"nodes":      nodes,
		"edges":      edges,
		"node_count": len(nodes),
		"edge_count": len(edges),
	}
}

// nodeLabel describes a node by the step of the action path that produced
// it: the rule IDs applied in its final transition, or "start" for the root.
func nodeLabel(n *tree.Node) string {
	step := lastStep(n)
	if len(step) == 0 {
		return "start"
	}
	return truncate(strings.Join(step, "+"), 40)
}

// lastStep returns the rule IDs the node's own transition applied, i.e. the
// suffix of its action path beyond its parent's.
func lastStep(n *tree.Node) []string {
	if n.Parent == nil {
		return nil
	}
	parentLen := len(n.Parent.State.Actions())
	actions := n.State.Actions()
	if parentLen > len(actions) {
		return nil
	}
	return actions[parentLen:]
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
