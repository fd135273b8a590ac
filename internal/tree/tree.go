// Package tree holds the branch tree produced by a simulation run: one node
// per reached state, linked parent to children, with pruning and stability
// marks preserved for the summary and the decision trace.
package tree

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diegorhoger/prospect/internal/state"
)

// nodeNamespace seeds deterministic node IDs: the same tree position always
// maps to the same UUID, across runs and across worker schedules.
var nodeNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("prospect.diegorhoger.github.com"))

// NodeID derives the stable identifier for the node at the given depth and
// sibling position, reached by the given action path from the root. Depth and
// sibling index keep IDs unique when a transition applies no rules and the
// child's action path equals its parent's.
func NodeID(actions []string, depth, sibling int) string {
	key := fmt.Sprintf("%d/%d/%s", depth, sibling, strings.Join(actions, "/"))
	return uuid.NewSHA1(nodeNamespace, []byte(key)).String()
}

// Node is one simulated state in the branch tree.
type Node struct {
	ID    string       `json:"id"`
	State *state.Graph `json:"-"`

	Parent   *Node   `json:"-"`
	Children []*Node `json:"children,omitempty"`

	// Confidence mirrors State.Confidence for summaries without touching
	// the graph.
	Confidence float64 `json:"confidence"`

	// Pruned marks a node whose subtree was cut; PruneReason says why.
	Pruned      bool   `json:"pruned,omitempty"`
	PruneReason string `json:"prune_reason,omitempty"`

	// Unstable marks a confidence that had to be clamped from a
	// non-finite intermediate.
	Unstable bool `json:"unstable,omitempty"`

	// NotExplored counts candidate action-sets dropped at this node by
	// the breadth cap.
	NotExplored int `json:"not_explored,omitempty"`

	// Terminal marks a leaf where no rule matched or max depth was hit.
	Terminal bool `json:"terminal,omitempty"`
}

// Depth reports the node's distance from the root via its state.
func (n *Node) Depth() int {
	return n.State.Depth()
}

// Prune marks the node pruned with the given reason. Pruning is sticky; the
// first reason wins.
func (n *Node) Prune(reason string) {
	if n.Pruned {
		return
	}
	n.Pruned = true
	n.PruneReason = reason
}

// Tree is the full branch tree of a run.
type Tree struct {
	root  *Node
	count int
}

// New starts a tree at the given root state.
func New(root *state.Graph) *Tree {
	n := &Node{
		ID:         NodeID(root.Actions(), 0, 0),
		State:      root,
		Confidence: root.Confidence(),
	}
	return &Tree{root: n, count: 1}
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Len returns the total number of nodes.
func (t *Tree) Len() int { return t.count }

// AddChild attaches a new node for the given state under parent.
func (t *Tree) AddChild(parent *Node, g *state.Graph) *Node {
	n := &Node{
		ID:         NodeID(g.Actions(), g.Depth(), len(parent.Children)),
		State:      g,
		Parent:     parent,
		Confidence: g.Confidence(),
	}
	parent.Children = append(parent.Children, n)
	t.count++
	return n
}

// Depth returns every node whose state sits at the given depth, in tree
// insertion order.
func (t *Tree) Depth(d int) []*Node {
	var out []*Node
	t.Walk(func(n *Node) bool {
		if n.Depth() == d {
			out = append(out, n)
		}
		return n.Depth() < d
	})
	return out
}

// MaxDepth returns the deepest depth reached.
func (t *Tree) MaxDepth() int {
	max := 0
	t.Walk(func(n *Node) bool {
		if d := n.Depth(); d > max {
			max = d
		}
		return true
	})
	return max
}

// Walk visits nodes depth-first in insertion order. The visitor returns
// false to skip a node's subtree.
func (t *Tree) Walk(visit func(*Node) bool) {
	var rec func(n *Node)
	rec = func(n *Node) {
		if !visit(n) {
			return
		}
		for _, c := range n.Children {
			rec(c)
		}
	}
	rec(t.root)
}

// Outcome is one leaf reported in the summary.
type Outcome struct {
	NodeID     string   `json:"node_id"`
	Actions    []string `json:"actions"`
	Confidence float64  `json:"confidence"`
	Depth      int      `json:"depth"`
	Terminal   bool     `json:"terminal"`
}

// Summary aggregates a finished run for reporting.
type Summary struct {
	TotalNodes     int           `json:"total_nodes"`
	PrunedNodes    int           `json:"pruned_nodes"`
	NotExplored    int           `json:"not_explored"`
	TerminalNodes  int           `json:"terminal_nodes"`
	UnstableNodes  int           `json:"unstable_nodes"`
	MaxDepth       int           `json:"max_depth"`
	BudgetExceeded bool          `json:"budget_exceeded,omitempty"`
	Elapsed        time.Duration `json:"elapsed_ns"`
	MeanConfidence float64       `json:"mean_confidence"`
	TopOutcomes    []Outcome     `json:"top_outcomes,omitempty"`
}

// Summarize walks the tree and aggregates counts plus the k most confident
// unpruned leaves, ties broken by node ID.
func Summarize(t *Tree, k int) Summary {
	var s Summary
	var confidenceSum float64
	var leaves []*Node

	t.Walk(func(n *Node) bool {
		s.TotalNodes++
		confidenceSum += n.Confidence
		if d := n.Depth(); d > s.MaxDepth {
			s.MaxDepth = d
		}
		if n.Pruned {
			s.PrunedNodes++
		}
		if n.Unstable {
			s.UnstableNodes++
		}
		if n.Terminal {
			s.TerminalNodes++
		}
		s.NotExplored += n.NotExplored
		if len(n.Children) == 0 && !n.Pruned {
			leaves = append(leaves, n)
		}
		return true
	})

	if s.TotalNodes > 0 {
		s.MeanConfidence = confidenceSum / float64(s.TotalNodes)
	}

	sort.Slice(leaves, func(i, j int) bool {
		if leaves[i].Confidence != leaves[j].Confidence {
			return leaves[i].Confidence > leaves[j].Confidence
		}
		return leaves[i].ID < leaves[j].ID
	})
	if k > 0 && len(leaves) > k {
		leaves = leaves[:k]
	}
	for _, n := range leaves {
		s.TopOutcomes = append(s.TopOutcomes, Outcome{
			NodeID:     n.ID,
			Actions:    n.State.Actions(),
			Confidence: n.Confidence,
			Depth:      n.Depth(),
			Terminal:   n.Terminal,
		})
	}
	return s
}
