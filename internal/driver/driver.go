// Package driver orchestrates simulation runs: breadth-first expansion of the
// branch tree, level by level, with bounded parallelism inside each level.
// Workers never touch shared state; they write into an indexed result slice
// and a single sequential assembly pass attaches children in frontier order,
// so a run's output is identical regardless of worker scheduling.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/diegorhoger/prospect/internal/constraint"
	"github.com/diegorhoger/prospect/internal/logging"
	"github.com/diegorhoger/prospect/internal/match"
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/scoring"
	"github.com/diegorhoger/prospect/internal/state"
	"github.com/diegorhoger/prospect/internal/transition"
	"github.com/diegorhoger/prospect/internal/tree"
)

// Phase names the per-level states a run moves through. Each level passes
// Expanding -> Scoring -> Pruning; the run ends in Terminal.
type Phase string

const (
	PhaseInitialized Phase = "initialized"
	PhaseExpanding   Phase = "expanding"
	PhaseScoring     Phase = "scoring"
	PhasePruning     Phase = "pruning"
	PhaseTerminal    Phase = "terminal"
)

// Prune reasons recorded on cut nodes.
const (
	PruneBelowFloor     = "below confidence floor"
	PruneBudgetExceeded = "budget-exceeded"
	PruneMandatoryAvoid = "mandatory avoid constraint"
)

// Budget bounds one run. Zero values mean "no limit" except MaxBreadth,
// which must be at least 1.
type Budget struct {
	// MaxDepth is how many levels the tree may expand.
	MaxDepth int

	// MaxNodes caps the total node count across the whole tree.
	MaxNodes int

	// MaxBreadth caps action-sets expanded per node; the overflow is
	// counted on the node as not explored.
	MaxBreadth int

	// MaxDuration caps wall-clock time for the run.
	MaxDuration time.Duration
}

// Config assembles everything a run needs beyond the root state.
type Config struct {
	Budget Budget

	// MinConfidence prunes branches scoring below it before expansion.
	MinConfidence float64

	// Concurrency is the worker bound inside one level.
	Concurrency int

	// Scoring configures the confidence model.
	Scoring scoring.Config

	// Constraints biases scoring and, for mandatory avoid predicates,
	// prunes outright.
	Constraints constraint.Spec

	// TopOutcomes is how many leaves the summary reports.
	TopOutcomes int
}

// DefaultConfig returns a config suitable for interactive use.
func DefaultConfig() Config {
	return Config{
		Budget: Budget{
			MaxDepth:    5,
			MaxNodes:    500,
			MaxBreadth:  4,
			MaxDuration: 30 * time.Second,
		},
		MinConfidence: 0.05,
		Concurrency:   4,
		Scoring:       scoring.DefaultConfig(),
		TopOutcomes:   5,
	}
}

// Validate checks the config is runnable.
func (c Config) Validate() error {
	if c.Budget.MaxDepth < 0 || c.Budget.MaxNodes < 0 || c.Budget.MaxDuration < 0 {
		return fmt.Errorf("budget limits must be non-negative")
	}
	if c.Budget.MaxBreadth < 1 {
		return fmt.Errorf("max breadth must be at least 1, got %d", c.Budget.MaxBreadth)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence %g outside [0, 1]", c.MinConfidence)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	return c.Constraints.Validate()
}

// Result is a finished run.
type Result struct {
	Tree    *tree.Tree
	Summary tree.Summary
}

// Driver runs simulations against a rule repository.
type Driver struct {
	repo   rules.Repository
	cfg    Config
	scorer *scoring.Scorer
	log    *slog.Logger
	trace  *logging.TraceLogger

	// nodes counts every node created across the run, including the root.
	nodes atomic.Int64
}

// New builds a driver. The trace logger may be nil.
func New(repo rules.Repository, cfg Config, log *slog.Logger, trace *logging.TraceLogger) (*Driver, error) {
	if repo == nil {
		return nil, fmt.Errorf("rule repository is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("driver config: %w", err)
	}
	scorer, err := scoring.NewScorer(cfg.Scoring, cfg.Constraints)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Driver{repo: repo, cfg: cfg, scorer: scorer, log: log, trace: trace}, nil
}

// candidate is one scored child produced inside a level, before assembly.
type candidate struct {
	child  *state.Graph
	set    match.ActionSet
	score  scoring.Result
	banned []constraint.Predicate // matched mandatory avoid predicates
}

// expansion is one frontier node's worth of candidates.
type expansion struct {
	candidates  []candidate
	notExplored int
	terminal    bool
}

// Run simulates forward from root until the tree is exhausted or a budget
// trips. The returned error covers setup problems and context cancellation;
// budget exhaustion is not an error, it is reported on the summary.
func (d *Driver) Run(ctx context.Context, root *state.Graph) (*Result, error) {
	if root == nil {
		return nil, fmt.Errorf("root state is required")
	}
	if err := root.Validate(); err != nil {
		return nil, fmt.Errorf("root state: %w", err)
	}
	snapshot, err := d.repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	start := time.Now()
	var deadline time.Time
	if d.cfg.Budget.MaxDuration > 0 {
		deadline = start.Add(d.cfg.Budget.MaxDuration)
	}

	tr := tree.New(root)
	d.nodes.Store(1)
	frontier := []*tree.Node{tr.Root()}
	budgetExceeded := false

	phase := PhaseInitialized
	d.log.Debug("run starting", "phase", string(phase), "rules", len(snapshot))

	for depth := 0; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if d.cfg.Budget.MaxDepth > 0 && depth >= d.cfg.Budget.MaxDepth {
			for _, n := range frontier {
				n.Terminal = true
			}
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			budgetExceeded = true
			d.pruneFrontier(frontier, PruneBudgetExceeded)
			break
		}

		phase = PhaseExpanding
		d.log.Debug("level starting", "phase", string(phase), "depth", depth, "frontier", len(frontier))
		results, err := d.expandLevel(ctx, frontier, snapshot)
		if err != nil {
			return nil, err
		}

		phase = PhaseScoring
		if err := d.scoreLevel(ctx, frontier, results); err != nil {
			return nil, err
		}

		phase = PhasePruning
		next, exceeded := d.assembleLevel(tr, frontier, results)
		if exceeded {
			budgetExceeded = true
		}
		frontier = next
	}

	phase = PhaseTerminal
	d.log.Debug("run finished", "phase", string(phase), "nodes", d.nodes.Load())

	summary := tree.Summarize(tr, d.cfg.TopOutcomes)
	summary.BudgetExceeded = budgetExceeded
	summary.Elapsed = time.Since(start)
	return &Result{Tree: tr, Summary: summary}, nil
}

// expandLevel matches and applies action-sets for every frontier node in
// parallel. results[i] always belongs to frontier[i].
func (d *Driver) expandLevel(ctx context.Context, frontier []*tree.Node, snapshot []rules.Rule) ([]expansion, error) {
	results := make([]expansion, len(frontier))
	sem := semaphore.NewWeighted(int64(d.cfg.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i, node := range frontier {
		if node.Pruned {
			continue
		}
		i, node := i, node
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = d.expandNode(node, snapshot)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// expandNode derives the candidate children of one node. Matching reads the
// node's state without mutating it, so expansions run side by side safely.
func (d *Driver) expandNode(node *tree.Node, snapshot []rules.Rule) expansion {
	matched := match.Match(node.State, snapshot)
	if len(matched) == 0 {
		return expansion{terminal: true}
	}

	// Ask for every maximal set so the breadth overflow can be counted;
	// enumeration is bounded inside the partitioner.
	sets := match.Partition(matched, math.MaxInt)
	var res expansion
	if len(sets) > d.cfg.Budget.MaxBreadth {
		res.notExplored = len(sets) - d.cfg.Budget.MaxBreadth
		sets = sets[:d.cfg.Budget.MaxBreadth]
	}
	for _, set := range sets {
		res.candidates = append(res.candidates, candidate{
			child: transition.Apply(node.State, set),
			set:   set,
		})
	}
	return res
}

// scoreLevel scores every candidate in parallel, writing back into the
// indexed results.
func (d *Driver) scoreLevel(ctx context.Context, frontier []*tree.Node, results []expansion) error {
	sem := semaphore.NewWeighted(int64(d.cfg.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i := range results {
		if len(results[i].candidates) == 0 {
			continue
		}
		i := i
		parent := frontier[i]
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			for j := range results[i].candidates {
				c := &results[i].candidates[j]
				c.score = d.scorer.Score(parent.Confidence, c.set, c.child)
				c.banned = d.cfg.Constraints.MatchedAvoid(c.child)
				c.child = c.child.WithConfidence(c.score.Confidence)
			}
			return nil
		})
	}
	return g.Wait()
}

// assembleLevel attaches candidates in frontier order, applying the node
// budget, the confidence floor, and mandatory avoid pruning. Returns the
// next frontier and whether the node budget tripped.
func (d *Driver) assembleLevel(tr *tree.Tree, frontier []*tree.Node, results []expansion) ([]*tree.Node, bool) {
	var next []*tree.Node
	exceeded := false

	for i, node := range frontier {
		res := results[i]
		if res.terminal {
			node.Terminal = true
			continue
		}
		node.NotExplored += res.notExplored

		for _, c := range res.candidates {
			if d.cfg.Budget.MaxNodes > 0 && d.nodes.Load() >= int64(d.cfg.Budget.MaxNodes) {
				exceeded = true
				node.NotExplored++
				continue
			}
			child := tr.AddChild(node, c.child)
			d.nodes.Add(1)
			child.Unstable = c.score.Unstable

			for _, a := range c.child.Annotations() {
				d.trace.EffectConflict(child.ID, a)
			}
			if c.score.Unstable {
				d.trace.Clamp(child.ID, c.score.Notes)
			}

			switch {
			case len(c.banned) > 0 && mandatory(c.banned):
				child.Prune(PruneMandatoryAvoid)
				d.trace.Prune(child.ID, PruneMandatoryAvoid, child.Confidence)
			case child.Confidence < d.cfg.MinConfidence:
				child.Prune(PruneBelowFloor)
				d.trace.Prune(child.ID, PruneBelowFloor, child.Confidence)
			default:
				next = append(next, child)
			}
		}
	}

	if exceeded {
		d.pruneFrontier(next, PruneBudgetExceeded)
		return nil, true
	}
	return next, false
}

// pruneFrontier cuts every remaining frontier node when a budget trips.
func (d *Driver) pruneFrontier(frontier []*tree.Node, reason string) {
	for _, n := range frontier {
		n.Prune(reason)
		d.trace.Prune(n.ID, reason, n.Confidence)
	}
}

func mandatory(ps []constraint.Predicate) bool {
	for _, p := range ps {
		if p.Mandatory {
			return true
		}
	}
	return false
}
