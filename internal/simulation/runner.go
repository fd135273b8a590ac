package simulation

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/diegorhoger/prospect/internal/driver"
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/state"
)

// Runner orchestrates simulation experiments against a real SQLite rule
// repository and the real driver.
type Runner struct {
	t    *testing.T
	repo *rules.SQLiteRepository
}

// NewRunner creates a runner with an isolated SQLite repository and a
// sandboxed HOME directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	repo, err := rules.NewSQLiteRepository(tmpDir)
	if err != nil {
		t.Fatalf("NewRunner: failed to create rule repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return &Runner{t: t, repo: repo}
}

// Run executes the scenario and returns the resulting branch tree.
func (r *Runner) Run(scenario Scenario) Result {
	r.t.Helper()
	ctx := context.Background()

	// Phase 1: Seed the rule repository.
	for _, rule := range scenario.Rules {
		if err := r.repo.Put(ctx, rule); err != nil {
			r.t.Fatalf("%s: seeding rule %s: %v", scenario.Name, rule.ID, err)
		}
	}

	// Phase 2: Build the root state.
	root := r.buildRoot(scenario)

	// Phase 3: Configure and run the driver.
	cfg := driver.DefaultConfig()
	cfg.Budget.MaxDuration = 0
	cfg.Constraints = scenario.Constraints
	if scenario.Configure != nil {
		scenario.Configure(&cfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := driver.New(r.repo, cfg, log, nil)
	if err != nil {
		r.t.Fatalf("%s: building driver: %v", scenario.Name, err)
	}

	res, err := d.Run(ctx, root)
	if err != nil {
		r.t.Fatalf("%s: run failed: %v", scenario.Name, err)
	}
	return Result{Tree: res.Tree, Summary: res.Summary}
}

// buildRoot assembles and validates the scenario's root state.
func (r *Runner) buildRoot(scenario Scenario) *state.Graph {
	r.t.Helper()
	b := state.NewBuilder()
	for _, e := range scenario.Entities {
		b.AddEntity(e.ID, e.Type, e.Props...)
	}
	for _, rel := range scenario.Relationships {
		b.AddRelationship(rel.Source, rel.Target, rel.Relation, rel.Weight)
	}
	g, err := b.Build()
	if err != nil {
		r.t.Fatalf("%s: building root state: %v", scenario.Name, err)
	}
	return g
}
