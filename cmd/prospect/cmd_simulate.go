package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diegorhoger/prospect/internal/config"
	"github.com/diegorhoger/prospect/internal/driver"
	"github.com/diegorhoger/prospect/internal/logging"
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/scenario"
	"github.com/diegorhoger/prospect/internal/tree"
	"github.com/diegorhoger/prospect/internal/visualization"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a scenario forward through a rule pack",
		Long: `Simulate a scenario forward through a rule pack.

The scenario file supplies the root state and constraints; rules come from
a pack file (--rules) or from the project rule database. Budgets come from
the configuration, overridable per scenario and per flag.

Examples:
  prospect simulate --scenario harbor.yaml --rules weather.yaml
  prospect simulate --scenario harbor.yaml --max-depth 3 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			scenarioPath, _ := cmd.Flags().GetString("scenario")
			rulesPath, _ := cmd.Flags().GetString("rules")

			sc, err := scenario.Load(scenarioPath)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.Logging.Level = lvl
			}
			applyFlagOverrides(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			repo, err := openRepository(root, rulesPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			log := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
			traceDir := cfg.Storage.Dir
			if !filepath.IsAbs(traceDir) {
				traceDir = filepath.Join(root, traceDir)
			}
			trace := logging.NewTraceLogger(traceDir, cfg.Logging.Level)
			defer trace.Close()

			dc := driverConfig(cfg, sc)
			if v, _ := cmd.Flags().GetInt("top"); v > 0 {
				dc.TopOutcomes = v
			}
			d, err := driver.New(repo, dc, log, trace)
			if err != nil {
				return err
			}

			rootState, err := sc.Graph()
			if err != nil {
				return err
			}
			res, err := d.Run(cmd.Context(), rootState)
			if err != nil {
				return err
			}

			if dotPath, _ := cmd.Flags().GetString("dot"); dotPath != "" {
				if err := os.WriteFile(dotPath, []byte(visualization.RenderDOT(res.Tree)), 0644); err != nil {
					return fmt.Errorf("writing DOT file: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote branch tree to %s\n", dotPath)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"scenario": sc.Name,
					"summary":  res.Summary,
				})
			}
			printSummary(cmd, sc.Name, res.Summary)
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "Scenario YAML file (required)")
	cmd.Flags().String("rules", "", "Rule pack YAML file (default: project rule database)")
	cmd.Flags().Int("max-depth", 0, "Override the maximum tree depth")
	cmd.Flags().Int("max-nodes", 0, "Override the total node budget")
	cmd.Flags().Int("max-breadth", 0, "Override the per-node breadth cap")
	cmd.Flags().Float64("min-confidence", -1, "Override the pruning confidence floor")
	cmd.Flags().Int("concurrency", 0, "Override the expansion worker count")
	cmd.Flags().Int("top", 0, "How many outcomes to report")
	cmd.Flags().String("dot", "", "Write the branch tree as Graphviz DOT to this file")
	cmd.MarkFlagRequired("scenario")

	return cmd
}

// openRepository picks the rule source: a pack file when given, otherwise the
// project rule database.
func openRepository(root, rulesPath string) (rules.Repository, error) {
	if rulesPath != "" {
		pack, err := rules.LoadPack(rulesPath)
		if err != nil {
			return nil, err
		}
		return pack.Repository()
	}
	if _, err := os.Stat(filepath.Join(root, ".prospect")); os.IsNotExist(err) {
		return nil, fmt.Errorf("no rule database at %s: pass --rules or run 'prospect rules import' first", filepath.Join(root, ".prospect"))
	}
	return rules.NewSQLiteRepository(root)
}

// applyFlagOverrides layers simulate's engine flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetInt("max-depth"); v > 0 {
		cfg.Engine.MaxDepth = v
	}
	if v, _ := cmd.Flags().GetInt("max-nodes"); v > 0 {
		cfg.Engine.MaxNodes = v
	}
	if v, _ := cmd.Flags().GetInt("max-breadth"); v > 0 {
		cfg.Engine.MaxBreadth = v
	}
	if v, _ := cmd.Flags().GetFloat64("min-confidence"); v >= 0 {
		cfg.Engine.MinConfidence = v
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Engine.Concurrency = v
	}
}

// driverConfig converts the loaded config plus scenario overrides into the
// driver's config.
func driverConfig(cfg *config.Config, sc *scenario.Scenario) driver.Config {
	dc := driver.Config{
		Budget: driver.Budget{
			MaxDepth:    cfg.Engine.MaxDepth,
			MaxNodes:    cfg.Engine.MaxNodes,
			MaxBreadth:  cfg.Engine.MaxBreadth,
			MaxDuration: cfg.Engine.MaxDuration,
		},
		MinConfidence: cfg.Engine.MinConfidence,
		Concurrency:   cfg.Engine.Concurrency,
		Scoring:       cfg.ScoringConfig(),
		Constraints:   sc.Constraints(),
		TopOutcomes:   5,
	}
	if sc.Budget.MaxDepth > 0 {
		dc.Budget.MaxDepth = sc.Budget.MaxDepth
	}
	if sc.Budget.MaxNodes > 0 {
		dc.Budget.MaxNodes = sc.Budget.MaxNodes
	}
	if sc.Budget.MaxBreadth > 0 {
		dc.Budget.MaxBreadth = sc.Budget.MaxBreadth
	}
	if sc.Budget.MinConfidence > 0 {
		dc.MinConfidence = sc.Budget.MinConfidence
	}
	return dc
}

func printSummary(cmd *cobra.Command, name string, s tree.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scenario: %s\n", name)
	fmt.Fprintf(out, "Nodes: %d (pruned %d, terminal %d, unstable %d)\n",
		s.TotalNodes, s.PrunedNodes, s.TerminalNodes, s.UnstableNodes)
	fmt.Fprintf(out, "Depth reached: %d\n", s.MaxDepth)
	if s.NotExplored > 0 {
		fmt.Fprintf(out, "Not explored (breadth cap): %d\n", s.NotExplored)
	}
	if s.BudgetExceeded {
		fmt.Fprintln(out, "Budget exceeded: run stopped early")
	}
	fmt.Fprintf(out, "Mean confidence: %.3f\n", s.MeanConfidence)
	fmt.Fprintf(out, "Elapsed: %s\n", s.Elapsed)

	if len(s.TopOutcomes) > 0 {
		fmt.Fprintln(out, "\nTop outcomes:")
		for i, o := range s.TopOutcomes {
			path := strings.Join(o.Actions, " -> ")
			if path == "" {
				path = "(root)"
			}
			fmt.Fprintf(out, "  %d. %.3f  %s\n", i+1, o.Confidence, path)
		}
	}
}
