package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate scenario and rule pack files",
		Long: `Validate scenario and rule pack files without running a simulation.

Checks scenarios for dangling relationships, unknown property kinds, and
malformed constraints; rule packs for duplicate IDs, invalid effects, and
broken temporal references.

Examples:
  prospect validate --scenario harbor.yaml
  prospect validate --rules weather.yaml
  prospect validate --scenario harbor.yaml --rules weather.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			scenarioPath, _ := cmd.Flags().GetString("scenario")
			rulesPath, _ := cmd.Flags().GetString("rules")

			if scenarioPath == "" && rulesPath == "" {
				return fmt.Errorf("nothing to validate: pass --scenario and/or --rules")
			}

			type report struct {
				File  string `json:"file"`
				Kind  string `json:"kind"`
				Valid bool   `json:"valid"`
				Error string `json:"error,omitempty"`
			}
			var reports []report
			failed := false

			if scenarioPath != "" {
				r := report{File: scenarioPath, Kind: "scenario", Valid: true}
				if _, err := scenario.Load(scenarioPath); err != nil {
					r.Valid = false
					r.Error = err.Error()
					failed = true
				}
				reports = append(reports, r)
			}
			if rulesPath != "" {
				r := report{File: rulesPath, Kind: "rule pack", Valid: true}
				if _, err := rules.LoadPack(rulesPath); err != nil {
					r.Valid = false
					r.Error = err.Error()
					failed = true
				}
				reports = append(reports, r)
			}

			if jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					if r.Valid {
						fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s)\n", r.File, r.Kind)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s (%s)\n  %s\n", r.File, r.Kind, r.Error)
					}
				}
			}
			if failed {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}

	cmd.Flags().String("scenario", "", "Scenario YAML file to validate")
	cmd.Flags().String("rules", "", "Rule pack YAML file to validate")
	return cmd
}
