package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diegorhoger/prospect/internal/backup"
	"github.com/diegorhoger/prospect/internal/pathutil"
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/sanitize"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the project rule database",
	}
	cmd.AddCommand(newRulesListCmd(), newRulesImportCmd(), newRulesDeleteCmd(),
		newRulesBackupCmd(), newRulesRestoreCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			repo, err := rules.NewSQLiteRepository(root)
			if err != nil {
				return err
			}
			defer repo.Close()

			rs, err := repo.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(rs)
			}
			if len(rs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rules stored. Run 'prospect rules import <pack.yaml>'.")
				return nil
			}
			for _, r := range rs {
				name := r.Name
				if name == "" {
					name = "(unnamed)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %.2f  %s\n", r.ID, r.Confidence, name)
			}
			return nil
		},
	}
}

func newRulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <pack.yaml>",
		Short: "Import a rule pack into the project rule database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			pack, err := rules.LoadPack(args[0])
			if err != nil {
				return err
			}

			repo, err := rules.NewSQLiteRepository(root)
			if err != nil {
				return err
			}
			defer repo.Close()

			for _, r := range pack.Rules {
				// Pack text is untrusted and ends up in logs and
				// exports.
				r.Name = sanitize.Text(r.Name)
				if err := repo.Put(cmd.Context(), r); err != nil {
					return fmt.Errorf("importing rule %s: %w", r.ID, err)
				}
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"pack":     pack.Name,
					"imported": len(pack.Rules),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rules from pack %q\n", len(pack.Rules), pack.Name)
			return nil
		},
	}
}

func newRulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule from the project rule database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			repo, err := rules.NewSQLiteRepository(root)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule %s\n", args[0])
			return nil
		},
	}
}

func newRulesBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the rule database to a timestamped backup file",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			out, _ := cmd.Flags().GetString("out")
			keep, _ := cmd.Flags().GetInt("keep")
			keepAge, _ := cmd.Flags().GetString("keep-age")

			dir := out
			if dir == "" {
				dir = backup.BackupDir(root)
			}
			allowed, err := pathutil.AllowedBackupDirs(root)
			if err != nil {
				return err
			}
			if out != "" {
				allowed = append(allowed, out)
			}

			path := backup.GenerateBackupPath(dir)
			if err := pathutil.ValidatePath(path, allowed); err != nil {
				return err
			}

			repo, err := rules.NewSQLiteRepository(root)
			if err != nil {
				return err
			}
			defer repo.Close()

			archive, err := backup.Backup(cmd.Context(), repo, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %d rules to %s\n", len(archive.Rules), path)

			var policies []backup.RetentionPolicy
			if keep > 0 {
				policies = append(policies, &backup.CountPolicy{MaxCount: keep})
			}
			if keepAge != "" {
				age, err := backup.ParseDuration(keepAge)
				if err != nil {
					return err
				}
				policies = append(policies, &backup.AgePolicy{MaxAge: age})
			}
			if len(policies) > 0 {
				deleted, err := backup.ApplyRetention(dir, &backup.CompositePolicy{Policies: policies})
				if err != nil {
					return err
				}
				if len(deleted) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %d old backups\n", len(deleted))
				}
			}
			return nil
		},
	}
	cmd.Flags().String("out", "", "Backup directory (default: <root>/.prospect/backups)")
	cmd.Flags().Int("keep", 0, "Keep only the N newest backups")
	cmd.Flags().String("keep-age", "", "Keep only backups newer than this age (e.g. 30d, 2w)")
	return cmd
}

func newRulesRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Restore rules from a backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			replace, _ := cmd.Flags().GetBool("replace")

			mode := backup.RestoreMerge
			if replace {
				mode = backup.RestoreReplace
			}

			repo, err := rules.NewSQLiteRepository(root)
			if err != nil {
				return err
			}
			defer repo.Close()

			result, err := backup.Restore(cmd.Context(), repo, args[0], mode)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d rules (%d skipped, %d removed)\n",
				result.RulesRestored, result.RulesSkipped, result.RulesRemoved)
			return nil
		},
	}
	cmd.Flags().Bool("replace", false, "Clear the rule database before restoring")
	return cmd
}
