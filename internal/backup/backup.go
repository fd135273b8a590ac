// Package backup provides archive and restore functionality for the rule
// database.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/diegorhoger/prospect/internal/rules"
)

// Archive is the payload of one backup file: a full snapshot of the rule
// repository.
type Archive struct {
	Version   int          `json:"version"`
	CreatedAt time.Time    `json:"created_at"`
	Rules     []rules.Rule `json:"rules"`
}

// Store is the repository surface backup needs: the read snapshot for
// archiving and the write half for restoring.
type Store interface {
	Snapshot(ctx context.Context) ([]rules.Rule, error)
	Put(ctx context.Context, r rules.Rule) error
	Delete(ctx context.Context, id string) error
}

// BackupDir returns the backup directory under the project root
// (<root>/.prospect/backups).
func BackupDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".prospect", "backups")
}

// Backup snapshots every rule in the store into a checksummed archive file
// at outputPath. The parent directory is created if needed.
func Backup(ctx context.Context, store Store, outputPath string) (*Archive, error) {
	rs, err := store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot rules: %w", err)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })

	archive := &Archive{
		Version:   FormatV2,
		CreatedAt: time.Now().UTC(),
		Rules:     rs,
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := WriteV2(outputPath, archive); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}
	return archive, nil
}

// RestoreMode controls how restore handles rules already in the store.
type RestoreMode string

const (
	// RestoreMerge skips rules whose ID already exists (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace clears the store before restoring.
	RestoreReplace RestoreMode = "replace"
)

// RestoreResult contains statistics about a restore operation.
type RestoreResult struct {
	RulesRestored int `json:"rules_restored"`
	RulesSkipped  int `json:"rules_skipped"`
	RulesRemoved  int `json:"rules_removed"`
}

// Restore imports rules from an archive file into the store. Every archived
// rule is validated before any write happens, so a corrupt archive never
// leaves the store half-restored in replace mode.
func Restore(ctx context.Context, store Store, inputPath string, mode RestoreMode) (*RestoreResult, error) {
	archive, err := Read(inputPath)
	if err != nil {
		return nil, err
	}

	for _, r := range archive.Rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("archive contains invalid rule: %w", err)
		}
	}

	existing, err := store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot existing rules: %w", err)
	}
	existingIDs := make(map[string]bool, len(existing))
	for _, r := range existing {
		existingIDs[r.ID] = true
	}

	result := &RestoreResult{}

	if mode == RestoreReplace {
		for _, r := range existing {
			if err := store.Delete(ctx, r.ID); err != nil {
				return nil, fmt.Errorf("failed to clear rule %s: %w", r.ID, err)
			}
			result.RulesRemoved++
		}
		existingIDs = map[string]bool{}
	}

	for _, r := range archive.Rules {
		if existingIDs[r.ID] {
			result.RulesSkipped++
			continue
		}
		if err := store.Put(ctx, r); err != nil {
			return nil, fmt.Errorf("failed to restore rule %s: %w", r.ID, err)
		}
		result.RulesRestored++
	}

	return result, nil
}

// GenerateBackupPath creates a timestamped backup filename in the given
// directory.
func GenerateBackupPath(dir string) string {
	ts := time.Now().UTC().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("prospect-backup-%s.json", ts))
}

// isBackupFile reports whether a filename looks like one of ours.
func isBackupFile(name string) bool {
	return strings.HasPrefix(name, "prospect-backup-") && filepath.Ext(name) == ".json"
}
