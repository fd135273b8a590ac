package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// schema creates the rules table. Preconditions, effects, and temporal tags
// are stored as JSON columns; the engine only ever reads them back whole.
const schema = `
CREATE TABLE IF NOT EXISTS rules (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL DEFAULT '',
    confidence    REAL NOT NULL,
    preconditions TEXT NOT NULL DEFAULT '[]',
    effects       TEXT NOT NULL DEFAULT '[]',
    before_rules  TEXT NOT NULL DEFAULT '[]'
);
`

// SQLiteRepository implements Repository backed by a SQLite database at
// <projectRoot>/.prospect/rules.db. The engine treats it as read-only; Put
// and Delete exist for the import tooling.
type SQLiteRepository struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRepository opens (creating if needed) the rule database rooted at
// projectRoot.
func NewSQLiteRepository(projectRoot string) (*SQLiteRepository, error) {
	dir := filepath.Join(projectRoot, ".prospect")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .prospect directory: %w", err)
	}

	dbPath := filepath.Join(dir, "rules.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open rule database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRepository{db: db, dbPath: dbPath}, nil
}

// Put validates and upserts a rule.
func (s *SQLiteRepository) Put(ctx context.Context, r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}

	preconditions, err := json.Marshal(r.Preconditions)
	if err != nil {
		return fmt.Errorf("failed to encode preconditions: %w", err)
	}
	effects, err := json.Marshal(r.Effects)
	if err != nil {
		return fmt.Errorf("failed to encode effects: %w", err)
	}
	before, err := json.Marshal(r.Before)
	if err != nil {
		return fmt.Errorf("failed to encode temporal tags: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, name, confidence, preconditions, effects, before_rules)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			confidence = excluded.confidence,
			preconditions = excluded.preconditions,
			effects = excluded.effects,
			before_rules = excluded.before_rules
	`, r.ID, r.Name, r.Confidence, string(preconditions), string(effects), string(before))
	if err != nil {
		return fmt.Errorf("failed to store rule %s: %w", r.ID, err)
	}
	return nil
}

// Snapshot returns every stored rule sorted by ID.
func (s *SQLiteRepository) Snapshot(ctx context.Context) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, confidence, preconditions, effects, before_rules
		FROM rules ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the rule with the given ID, or nil if absent.
func (s *SQLiteRepository) Get(ctx context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, confidence, preconditions, effects, before_rules
		FROM rules WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanRule(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes a rule by ID. Deleting an absent rule is not an error.
func (s *SQLiteRepository) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

var _ Repository = (*SQLiteRepository)(nil)

// scanRule decodes one row into a Rule.
func scanRule(rows *sql.Rows) (Rule, error) {
	var r Rule
	var preconditions, effects, before string
	if err := rows.Scan(&r.ID, &r.Name, &r.Confidence, &preconditions, &effects, &before); err != nil {
		return Rule{}, fmt.Errorf("failed to scan rule: %w", err)
	}
	if err := json.Unmarshal([]byte(preconditions), &r.Preconditions); err != nil {
		return Rule{}, fmt.Errorf("rule %s: corrupt preconditions: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(effects), &r.Effects); err != nil {
		return Rule{}, fmt.Errorf("rule %s: corrupt effects: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(before), &r.Before); err != nil {
		return Rule{}, fmt.Errorf("rule %s: corrupt temporal tags: %w", r.ID, err)
	}
	return r, nil
}
