package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pack is the on-disk YAML form of a rule collection.
type Pack struct {
	// Name is an optional label for the pack, used only in logs.
	Name string `yaml:"name,omitempty"`

	Rules []Rule `yaml:"rules"`
}

// ParsePack decodes and validates a YAML rule pack. Beyond per-rule
// validation, it rejects duplicate IDs and temporal tags that reference
// rules outside the pack.
func ParsePack(data []byte) (*Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse rule pack: %w", err)
	}
	if len(pack.Rules) == 0 {
		return nil, fmt.Errorf("rule pack contains no rules")
	}

	ids := make(map[string]bool, len(pack.Rules))
	for _, r := range pack.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if ids[r.ID] {
			return nil, fmt.Errorf("duplicate rule ID: %s", r.ID)
		}
		ids[r.ID] = true
	}

	for _, r := range pack.Rules {
		for _, ref := range r.Before {
			if !ids[ref] {
				return nil, fmt.Errorf("rule %s: temporal tag references unknown rule %s", r.ID, ref)
			}
			if ref == r.ID {
				return nil, fmt.Errorf("rule %s: temporal tag references itself", r.ID)
			}
		}
	}

	return &pack, nil
}

// LoadPack reads and parses a rule pack file.
func LoadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule pack: %w", err)
	}
	return ParsePack(data)
}

// Repository builds an in-memory repository from the pack.
func (p *Pack) Repository() (*MemoryRepository, error) {
	return NewMemoryRepository(p.Rules...)
}
