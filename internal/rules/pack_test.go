package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const samplePack = `
name: weather
rules:
  - id: r-rain
    name: sunny turns rainy
    confidence: 0.6
    preconditions:
      - kind: property-equals
        entity: weather
        property: sky
        value: sunny
    effects:
      - kind: set-property
        entity: weather
        property: sky
        value: rainy
        property_kind: status
  - id: r-stay
    name: sunny stays sunny
    confidence: 0.9
    before: [r-rain]
    preconditions:
      - kind: property-equals
        entity: weather
        property: sky
        value: sunny
    effects:
      - kind: set-property
        entity: weather
        property: sky
        value: sunny
        property_kind: status
`

func TestParsePack(t *testing.T) {
	pack, err := ParsePack([]byte(samplePack))
	if err != nil {
		t.Fatalf("ParsePack: %v", err)
	}
	if pack.Name != "weather" {
		t.Errorf("pack name = %q, want weather", pack.Name)
	}
	if len(pack.Rules) != 2 {
		t.Fatalf("rule count = %d, want 2", len(pack.Rules))
	}

	r := pack.Rules[0]
	if r.ID != "r-rain" || r.Confidence != 0.6 {
		t.Errorf("rule[0] = %+v", r)
	}
	if len(r.Effects) != 1 || r.Effects[0].Kind != EffectSetProperty {
		t.Errorf("rule[0] effects = %+v", r.Effects)
	}
	if got := pack.Rules[1].Before; len(got) != 1 || got[0] != "r-rain" {
		t.Errorf("rule[1] before = %v, want [r-rain]", got)
	}
}

func TestParsePackErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"not yaml", "{{", "failed to parse"},
		{"empty pack", "rules: []", "no rules"},
		{
			"duplicate id",
			`rules:
  - {id: r1, confidence: 0.5, effects: [{kind: remove-entity, entity: a}]}
  - {id: r1, confidence: 0.5, effects: [{kind: remove-entity, entity: a}]}`,
			"duplicate rule ID",
		},
		{
			"unknown temporal reference",
			`rules:
  - {id: r1, confidence: 0.5, before: [r9], effects: [{kind: remove-entity, entity: a}]}`,
			"unknown rule",
		},
		{
			"self temporal reference",
			`rules:
  - {id: r1, confidence: 0.5, before: [r1], effects: [{kind: remove-entity, entity: a}]}`,
			"itself",
		},
		{
			"invalid rule",
			`rules:
  - {id: r1, confidence: 1.5, effects: [{kind: remove-entity, entity: a}]}`,
			"confidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePack([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadPack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(samplePack), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	pack, err := LoadPack(path)
	if err != nil {
		t.Fatalf("LoadPack: %v", err)
	}

	repo, err := pack.Repository()
	if err != nil {
		t.Fatalf("Repository: %v", err)
	}
	if repo.Len() != 2 {
		t.Errorf("repository length = %d, want 2", repo.Len())
	}
}

func TestLoadPackMissingFile(t *testing.T) {
	if _, err := LoadPack(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
