package scoring

import (
	"math"
	"strings"
	"testing"

	"github.com/diegorhoger/prospect/internal/constraint"
	"github.com/diegorhoger/prospect/internal/match"
	"github.com/diegorhoger/prospect/internal/rules"
	"github.com/diegorhoger/prospect/internal/state"
)

func scoringGraph(t *testing.T) *state.Graph {
	t.Helper()
	g, err := state.NewBuilder().
		AddEntity("alice", "person",
			state.Property{Name: "mood", Value: "angry", Kind: state.KindEmotional},
		).
		Build()
	if err != nil {
		t.Fatalf("scoringGraph: %v", err)
	}
	return g
}

func singleton(id string, confidence float64) match.ActionSet {
	return match.NewActionSet([]rules.Rule{{
		ID:         id,
		Confidence: confidence,
		Effects: []rules.Effect{{
			Kind: rules.EffectSetProperty, Entity: "alice", Property: "mood",
			Value: "calm", PropertyKind: state.KindEmotional,
		}},
	}})
}

func newTestScorer(t *testing.T, cfg Config, spec constraint.Spec) *Scorer {
	t.Helper()
	s, err := NewScorer(cfg, spec)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"zero lambda", func(c *Config) { c.DecayLambda = 0 }, true},
		{"lambda above one", func(c *Config) { c.DecayLambda = 1.1 }, true},
		{"geometric mean", func(c *Config) { c.Aggregation = AggregationGeometricMean }, false},
		{"unknown aggregation", func(c *Config) { c.Aggregation = "median" }, true},
		{"negative seek bonus", func(c *Config) { c.SeekBonus = -0.1 }, true},
		{"negative avoid penalty", func(c *Config) { c.AvoidPenalty = -0.1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScoreProduct(t *testing.T) {
	s := newTestScorer(t, DefaultConfig(), constraint.Spec{})
	g := scoringGraph(t)

	res := s.Score(1.0, singleton("r1", 0.6), g)
	want := 0.6 * 0.95
	if math.Abs(res.Confidence-want) > 1e-12 {
		t.Errorf("Confidence = %g, want %g", res.Confidence, want)
	}
	if res.Unstable {
		t.Error("score flagged unstable without cause")
	}
}

func TestScoreNeverExceedsParent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecayLambda = 1.0
	s := newTestScorer(t, cfg, constraint.Spec{})
	g := scoringGraph(t)

	parents := []float64{1.0, 0.7, 0.3, 0.05, 0}
	for _, parent := range parents {
		res := s.Score(parent, singleton("r1", 1.0), g)
		if res.Confidence > parent {
			t.Errorf("parent %g: child confidence %g exceeds parent", parent, res.Confidence)
		}
	}
}

func TestScoreGeometricMean(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Aggregation = AggregationGeometricMean
	cfg.DecayLambda = 1.0
	s := newTestScorer(t, cfg, constraint.Spec{})
	g := scoringGraph(t)

	set := match.NewActionSet([]rules.Rule{
		{ID: "r1", Confidence: 0.4, Effects: []rules.Effect{{Kind: rules.EffectAddEntity, Entity: "a"}}},
		{ID: "r2", Confidence: 0.9, Effects: []rules.Effect{{Kind: rules.EffectAddEntity, Entity: "b"}}},
	})
	res := s.Score(1.0, set, g)
	want := math.Sqrt(0.4 * 0.9)
	if math.Abs(res.Confidence-want) > 1e-12 {
		t.Errorf("Confidence = %g, want %g", res.Confidence, want)
	}
}

func TestScoreNonFiniteClamped(t *testing.T) {
	s := newTestScorer(t, DefaultConfig(), constraint.Spec{})
	g := scoringGraph(t)

	tests := []struct {
		name   string
		parent float64
		conf   float64
	}{
		{"nan parent", math.NaN(), 0.5},
		{"inf parent", math.Inf(1), 0.5},
		{"nan rule confidence", 1.0, math.NaN()},
		{"inf rule confidence", 1.0, math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Score(tt.parent, singleton("r1", tt.conf), g)
			if !res.Unstable {
				t.Error("expected unstable flag")
			}
			if math.IsNaN(res.Confidence) || math.IsInf(res.Confidence, 0) {
				t.Errorf("Confidence = %g, want finite", res.Confidence)
			}
			if res.Confidence != 0 {
				t.Errorf("Confidence = %g, want 0 after clamp", res.Confidence)
			}
			found := false
			for _, n := range res.Notes {
				if strings.Contains(n, "numerically-unstable") {
					found = true
				}
			}
			if !found {
				t.Errorf("Notes = %v, want a numerically-unstable note", res.Notes)
			}
		})
	}
}

func TestScoreConstraintFactor(t *testing.T) {
	g := scoringGraph(t)
	angry := rules.Condition{
		Kind: rules.ConditionPropertyEquals, Entity: "alice", Property: "mood", Value: "angry",
	}

	cfg := DefaultConfig()
	cfg.DecayLambda = 1.0

	t.Run("avoid penalizes", func(t *testing.T) {
		spec := constraint.Spec{Avoid: []constraint.Predicate{{ID: "no-anger", Condition: angry, Weight: 1.0}}}
		s := newTestScorer(t, cfg, spec)
		res := s.Score(1.0, singleton("r1", 1.0), g)
		want := 1.0 - cfg.AvoidPenalty
		if math.Abs(res.Confidence-want) > 1e-12 {
			t.Errorf("Confidence = %g, want %g", res.Confidence, want)
		}
	})

	t.Run("seek bonus rewards matched branch", func(t *testing.T) {
		spec := constraint.Spec{Seek: []constraint.Predicate{{ID: "anger", Condition: angry, Weight: 1.0}}}
		s := newTestScorer(t, cfg, spec)
		res := s.Score(1.0, singleton("r1", 0.5), g)
		want := 0.5 * (1.0 + cfg.SeekBonus)
		if math.Abs(res.Confidence-want) > 1e-12 {
			t.Errorf("Confidence = %g, want %g", res.Confidence, want)
		}
	})

	t.Run("seek bonus still clamped to parent", func(t *testing.T) {
		spec := constraint.Spec{Seek: []constraint.Predicate{{ID: "anger", Condition: angry, Weight: 1.0}}}
		s := newTestScorer(t, cfg, spec)
		res := s.Score(0.8, singleton("r1", 1.0), g)
		if res.Confidence > 0.8 {
			t.Errorf("Confidence = %g exceeds parent 0.8", res.Confidence)
		}
	})

	t.Run("unmatched predicates are neutral", func(t *testing.T) {
		calm := rules.Condition{
			Kind: rules.ConditionPropertyEquals, Entity: "alice", Property: "mood", Value: "calm",
		}
		spec := constraint.Spec{Avoid: []constraint.Predicate{{ID: "no-calm", Condition: calm, Weight: 1.0}}}
		s := newTestScorer(t, cfg, spec)
		res := s.Score(1.0, singleton("r1", 0.5), g)
		if math.Abs(res.Confidence-0.5) > 1e-12 {
			t.Errorf("Confidence = %g, want 0.5", res.Confidence)
		}
	})
}

func TestDecay(t *testing.T) {
	if got := Decay(0.95, 0); got != 1 {
		t.Errorf("Decay depth 0 = %g, want 1", got)
	}
	if got := Decay(0.95, 1); got != 0.95 {
		t.Errorf("Decay depth 1 = %g, want 0.95", got)
	}
	if got, want := Decay(0.5, 3), 0.125; math.Abs(got-want) > 1e-12 {
		t.Errorf("Decay = %g, want %g", got, want)
	}
}

func TestEmptySetAggregatesToOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecayLambda = 1.0
	s := newTestScorer(t, cfg, constraint.Spec{})
	res := s.Score(0.9, match.ActionSet{}, scoringGraph(t))
	if math.Abs(res.Confidence-0.9) > 1e-12 {
		t.Errorf("Confidence = %g, want 0.9", res.Confidence)
	}
}
