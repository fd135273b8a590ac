// Package scoring computes branch confidence. A child branch can never be
// more plausible than the chain of events that led to it, so every score is
// clamped to its parent's confidence; non-finite intermediates are clamped
// too and flagged rather than propagated.
package scoring

import (
	"fmt"
	"math"

	"github.com/diegorhoger/prospect/internal/constraint"
	"github.com/diegorhoger/prospect/internal/match"
	"github.com/diegorhoger/prospect/internal/state"
)

// Aggregation selects how the member rule confidences of an action-set are
// combined into one factor.
type Aggregation string

const (
	// AggregationProduct multiplies member confidences. Larger sets score
	// lower, which biases the tree toward small, certain steps.
	AggregationProduct Aggregation = "product"
	// AggregationGeometricMean takes the nth root of the product, so set
	// size does not penalize the score.
	AggregationGeometricMean Aggregation = "geometric-mean"
)

// Config holds the scoring tunables.
type Config struct {
	// DecayLambda is the per-depth multiplier applied to every branch.
	// Must sit in (0, 1]; deeper projections are inherently less certain.
	DecayLambda float64 `json:"decay_lambda" yaml:"decay_lambda"`

	// Aggregation combines the action-set's rule confidences.
	Aggregation Aggregation `json:"aggregation" yaml:"aggregation"`

	// SeekBonus is added per matched seek predicate, scaled by its weight.
	SeekBonus float64 `json:"seek_bonus" yaml:"seek_bonus"`

	// AvoidPenalty is subtracted per matched avoid predicate, scaled by
	// its weight.
	AvoidPenalty float64 `json:"avoid_penalty" yaml:"avoid_penalty"`
}

// DefaultConfig returns the scoring defaults.
func DefaultConfig() Config {
	return Config{
		DecayLambda:  0.95,
		Aggregation:  AggregationProduct,
		SeekBonus:    0.05,
		AvoidPenalty: 0.10,
	}
}

// Validate checks the config is usable.
func (c Config) Validate() error {
	if c.DecayLambda <= 0 || c.DecayLambda > 1 {
		return fmt.Errorf("decay lambda %g outside (0, 1]", c.DecayLambda)
	}
	switch c.Aggregation {
	case AggregationProduct, AggregationGeometricMean:
	default:
		return fmt.Errorf("unknown aggregation %q", c.Aggregation)
	}
	if c.SeekBonus < 0 {
		return fmt.Errorf("seek bonus %g must be non-negative", c.SeekBonus)
	}
	if c.AvoidPenalty < 0 {
		return fmt.Errorf("avoid penalty %g must be non-negative", c.AvoidPenalty)
	}
	return nil
}

// Result is one scored branch.
type Result struct {
	// Confidence is the final branch confidence, always finite and never
	// above the parent's confidence.
	Confidence float64

	// Unstable is set when a non-finite intermediate had to be clamped.
	Unstable bool

	// Notes records what was clamped or bounded, for the decision trace.
	Notes []string
}

// Scorer scores candidate branches against a constraint spec.
type Scorer struct {
	cfg  Config
	spec constraint.Spec
}

// NewScorer builds a scorer. The spec may be empty, in which case the
// constraint factor is always 1.
func NewScorer(cfg Config, spec constraint.Spec) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, spec: spec}, nil
}

// Decay returns lambda raised to depth.
func Decay(lambda float64, depth int) float64 {
	return math.Pow(lambda, float64(depth))
}

// Score computes the confidence of the branch reached from a parent with the
// given confidence by applying set, landing on child.
//
//	confidence = parent * aggregate(set) * lambda * constraintFactor(child)
//
// clamped to [0, parent]. The parent confidence already carries the decay of
// every earlier transition, so one decay step is applied per call; across a
// whole branch this compounds to Decay(lambda, depth). Any NaN or Inf
// intermediate is treated as zero contribution, the result is clamped, and
// Unstable is set.
func (s *Scorer) Score(parentConfidence float64, set match.ActionSet, child *state.Graph) Result {
	var res Result

	parent := parentConfidence
	if !isFinite(parent) {
		res.Unstable = true
		res.Notes = append(res.Notes, fmt.Sprintf("parent confidence %g is numerically-unstable, clamped to 0", parent))
		parent = 0
	}

	agg := s.aggregate(set)
	if !isFinite(agg) {
		res.Unstable = true
		res.Notes = append(res.Notes, fmt.Sprintf("aggregate of %s is numerically-unstable, clamped to 0", set.Signature()))
		agg = 0
	}

	factor := s.constraintFactor(child, &res)
	raw := parent * agg * s.cfg.DecayLambda * factor
	if !isFinite(raw) {
		res.Unstable = true
		res.Notes = append(res.Notes, "score is numerically-unstable, clamped to 0")
		raw = 0
	}

	switch {
	case raw < 0:
		res.Notes = append(res.Notes, "score bounded below at 0")
		raw = 0
	case raw > parent:
		res.Notes = append(res.Notes, fmt.Sprintf("score bounded above at parent confidence %g", parent))
		raw = parent
	}
	res.Confidence = raw
	return res
}

// aggregate combines the set's rule confidences per the configured mode.
func (s *Scorer) aggregate(set match.ActionSet) float64 {
	if len(set.Rules) == 0 {
		return 1
	}
	product := set.Confidence()
	if s.cfg.Aggregation == AggregationGeometricMean {
		return math.Pow(product, 1/float64(len(set.Rules)))
	}
	return product
}

// constraintFactor rewards matched seek predicates and penalizes matched
// avoid predicates. It may exceed 1 when seek predicates match; the final
// score is still bounded by the parent clamp in Score.
func (s *Scorer) constraintFactor(child *state.Graph, res *Result) float64 {
	if s.spec.Empty() || child == nil {
		return 1
	}
	factor := 1.0
	for _, p := range s.spec.MatchedSeek(child) {
		factor += s.cfg.SeekBonus * p.EffectiveWeight()
	}
	for _, p := range s.spec.MatchedAvoid(child) {
		factor -= s.cfg.AvoidPenalty * p.EffectiveWeight()
	}
	if !isFinite(factor) {
		res.Unstable = true
		res.Notes = append(res.Notes, "constraint factor is numerically-unstable, clamped to 1")
		return 1
	}
	if factor < 0 {
		return 0
	}
	return factor
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
