// Package config provides unified configuration loading for prospect.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/diegorhoger/prospect/internal/scoring"
)

// Config contains all prospect configuration settings.
type Config struct {
	// Engine contains the simulation budgets and parallelism settings.
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Scoring contains the confidence model tunables.
	Scoring ScoringConfig `json:"scoring" yaml:"scoring"`

	// Storage contains rule and trace persistence settings.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging contains settings for operational and trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// EngineConfig bounds a simulation run.
type EngineConfig struct {
	// MaxDepth is how many levels the tree may expand. 0 means no limit.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// MaxNodes caps the total number of nodes a run may create.
	// 0 means no limit.
	MaxNodes int `json:"max_nodes" yaml:"max_nodes"`

	// MaxBreadth caps how many action-sets a single node may expand into.
	// Sets beyond the cap are counted, not explored.
	MaxBreadth int `json:"max_breadth" yaml:"max_breadth"`

	// MinConfidence is the pruning floor: branches scoring below it are
	// cut before expansion.
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`

	// MaxDuration caps wall-clock time for a run. 0 means no limit.
	MaxDuration time.Duration `json:"max_duration,omitempty" yaml:"max_duration,omitempty"`

	// Concurrency is the number of expansion workers per level.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// ScoringConfig mirrors the confidence model tunables.
type ScoringConfig struct {
	// DecayLambda is the per-depth confidence multiplier, in (0, 1].
	DecayLambda float64 `json:"decay_lambda" yaml:"decay_lambda"`

	// Aggregation combines an action-set's rule confidences:
	// "product" (default) or "geometric-mean".
	Aggregation string `json:"aggregation" yaml:"aggregation"`

	// SeekBonus is added per matched seek constraint, scaled by weight.
	SeekBonus float64 `json:"seek_bonus" yaml:"seek_bonus"`

	// AvoidPenalty is subtracted per matched avoid constraint, scaled by
	// weight.
	AvoidPenalty float64 `json:"avoid_penalty" yaml:"avoid_penalty"`
}

// StorageConfig locates the on-disk state.
type StorageConfig struct {
	// Dir is the directory holding the rule database and trace files.
	// Defaults to .prospect under the working directory.
	Dir string `json:"dir" yaml:"dir"`
}

// LoggingConfig configures prospect's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables branch tracing to <storage.dir>/trace.jsonl.
	// "trace" additionally includes per-branch scoring detail.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	sc := scoring.DefaultConfig()
	return &Config{
		Engine: EngineConfig{
			MaxDepth:      5,
			MaxNodes:      500,
			MaxBreadth:    4,
			MinConfidence: 0.05,
			MaxDuration:   30 * time.Second,
			Concurrency:   4,
		},
		Scoring: ScoringConfig{
			DecayLambda:  sc.DecayLambda,
			Aggregation:  string(sc.Aggregation),
			SeekBonus:    sc.SeekBonus,
			AvoidPenalty: sc.AvoidPenalty,
		},
		Storage: StorageConfig{
			Dir: ".prospect",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.prospect/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	// Try to load from default config file
	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, ".prospect", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Engine.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be non-negative, got %d", c.Engine.MaxDepth)
	}
	if c.Engine.MaxNodes < 0 {
		return fmt.Errorf("max_nodes must be non-negative, got %d", c.Engine.MaxNodes)
	}
	if c.Engine.MaxBreadth < 1 {
		return fmt.Errorf("max_breadth must be at least 1, got %d", c.Engine.MaxBreadth)
	}
	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %f", c.Engine.MinConfidence)
	}
	if c.Engine.MaxDuration < 0 {
		return fmt.Errorf("max_duration must be non-negative, got %v", c.Engine.MaxDuration)
	}
	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Engine.Concurrency)
	}

	if err := c.ScoringConfig().Validate(); err != nil {
		return err
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// ScoringConfig converts the loaded settings into the scorer's config type.
func (c *Config) ScoringConfig() scoring.Config {
	return scoring.Config{
		DecayLambda:  c.Scoring.DecayLambda,
		Aggregation:  scoring.Aggregation(c.Scoring.Aggregation),
		SeekBonus:    c.Scoring.SeekBonus,
		AvoidPenalty: c.Scoring.AvoidPenalty,
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PROSPECT_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.MaxDepth = n
		}
	}
	if v := os.Getenv("PROSPECT_MAX_NODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.MaxNodes = n
		}
	}
	if v := os.Getenv("PROSPECT_MAX_BREADTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.MaxBreadth = n
		}
	}
	if v := os.Getenv("PROSPECT_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Engine.MinConfidence = f
		}
	}
	if v := os.Getenv("PROSPECT_MAX_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Engine.MaxDuration = d
		}
	}
	if v := os.Getenv("PROSPECT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.Concurrency = n
		}
	}

	if v := os.Getenv("PROSPECT_DECAY_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Scoring.DecayLambda = f
		}
	}
	if v := os.Getenv("PROSPECT_AGGREGATION"); v != "" {
		config.Scoring.Aggregation = v
	}

	if v := os.Getenv("PROSPECT_DIR"); v != "" {
		config.Storage.Dir = v
	}

	if v := os.Getenv("PROSPECT_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
