package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// RankingParameters weight the two ranking components. They should sum to
// one but are used as-is either way.
type RankingParameters struct {
	ImportanceWeight float64 `koanf:"importance_weight"`
	RecencyWeight    float64 `koanf:"recency_weight"`
}

// RecencyDecay parameterises the exponential time decay of the recency score.
type RecencyDecay struct {
	HalfLifeHours float64 `koanf:"half_life_hours"`
	MaxScore      float64 `koanf:"max_score"`
}

// RankerConfig is the ranker's scoring configuration, loaded from YAML.
type RankerConfig struct {
	RankingParameters        RankingParameters  `koanf:"ranking_parameters"`
	CategoryImportanceScores map[string]float64 `koanf:"category_importance_scores"`
	RecencyDecay             RecencyDecay       `koanf:"recency_decay"`
}

// LoadRankerConfig reads and validates the ranker scoring file. The "Other"
// category must be present because it is the fallback for every unmapped
// category.
func LoadRankerConfig(path string) (*RankerConfig, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load ranker config %s: %w", path, err)
	}
	var cfg RankerConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal ranker config %s: %w", path, err)
	}
	if cfg.RankingParameters.ImportanceWeight == 0 && cfg.RankingParameters.RecencyWeight == 0 {
		return nil, fmt.Errorf("ranker config %s: ranking_parameters missing", path)
	}
	if _, ok := cfg.CategoryImportanceScores["Other"]; !ok {
		return nil, fmt.Errorf("ranker config %s: category_importance_scores must define Other", path)
	}
	if cfg.RecencyDecay.HalfLifeHours <= 0 {
		return nil, fmt.Errorf("ranker config %s: recency_decay.half_life_hours must be positive", path)
	}
	return &cfg, nil
}

// DetectorConfig declares one anomaly detector and its parameters.
type DetectorConfig struct {
	Type       string         `koanf:"type"`
	Parameters map[string]any `koanf:"parameters"`
}

// InspectorConfig is the inspector's detector list, loaded from YAML.
type InspectorConfig struct {
	AnomalyDetectors []DetectorConfig `koanf:"anomaly_detectors"`
}

// LoadInspectorConfig reads the inspector detector file. An empty detector
// list is valid; the inspector then passes everything through untouched.
func LoadInspectorConfig(path string) (*InspectorConfig, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load inspector config %s: %w", path, err)
	}
	var cfg InspectorConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal inspector config %s: %w", path, err)
	}
	for i, d := range cfg.AnomalyDetectors {
		if d.Type == "" {
			return nil, fmt.Errorf("inspector config %s: detector %d has no type", path, i)
		}
	}
	return &cfg, nil
}

// FilteringRules hold the LLM prompt templates used by the filter.
type FilteringRules struct {
	RelevancePrompt string `koanf:"relevance_prompt"`
	CategoryPrompt  string `koanf:"category_prompt"`
}

// FilterConfig is the filter's prompt configuration, loaded from YAML.
type FilterConfig struct {
	FilteringRules FilteringRules `koanf:"filtering_rules"`
}

// LoadFilterConfig reads the filter prompt file.
func LoadFilterConfig(path string) (*FilterConfig, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load filter config %s: %w", path, err)
	}
	var cfg FilterConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal filter config %s: %w", path, err)
	}
	if cfg.FilteringRules.RelevancePrompt == "" || cfg.FilteringRules.CategoryPrompt == "" {
		return nil, fmt.Errorf("filter config %s: both prompts are required", path)
	}
	return &cfg, nil
}
