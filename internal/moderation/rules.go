package moderation

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"tamgiao-hitl/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// RuleTable is the versioned, data-driven crisis-detection rule set. Keyword
// lists, weights and combination rules live here so detection can be tuned
// without code changes.
type RuleTable struct {
	Version    string                  `yaml:"version"`
	Categories map[string]CategoryRule `yaml:"categories"`
	Negation   NegationRule            `yaml:"negation"`
	Intensity  IntensifierRule         `yaml:"intensifiers"`
	Thresholds ThresholdRule           `yaml:"thresholds"`
	Combine    CombinationRule         `yaml:"combination"`
}

// CategoryRule is one weighted term list.
type CategoryRule struct {
	Weight         float64    `yaml:"weight"`
	BaseConfidence float64    `yaml:"base_confidence"`
	Terms          []TermRule `yaml:"terms"`
}

// TermRule is a single phrase. Confidence overrides the category base when set.
type TermRule struct {
	Term       string  `yaml:"term"`
	Confidence float64 `yaml:"confidence"`
}

// NegationRule controls the confidence discount applied when a negation
// marker governs a matched phrase.
type NegationRule struct {
	Markers      []string `yaml:"markers"`
	WindowTokens int      `yaml:"window_tokens"`
	Discount     float64  `yaml:"discount"`
	Floor        float64  `yaml:"floor"`
}

// IntensifierRule raises self-injury confidence when intensity terms co-occur.
type IntensifierRule struct {
	Terms []string `yaml:"terms"`
	Boost float64  `yaml:"boost"`
}

// ThresholdRule maps the numeric score onto discrete levels. Scores below
// Moderate are low; Critical and above is critical.
type ThresholdRule struct {
	Moderate float64 `yaml:"moderate"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// CombinationRule forces critical for direct intent plus a concreteness
// category, regardless of the arithmetic score.
type CombinationRule struct {
	MinIntentConfidence float64  `yaml:"min_intent_confidence"`
	WithAny             []string `yaml:"with_any"`
	ForcedScore         float64  `yaml:"forced_score"`
}

// LoadRules parses a rule table from YAML and validates it.
func LoadRules(data []byte) (*RuleTable, error) {
	var rt RuleTable
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("failed to parse rule table: %w", err)
	}
	if err := rt.validate(); err != nil {
		return nil, err
	}
	return &rt, nil
}

// LoadRulesFromFile reads a rule table override from disk. An empty path
// returns the embedded default table.
func LoadRulesFromFile(path string) (*RuleTable, error) {
	if path == "" {
		return LoadRules(defaultRulesYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule table %s: %w", path, err)
	}
	return LoadRules(data)
}

func (rt *RuleTable) validate() error {
	if rt.Version == "" {
		return fmt.Errorf("rule table version is required")
	}
	if len(rt.Categories) == 0 {
		return fmt.Errorf("rule table has no categories")
	}
	for name, cat := range rt.Categories {
		if cat.Weight <= 0 {
			return fmt.Errorf("category %s: weight must be positive", name)
		}
		if cat.BaseConfidence <= 0 || cat.BaseConfidence > 1 {
			return fmt.Errorf("category %s: base_confidence must be in (0,1]", name)
		}
		for _, t := range cat.Terms {
			if strings.TrimSpace(t.Term) == "" {
				return fmt.Errorf("category %s: empty term", name)
			}
			if t.Confidence < 0 || t.Confidence > 1 {
				return fmt.Errorf("category %s: term %q confidence out of range", name, t.Term)
			}
		}
	}
	if rt.Negation.Discount <= 0 || rt.Negation.Discount >= 1 {
		return fmt.Errorf("negation discount must be in (0,1)")
	}
	if rt.Negation.WindowTokens <= 0 {
		return fmt.Errorf("negation window_tokens must be positive")
	}
	if !(rt.Thresholds.Moderate < rt.Thresholds.High && rt.Thresholds.High < rt.Thresholds.Critical) {
		return fmt.Errorf("thresholds must be strictly increasing")
	}
	return nil
}

// CategoryNames returns the configured categories in a stable order.
func (rt *RuleTable) CategoryNames() []models.SignalCategory {
	names := make([]string, 0, len(rt.Categories))
	for name := range rt.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]models.SignalCategory, len(names))
	for i, n := range names {
		out[i] = models.SignalCategory(n)
	}
	return out
}

// LevelFor maps a clamped score onto a risk level.
func (rt *RuleTable) LevelFor(score float64) models.RiskLevel {
	switch {
	case score >= rt.Thresholds.Critical:
		return models.RiskCritical
	case score >= rt.Thresholds.High:
		return models.RiskHigh
	case score >= rt.Thresholds.Moderate:
		return models.RiskModerate
	default:
		return models.RiskLow
	}
}
