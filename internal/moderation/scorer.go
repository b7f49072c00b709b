package moderation

import (
	"crypto/sha256"
	"encoding/hex"

	"tamgiao-hitl/internal/models"

	"go.uber.org/zap"
)

// RedactionPlaceholder replaces user_message wherever the privacy flag is on.
const RedactionPlaceholder = "[redacted]"

// Scorer fuses detected signals into a numeric score and a discrete risk
// level. Pure and deterministic: identical signals always produce identical
// results.
type Scorer struct {
	rules  *RuleTable
	logger *zap.Logger
}

// NewScorer creates a scorer over the same rule table as the detector.
func NewScorer(rules *RuleTable, logger *zap.Logger) *Scorer {
	return &Scorer{rules: rules, logger: logger}
}

// Score fuses signals into a ModerationResult. Scoring rules, in precedence
// order:
//
//  1. Base score: per distinct category, max confidence x category weight,
//     summed. Repeated phrases inside one category never stack.
//  2. Non-negated direct intent (confidence >= the combination minimum) plus
//     plan, means or timeframe forces critical regardless of arithmetic.
//  3. Farewell alone floors the level at high. Self-injury escalates with
//     intensity terms through its confidence.
//  4. Slang alone is capped at low; slang plus anything real scores normally.
//  5. No signals: low, score 0.
func (s *Scorer) Score(signals []models.ModerationSignal) (models.RiskLevel, float64) {
	if len(signals) == 0 {
		return models.RiskLow, 0
	}

	// 1. Base score over distinct categories.
	var score float64
	byCategory := make(map[models.SignalCategory]models.ModerationSignal, len(signals))
	for _, sig := range signals {
		if prev, ok := byCategory[sig.Category]; !ok || sig.Confidence > prev.Confidence {
			byCategory[sig.Category] = sig
		}
	}
	for _, sig := range byCategory {
		w := s.rules.Categories[string(sig.Category)].Weight
		score += sig.Confidence * w
	}
	score = clamp(score, 0, 100)

	// 4. Slang alone never exceeds low.
	if len(byCategory) == 1 {
		if _, only := byCategory[models.CategorySlang]; only {
			low := s.rules.Thresholds.Moderate - 1
			if score > low {
				score = low
			}
			return models.RiskLow, score
		}
	}

	level := s.rules.LevelFor(score)

	// 2. Combination override: intent plus concreteness is critical.
	if s.combinationCritical(byCategory) {
		if s.rules.Combine.ForcedScore > score {
			score = clamp(s.rules.Combine.ForcedScore, 0, 100)
		}
		return models.RiskCritical, score
	}

	// 3. Level floors.
	if sig, ok := byCategory[models.CategoryFarewell]; ok && !sig.Negated {
		if level.Rank() < models.RiskHigh.Rank() {
			level = models.RiskHigh
		}
	}

	return level, score
}

func (s *Scorer) combinationCritical(byCategory map[models.SignalCategory]models.ModerationSignal) bool {
	intent, ok := byCategory[models.CategoryDirectIntent]
	if !ok || intent.Negated || intent.Confidence < s.rules.Combine.MinIntentConfidence {
		return false
	}
	for _, name := range s.rules.Combine.WithAny {
		if sig, ok := byCategory[models.SignalCategory(name)]; ok && !sig.Negated {
			return true
		}
	}
	return false
}

// Digest returns the stable one-way hash of the original message, so logs and
// alerts can reference a message without retaining raw text.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
