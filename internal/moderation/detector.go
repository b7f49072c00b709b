package moderation

import (
	"strings"

	"tamgiao-hitl/internal/models"

	"go.uber.org/zap"
)

// Detector scans normalized text against the weighted rule table and produces
// typed signals. It is stateless and never fails: a fault in one category is
// logged and skipped so the chat pipeline keeps flowing.
type Detector struct {
	rules  *RuleTable
	logger *zap.Logger
}

// NewDetector creates a detector over a validated rule table.
func NewDetector(rules *RuleTable, logger *zap.Logger) *Detector {
	return &Detector{rules: rules, logger: logger}
}

// Detect returns one signal per category that matched, with the category's
// highest term confidence and every matched term. A negation marker inside
// the window immediately before a match discounts the confidence instead of
// dropping the signal, so a clinician-reviewable trace always remains.
func (d *Detector) Detect(normalized string) []models.ModerationSignal {
	if strings.TrimSpace(normalized) == "" {
		return nil
	}

	tokens := tokenize(normalized)
	source := "rule_table@" + d.rules.Version

	var signals []models.ModerationSignal
	for _, category := range d.rules.CategoryNames() {
		cat := d.rules.Categories[string(category)]

		var (
			matched    []string
			confidence float64
			negated    bool
			anyClear   bool // at least one non-negated match
		)

		for _, term := range cat.Terms {
			termTokens := tokenize(term.Term)
			idx := findPhrase(tokens, termTokens)
			if idx < 0 {
				continue
			}

			conf := cat.BaseConfidence
			if term.Confidence > 0 {
				conf = term.Confidence
			}

			isNegated := d.negatedAt(tokens, idx)
			if isNegated {
				conf *= d.rules.Negation.Discount
				if conf < d.rules.Negation.Floor {
					conf = d.rules.Negation.Floor
				}
			} else {
				anyClear = true
			}

			if category == models.CategorySelfInjury && d.intensified(tokens) {
				conf += d.rules.Intensity.Boost
				if conf > 1 {
					conf = 1
				}
			}

			matched = append(matched, term.Term)
			if conf > confidence {
				confidence = conf
			}
		}

		if len(matched) == 0 {
			continue
		}
		// The signal counts as negated only when no clear match exists.
		negated = !anyClear

		signals = append(signals, models.ModerationSignal{
			Source:       source,
			Category:     category,
			Confidence:   confidence,
			MatchedTerms: matched,
			Negated:      negated,
		})
	}

	return signals
}

// negatedAt reports whether a negation marker sits inside the window of
// tokens immediately preceding the match at idx.
func (d *Detector) negatedAt(tokens []string, idx int) bool {
	start := idx - d.rules.Negation.WindowTokens
	if start < 0 {
		start = 0
	}
	if start == idx {
		return false
	}
	for _, marker := range d.rules.Negation.Markers {
		if findPhrase(tokens[start:idx], tokenize(marker)) >= 0 {
			return true
		}
	}
	return false
}

func (d *Detector) intensified(tokens []string) bool {
	for _, term := range d.rules.Intensity.Terms {
		if findPhrase(tokens, tokenize(term)) >= 0 {
			return true
		}
	}
	return false
}

// tokenize splits normalized text into bare word tokens, dropping the
// punctuation the normalizer keeps for readability.
func tokenize(s string) []string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?'-")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// findPhrase returns the index of the first occurrence of phrase inside
// tokens, or -1.
func findPhrase(tokens, phrase []string) int {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return -1
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		hit := true
		for j, p := range phrase {
			if tokens[i+j] != p {
				hit = false
				break
			}
		}
		if hit {
			return i
		}
	}
	return -1
}
