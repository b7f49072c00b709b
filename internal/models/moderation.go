package models

// RiskLevel is the discrete risk classification derived from signals.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank returns the ordering of a risk level, low first. Unknown levels rank lowest.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskModerate:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

// SignalCategory identifies one configured risk category in the rule table.
type SignalCategory string

const (
	CategoryDirectIntent SignalCategory = "direct_intent"
	CategoryPlan         SignalCategory = "plan"
	CategoryMeans        SignalCategory = "means"
	CategoryTimeframe    SignalCategory = "timeframe"
	CategoryFarewell     SignalCategory = "farewell"
	CategorySelfInjury   SignalCategory = "self_injury"
	CategoryIdeation     SignalCategory = "ideation"
	CategorySlang        SignalCategory = "slang"
)

// ModerationSignal is one typed, confidence-scored hit for a risk category
// within a single message. Produced fresh per message, never persisted on its
// own (only inside the alert metadata that references it).
type ModerationSignal struct {
	Source       string         `json:"source"`     // "rule_table" plus rule version
	Category     SignalCategory `json:"category"`
	Confidence   float64        `json:"confidence"` // [0,1], after negation discount
	MatchedTerms []string       `json:"matched_terms"`
	Negated      bool           `json:"negated"` // a negation marker governed the match
}

// ModerationResult is the fused outcome for one message.
// MessageDigest is a one-way hash of the original (raw) message so downstream
// logging and alerting never need raw text; same input always yields the same
// digest.
type ModerationResult struct {
	RiskLevel      RiskLevel          `json:"risk_level"`
	RiskScore      float64            `json:"risk_score"` // [0,100]
	Signals        []ModerationSignal `json:"signals"`
	NormalizedText string             `json:"normalized_text"`
	MessageDigest  string             `json:"message_digest"`
	RuleVersion    string             `json:"rule_version"`
}

// HasCategory reports whether any signal of the given category is present.
func (r ModerationResult) HasCategory(c SignalCategory) bool {
	for _, s := range r.Signals {
		if s.Category == c {
			return true
		}
	}
	return false
}
