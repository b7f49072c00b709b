package moderation

import (
	"tamgiao-hitl/internal/models"

	"go.uber.org/zap"
)

// Pipeline is the synchronous moderation entry point: normalize, detect,
// score. It runs inline (no I/O) and never returns an error; any internal
// fault degrades to "no signal detected" rather than blocking the chat
// response.
type Pipeline struct {
	normalizer *Normalizer
	detector   *Detector
	scorer     *Scorer
	rules      *RuleTable
	logger     *zap.Logger
}

// NewPipeline wires the three stages over one rule table.
func NewPipeline(rules *RuleTable, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		normalizer: NewNormalizer(),
		detector:   NewDetector(rules, logger),
		scorer:     NewScorer(rules, logger),
		rules:      rules,
		logger:     logger,
	}
}

// Score classifies one raw user message. A panic anywhere in the stages
// degrades to an empty low-risk result; the chat reply must not be blocked
// by a moderation fault.
func (p *Pipeline) Score(raw string) (result models.ModerationResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Moderation pipeline fault, failing open",
				zap.Any("panic", r),
			)
			result = models.ModerationResult{
				RiskLevel:     models.RiskLow,
				MessageDigest: Digest(raw),
				RuleVersion:   p.rules.Version,
			}
		}
	}()

	normalized := p.normalizer.Normalize(raw)
	signals := p.detector.Detect(normalized)
	level, score := p.scorer.Score(signals)

	return models.ModerationResult{
		RiskLevel:      level,
		RiskScore:      score,
		Signals:        signals,
		NormalizedText: normalized,
		MessageDigest:  Digest(raw),
		RuleVersion:    p.rules.Version,
	}
}

// RiskTypeFor derives the crisis type an alert should carry from the fused
// result. Self-injury without direct intent is self-harm; everything else in
// the current rule set maps to suicidal risk.
func RiskTypeFor(result models.ModerationResult) models.RiskType {
	if result.HasCategory(models.CategorySelfInjury) &&
		!result.HasCategory(models.CategoryDirectIntent) &&
		!result.HasCategory(models.CategoryFarewell) {
		return models.RiskTypeSelfHarm
	}
	return models.RiskTypeSuicidal
}
