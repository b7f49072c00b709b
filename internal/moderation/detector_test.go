package moderation

import (
	"testing"

	"tamgiao-hitl/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPipeline(t *testing.T) (*Pipeline, *RuleTable) {
	t.Helper()
	rules, err := LoadRules(defaultRulesYAML)
	require.NoError(t, err)
	return NewPipeline(rules, zap.NewNop()), rules
}

func signalFor(signals []models.ModerationSignal, c models.SignalCategory) *models.ModerationSignal {
	for i := range signals {
		if signals[i].Category == c {
			return &signals[i]
		}
	}
	return nil
}

func TestDetect_DirectIntent(t *testing.T) {
	p, _ := newTestPipeline(t)

	signals := p.detector.Detect(p.normalizer.Normalize("Tôi muốn chết"))
	sig := signalFor(signals, models.CategoryDirectIntent)
	require.NotNil(t, sig)
	assert.False(t, sig.Negated)
	assert.GreaterOrEqual(t, sig.Confidence, 0.9)
	assert.Contains(t, sig.MatchedTerms, "muon chet")
}

func TestDetect_NegationDiscountsButKeepsTrace(t *testing.T) {
	p, _ := newTestPipeline(t)

	signals := p.detector.Detect(p.normalizer.Normalize("Tôi không muốn chết, tôi muốn sống"))
	sig := signalFor(signals, models.CategoryDirectIntent)
	require.NotNil(t, sig, "negation must discount, never discard")
	assert.True(t, sig.Negated)
	assert.Less(t, sig.Confidence, 0.5)
	assert.Greater(t, sig.Confidence, 0.0)
}

func TestDetect_NegationMarkerInsideTermDoesNotSelfNegate(t *testing.T) {
	p, _ := newTestPipeline(t)

	// "khong muon song" is itself a direct-intent phrase; the leading "khong"
	// belongs to the term, not to a governing negation.
	signals := p.detector.Detect(p.normalizer.Normalize("tôi không muốn sống nữa"))
	sig := signalFor(signals, models.CategoryDirectIntent)
	require.NotNil(t, sig)
	assert.False(t, sig.Negated)
}

func TestDetect_MultipleCategories(t *testing.T) {
	p, _ := newTestPipeline(t)

	signals := p.detector.Detect(p.normalizer.Normalize("Tôi muốn chết và sẽ làm đêm nay"))
	assert.NotNil(t, signalFor(signals, models.CategoryDirectIntent))
	assert.NotNil(t, signalFor(signals, models.CategoryPlan))
	assert.NotNil(t, signalFor(signals, models.CategoryTimeframe))
}

func TestDetect_SlangTagged(t *testing.T) {
	p, _ := newTestPipeline(t)

	signals := p.detector.Detect(p.normalizer.Normalize("chắc mình unalive quá"))
	sig := signalFor(signals, models.CategorySlang)
	require.NotNil(t, sig)
}

func TestDetect_SelfInjuryIntensified(t *testing.T) {
	p, _ := newTestPipeline(t)

	plain := p.detector.Detect(p.normalizer.Normalize("tôi rạch tay"))
	intense := p.detector.Detect(p.normalizer.Normalize("tôi rạch tay mỗi ngày"))

	plainSig := signalFor(plain, models.CategorySelfInjury)
	intenseSig := signalFor(intense, models.CategorySelfInjury)
	require.NotNil(t, plainSig)
	require.NotNil(t, intenseSig)
	assert.Greater(t, intenseSig.Confidence, plainSig.Confidence)
}

func TestDetect_EmptyInput(t *testing.T) {
	p, _ := newTestPipeline(t)

	assert.Empty(t, p.detector.Detect(""))
	assert.Empty(t, p.detector.Detect("   "))
}

func TestDetect_CleanTextNoSignals(t *testing.T) {
	p, _ := newTestPipeline(t)

	signals := p.detector.Detect(p.normalizer.Normalize("Hôm nay trời đẹp quá"))
	// "hom nay" is a timeframe term, but with nothing else present the scorer
	// keeps it low; the detector still reports the bare hit.
	for _, s := range signals {
		assert.NotEqual(t, models.CategoryDirectIntent, s.Category)
	}
}
