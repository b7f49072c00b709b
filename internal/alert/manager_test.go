package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"tamgiao-hitl/internal/config"
	"tamgiao-hitl/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeNotifier records every fan-out so tests can assert on escalations.
type fakeNotifier struct {
	mu         sync.Mutex
	dispatches []bool // escalated flag per call
}

func (f *fakeNotifier) Dispatch(_ context.Context, _ *models.CriticalAlert, escalated bool) []models.DispatchOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches = append(f.dispatches, escalated)
	return []models.DispatchOutcome{{Channel: "fake", Escalated: escalated, Success: true, At: time.Now()}}
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatches)
}

func (f *fakeNotifier) escalatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.dispatches {
		if e {
			n++
		}
	}
	return n
}

type fakeBinder struct {
	mu         sync.Mutex
	bound      map[string]string // alertID -> clinicianID
	boundRoute map[string]string // alertID -> sessionID seen at bind time
	released   []string
	pushes     int
}

func newFakeBinder() *fakeBinder {
	return &fakeBinder{
		bound:      make(map[string]string),
		boundRoute: make(map[string]string),
	}
}

func (f *fakeBinder) BindClinician(clinicianID string, a *models.CriticalAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.bound[a.AlertID]; ok && existing != clinicianID {
		return ErrConflict
	}
	f.bound[a.AlertID] = clinicianID
	f.boundRoute[a.AlertID] = a.SessionID
	return nil
}

func (f *fakeBinder) ReleaseAlert(alertID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bound, alertID)
	f.released = append(f.released, alertID)
}

func (f *fakeBinder) PushAlert(_ *models.CriticalAlert, _ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
}

func testConfig(windowSec, maxEsc int) *config.Config {
	cfg := &config.Config{}
	cfg.Alert.EscalationWindowSec = windowSec
	cfg.Alert.MaxEscalations = maxEsc
	return cfg
}

func testDetails(level models.RiskLevel, score float64) CreateDetails {
	return CreateDetails{
		RiskType:         models.RiskTypeSuicidal,
		RiskLevel:        level,
		RiskScore:        score,
		UserMessage:      "test message",
		MessageDigest:    "digest",
		DetectedKeywords: []string{"muon chet"},
	}
}

func newTestManager(t *testing.T, windowSec, maxEsc int) (*Manager, *fakeNotifier, *fakeBinder) {
	t.Helper()
	notifier := &fakeNotifier{}
	binder := newFakeBinder()
	m := NewManager(testConfig(windowSec, maxEsc), notifier, nil, nil, nil, zap.NewNop())
	m.SetBinder(binder)
	t.Cleanup(m.Shutdown)
	return m, notifier, binder
}

func TestCreateCriticalAlert_Validation(t *testing.T) {
	m, _, _ := newTestManager(t, 300, 3)
	ctx := context.Background()

	_, err := m.CreateCriticalAlert(ctx, "", "s1", testDetails(models.RiskCritical, 90))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.CreateCriticalAlert(ctx, "u1", "", testDetails(models.RiskCritical, 90))
	assert.ErrorIs(t, err, ErrValidation)

	details := testDetails(models.RiskCritical, 90)
	details.RiskType = ""
	_, err = m.CreateCriticalAlert(ctx, "u1", "s1", details)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateCriticalAlert_IdempotentPerKey(t *testing.T) {
	m, _, _ := newTestManager(t, 300, 3)
	ctx := context.Background()

	first, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 80))
	require.NoError(t, err)

	second, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 75))
	require.NoError(t, err)
	assert.Equal(t, first.AlertID, second.AlertID, "no duplicate active alerts per key")

	// Different risk type in the same conversation is a distinct alert.
	details := testDetails(models.RiskCritical, 80)
	details.RiskType = models.RiskTypeSelfHarm
	third, err := m.CreateCriticalAlert(ctx, "u1", "s1", details)
	require.NoError(t, err)
	assert.NotEqual(t, first.AlertID, third.AlertID)
}

func TestCreateCriticalAlert_DuplicateUpgradesRisk(t *testing.T) {
	m, _, _ := newTestManager(t, 300, 3)
	ctx := context.Background()

	first, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskHigh, 60))
	require.NoError(t, err)

	details := testDetails(models.RiskCritical, 95)
	details.DetectedKeywords = []string{"vinh biet"}
	second, err := m.CreateCriticalAlert(ctx, "u1", "s1", details)
	require.NoError(t, err)

	assert.Equal(t, first.AlertID, second.AlertID)
	assert.Equal(t, models.RiskCritical, second.RiskLevel)
	assert.Equal(t, 95.0, second.RiskScore)
	assert.Contains(t, second.DetectedKeywords, "muon chet")
	assert.Contains(t, second.DetectedKeywords, "vinh biet")
}

func TestAcknowledgeAlert_HappyPath(t *testing.T) {
	m, _, binder := newTestManager(t, 300, 3)
	ctx := context.Background()

	created, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 90))
	require.NoError(t, err)

	acked, err := m.AcknowledgeAlert(created.AlertID, "clin-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.AlertAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedBy)
	assert.Equal(t, "clin-1", *acked.AcknowledgedBy)
	assert.NotNil(t, acked.AcknowledgedAt)

	binder.mu.Lock()
	assert.Equal(t, "clin-1", binder.bound[created.AlertID])
	assert.Equal(t, "s1", binder.boundRoute[created.AlertID])
	binder.mu.Unlock()
}

func TestAcknowledgeAlert_Errors(t *testing.T) {
	m, _, _ := newTestManager(t, 300, 3)
	ctx := context.Background()

	_, err := m.AcknowledgeAlert("missing", "clin-1", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.AcknowledgeAlert("some-id", "", nil)
	assert.ErrorIs(t, err, ErrValidation)

	created, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 90))
	require.NoError(t, err)

	_, err = m.AcknowledgeAlert(created.AlertID, "clin-1", nil)
	require.NoError(t, err)

	// Second acknowledgment is an invalid transition.
	_, err = m.AcknowledgeAlert(created.AlertID, "clin-2", nil)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = m.ResolveAlert(created.AlertID, "stabilized")
	require.NoError(t, err)

	_, err = m.AcknowledgeAlert(created.AlertID, "clin-1", nil)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestResolveAlert_FromPendingAndErrors(t *testing.T) {
	m, _, binder := newTestManager(t, 300, 3)
	ctx := context.Background()

	_, err := m.ResolveAlert("missing", "done")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 90))
	require.NoError(t, err)

	_, err = m.ResolveAlert(created.AlertID, "")
	assert.ErrorIs(t, err, ErrValidation)

	// Resolving straight from pending is allowed.
	resolved, err := m.ResolveAlert(created.AlertID, "false_alarm")
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, resolved.Status)
	require.NotNil(t, resolved.Resolution)
	assert.Equal(t, "false_alarm", *resolved.Resolution)

	_, err = m.ResolveAlert(created.AlertID, "again")
	assert.ErrorIs(t, err, ErrInvalidState)

	binder.mu.Lock()
	assert.Contains(t, binder.released, created.AlertID)
	binder.mu.Unlock()

	// A new alert for the same key is allowed after resolution.
	fresh, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 90))
	require.NoError(t, err)
	assert.NotEqual(t, created.AlertID, fresh.AlertID)
}

func TestEscalation_FiresWhileUnacknowledged(t *testing.T) {
	m, notifier, _ := newTestManager(t, 1, 2)
	ctx := context.Background()

	created, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 90))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return notifier.escalatedCount() >= 1
	}, 3*time.Second, 20*time.Millisecond, "escalation should re-dispatch")

	got, err := m.GetAlert(created.AlertID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertPending, got.Status)
	assert.GreaterOrEqual(t, got.EscalationRound, 1)
}

func TestEscalation_BoundedRounds(t *testing.T) {
	m, notifier, _ := newTestManager(t, 1, 2)
	ctx := context.Background()

	_, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 90))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return notifier.escalatedCount() >= 2
	}, 5*time.Second, 20*time.Millisecond)

	// Rounds are exhausted; give a generous extra window and verify no
	// further escalation fires.
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 2, notifier.escalatedCount(), "escalation must stop after max rounds")
}

func TestAcknowledge_CancelsEscalation(t *testing.T) {
	m, notifier, _ := newTestManager(t, 1, 3)
	ctx := context.Background()

	created, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 90))
	require.NoError(t, err)

	_, err = m.AcknowledgeAlert(created.AlertID, "clin-1", nil)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, 0, notifier.escalatedCount(), "no escalation after acknowledgment")
}

func TestListActiveAndStats(t *testing.T) {
	m, _, _ := newTestManager(t, 300, 3)
	ctx := context.Background()

	a, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 90))
	require.NoError(t, err)

	details := testDetails(models.RiskHigh, 60)
	details.RiskType = models.RiskTypeSelfHarm
	b, err := m.CreateCriticalAlert(ctx, "u2", "s2", details)
	require.NoError(t, err)

	active := m.ListActive()
	assert.Len(t, active, 2)

	_, err = m.ResolveAlert(a.AlertID, "stabilized")
	require.NoError(t, err)

	active = m.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, b.AlertID, active[0].AlertID)

	stats := m.GetStats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[models.AlertResolved])
	assert.Equal(t, 1, stats.ByStatus[models.AlertPending])
	assert.Equal(t, 1, stats.ByRiskType[models.RiskTypeSuicidal])
	assert.Equal(t, 1, stats.ByRiskType[models.RiskTypeSelfHarm])
}

func TestConcurrentCreates_SingleAlert(t *testing.T) {
	m, _, _ := newTestManager(t, 300, 3)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := m.CreateCriticalAlert(ctx, "u1", "s1", testDetails(models.RiskCritical, 90))
			if assert.NoError(t, err) {
				ids[i] = a.AlertID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Len(t, m.ListActive(), 1)
}

func TestRestore_ReadoptsActiveAlerts(t *testing.T) {
	m, notifier, _ := newTestManager(t, 1, 2)

	pending := &models.CriticalAlert{
		AlertID:   "restored-1",
		UserID:    "u1",
		SessionID: "s1",
		RiskType:  models.RiskTypeSuicidal,
		RiskLevel: models.RiskCritical,
		RiskScore: 85,
		Status:    models.AlertPending,
		CreatedAt: time.Now().Add(-time.Minute),
	}
	acked := &models.CriticalAlert{
		AlertID:   "restored-2",
		UserID:    "u2",
		SessionID: "s2",
		RiskType:  models.RiskTypeSuicidal,
		RiskLevel: models.RiskCritical,
		RiskScore: 90,
		Status:    models.AlertAcknowledged,
		CreatedAt: time.Now().Add(-time.Minute),
	}
	resolved := &models.CriticalAlert{
		AlertID:   "restored-3",
		UserID:    "u3",
		SessionID: "s3",
		RiskType:  models.RiskTypeSuicidal,
		Status:    models.AlertResolved,
	}

	n := m.Restore([]*models.CriticalAlert{pending, acked, resolved, nil})
	assert.Equal(t, 2, n)

	active := m.ListActive()
	require.Len(t, active, 2)

	// A duplicate message for the restored key reuses the alert.
	reused, err := m.CreateCriticalAlert(context.Background(), "u1", "s1", testDetails(models.RiskCritical, 85))
	require.NoError(t, err)
	assert.Equal(t, "restored-1", reused.AlertID)

	// The restored pending alert escalates again; the acknowledged one stays quiet.
	require.Eventually(t, func() bool {
		return notifier.escalatedCount() >= 1
	}, 3*time.Second, 20*time.Millisecond, "restored pending alert should rearm its timer")

	got, err := m.GetAlert("restored-2")
	require.NoError(t, err)
	assert.Equal(t, models.AlertAcknowledged, got.Status)
}

func TestRestore_SkipsLiveIDs(t *testing.T) {
	m, _, _ := newTestManager(t, 300, 3)

	created, err := m.CreateCriticalAlert(context.Background(), "u1", "s1", testDetails(models.RiskCritical, 80))
	require.NoError(t, err)

	stale := *created
	n := m.Restore([]*models.CriticalAlert{&stale})
	assert.Equal(t, 0, n)
	assert.Len(t, m.ListActive(), 1)
}
