package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"tamgiao-hitl/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubChannel struct {
	name       string
	configured bool
	err        error
	delay      time.Duration
	calls      int
}

func (s *stubChannel) Name() string     { return s.name }
func (s *stubChannel) Configured() bool { return s.configured }

func (s *stubChannel) Send(ctx context.Context, alert *models.CriticalAlert, escalated bool) error {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func sampleNotifyAlert() *models.CriticalAlert {
	return &models.CriticalAlert{
		AlertID:          "alert-001",
		UserID:           "user-42",
		SessionID:        "sess-9",
		RiskType:         models.RiskTypeSuicidal,
		RiskLevel:        models.RiskCritical,
		RiskScore:        85,
		DetectedKeywords: []string{"muon chet"},
		MessageDigest:    "abc123",
		Status:           models.AlertPending,
		CreatedAt:        time.Now(),
	}
}

func TestDispatch_AllChannelsInvoked(t *testing.T) {
	a := &stubChannel{name: "roster", configured: true}
	b := &stubChannel{name: "email", configured: true}

	d := NewDispatcher([]Channel{a, b}, time.Second, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), sampleNotifyAlert(), false)

	require.Len(t, outcomes, 2)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	for _, o := range outcomes {
		assert.True(t, o.Success)
		assert.False(t, o.Skipped)
		assert.Empty(t, o.Error)
	}
}

func TestDispatch_FailureDoesNotStopOthers(t *testing.T) {
	failing := &stubChannel{name: "email", configured: true, err: errors.New("relay down")}
	healthy := &stubChannel{name: "sms", configured: true}

	d := NewDispatcher([]Channel{failing, healthy}, time.Second, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), sampleNotifyAlert(), false)

	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Success)
	assert.Contains(t, outcomes[0].Error, "relay down")
	assert.True(t, outcomes[1].Success)
	assert.Equal(t, 1, healthy.calls)
}

func TestDispatch_UnconfiguredChannelSkipped(t *testing.T) {
	unset := &stubChannel{name: "sms", configured: false}

	d := NewDispatcher([]Channel{unset}, time.Second, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), sampleNotifyAlert(), false)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.False(t, outcomes[0].Success)
	assert.Empty(t, outcomes[0].Error)
	assert.Equal(t, 0, unset.calls)
}

func TestDispatch_SlowChannelTimesOut(t *testing.T) {
	slow := &stubChannel{name: "roster", configured: true, delay: 2 * time.Second}

	d := NewDispatcher([]Channel{slow}, 50*time.Millisecond, zap.NewNop())
	start := time.Now()
	outcomes := d.Dispatch(context.Background(), sampleNotifyAlert(), false)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.NotEmpty(t, outcomes[0].Error)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatch_EscalatedFlagRecorded(t *testing.T) {
	ch := &stubChannel{name: "roster", configured: true}

	d := NewDispatcher([]Channel{ch}, time.Second, zap.NewNop())
	outcomes := d.Dispatch(context.Background(), sampleNotifyAlert(), true)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Escalated)
}
