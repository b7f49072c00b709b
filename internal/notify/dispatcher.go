package notify

import (
	"context"
	"sync"
	"time"

	"tamgiao-hitl/internal/models"

	"go.uber.org/zap"
)

// Channel is one notification transport. Send returns an error for the
// outcome record only; the dispatcher never propagates it.
type Channel interface {
	Name() string
	Configured() bool
	Send(ctx context.Context, alert *models.CriticalAlert, escalated bool) error
}

// Dispatcher fans a new or escalated alert out to every configured channel
// independently: one channel failing must not stop the others, and no failure
// ever reaches the alert-creation caller.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher creates the dispatcher over a fixed channel set.
func NewDispatcher(channels []Channel, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch invokes every channel concurrently and collects per-channel
// outcomes for the alert's audit record.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.CriticalAlert, escalated bool) []models.DispatchOutcome {
	outcomes := make([]models.DispatchOutcome, len(d.channels))

	var wg sync.WaitGroup
	for i, ch := range d.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			outcomes[i] = d.send(ctx, ch, alert, escalated)
		}(i, ch)
	}
	wg.Wait()

	for _, o := range outcomes {
		if !o.Success && !o.Skipped {
			d.logger.Error("Notification channel failed",
				zap.String("channel", o.Channel),
				zap.String("alert_id", alert.AlertID),
				zap.Bool("escalated", escalated),
				zap.String("channel_error", o.Error),
			)
		}
	}
	return outcomes
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, alert *models.CriticalAlert, escalated bool) models.DispatchOutcome {
	outcome := models.DispatchOutcome{
		Channel:   ch.Name(),
		Escalated: escalated,
		At:        time.Now(),
	}

	if !ch.Configured() {
		outcome.Skipped = true
		return outcome
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := ch.Send(sendCtx, alert, escalated); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Success = true
	return outcome
}
