package alert

import (
	"context"
	"time"

	"tamgiao-hitl/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AuditTrail appends every alert lifecycle transition to a Redis Stream so
// offline review can reconstruct the timeline. Appends are best-effort: a
// failed append is logged and the transition proceeds.
type AuditTrail struct {
	cfg         *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewAuditTrail creates the trail over an established Redis client.
func NewAuditTrail(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *AuditTrail {
	return &AuditTrail{
		cfg:         cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Append records one transition. Only the digest and typed fields go into the
// stream, never raw message text.
func (t *AuditTrail) Append(ctx context.Context, alertID, transition string, fields map[string]string) {
	values := map[string]interface{}{
		"alert_id":   alertID,
		"transition": transition,
		"at":         time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		values[k] = v
	}

	if err := t.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: t.cfg.Alert.AuditStream,
		Values: values,
	}).Err(); err != nil {
		t.logger.Warn("Failed to append alert audit entry",
			zap.String("alert_id", alertID),
			zap.String("transition", transition),
			zap.Error(err),
		)
	}
}
