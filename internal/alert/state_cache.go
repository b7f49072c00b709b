package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tamgiao-hitl/internal/config"
	"tamgiao-hitl/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StateCache mirrors the active-alert index into Redis so a restarted process
// can warm its dedupe index, and pushes exhausted alerts onto the
// manual-review queue. Cache failures degrade to in-memory-only operation and
// are logged, never propagated to the chat path.
type StateCache struct {
	cfg         *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewStateCache creates the cache over an established Redis client.
func NewStateCache(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *StateCache {
	return &StateCache{
		cfg:         cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (c *StateCache) activeKey(a *models.CriticalAlert) string {
	return c.cfg.Alert.StateKeyPrefix + "active:" + a.ActiveKey()
}

// PutActive stores the alert snapshot under its dedupe key with a TTL.
func (c *StateCache) PutActive(ctx context.Context, a *models.CriticalAlert) {
	data, err := json.Marshal(a)
	if err != nil {
		c.logger.Error("Failed to marshal alert for state cache",
			zap.String("alert_id", a.AlertID),
			zap.Error(err),
		)
		return
	}
	ttl := time.Duration(c.cfg.Alert.StateTTLSec) * time.Second
	if err := c.redisClient.Set(ctx, c.activeKey(a), data, ttl).Err(); err != nil {
		c.logger.Warn("Failed to write alert state cache",
			zap.String("alert_id", a.AlertID),
			zap.Error(err),
		)
	}
}

// DropActive removes the dedupe entry on resolution.
func (c *StateCache) DropActive(ctx context.Context, a *models.CriticalAlert) {
	if err := c.redisClient.Del(ctx, c.activeKey(a)).Err(); err != nil {
		c.logger.Warn("Failed to drop alert state cache entry",
			zap.String("alert_id", a.AlertID),
			zap.Error(err),
		)
	}
}

// LoadActive returns every cached active alert (used to warm the index after
// a restart).
func (c *StateCache) LoadActive(ctx context.Context) ([]*models.CriticalAlert, error) {
	pattern := c.cfg.Alert.StateKeyPrefix + "active:*"
	var (
		cursor uint64
		out    []*models.CriticalAlert
	)
	for {
		keys, next, err := c.redisClient.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert state cache: %w", err)
		}
		for _, key := range keys {
			val, err := c.redisClient.Get(ctx, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				return nil, fmt.Errorf("failed to read alert state cache: %w", err)
			}
			var a models.CriticalAlert
			if err := json.Unmarshal([]byte(val), &a); err != nil {
				c.logger.Warn("Dropping undecodable alert state entry",
					zap.String("key", key),
					zap.Error(err),
				)
				continue
			}
			out = append(out, &a)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// PushManualReview enqueues an alert id whose escalation rounds are
// exhausted.
func (c *StateCache) PushManualReview(ctx context.Context, alertID string) error {
	if err := c.redisClient.RPush(ctx, c.cfg.Alert.ManualReviewQueue, alertID).Err(); err != nil {
		return fmt.Errorf("failed to push manual review entry: %w", err)
	}
	return nil
}

// ManualReviewQueue returns the pending manual-review alert ids without
// consuming them.
func (c *StateCache) ManualReviewQueue(ctx context.Context) ([]string, error) {
	ids, err := c.redisClient.LRange(ctx, c.cfg.Alert.ManualReviewQueue, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read manual review queue: %w", err)
	}
	return ids, nil
}
