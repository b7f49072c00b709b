package alert

import (
	"context"
	"testing"
	"time"

	"tamgiao-hitl/internal/config"
	"tamgiao-hitl/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestCache(t *testing.T) (*miniredis.Miniredis, *StateCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Alert.StateKeyPrefix = "hitl:alert:"
	cfg.Alert.StateTTLSec = 3600
	cfg.Alert.ManualReviewQueue = "hitl:manual_review"

	return mr, NewStateCache(cfg, redisClient, zap.NewNop())
}

func testAlert(id, userID string) *models.CriticalAlert {
	return &models.CriticalAlert{
		AlertID:   id,
		UserID:    userID,
		SessionID: "s1",
		RiskType:  models.RiskTypeSuicidal,
		RiskLevel: models.RiskCritical,
		RiskScore: 90,
		Status:    models.AlertPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestStateCache_PutLoadDrop(t *testing.T) {
	_, cache := setupTestCache(t)
	ctx := context.Background()

	a := testAlert("alert-1", "u1")
	b := testAlert("alert-2", "u2")
	cache.PutActive(ctx, a)
	cache.PutActive(ctx, b)

	loaded, err := cache.LoadActive(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	cache.DropActive(ctx, a)
	loaded, err = cache.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "alert-2", loaded[0].AlertID)
}

func TestStateCache_EntriesExpire(t *testing.T) {
	mr, cache := setupTestCache(t)
	ctx := context.Background()

	cache.PutActive(ctx, testAlert("alert-1", "u1"))
	mr.FastForward(2 * time.Hour)

	loaded, err := cache.LoadActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStateCache_ManualReviewQueue(t *testing.T) {
	_, cache := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.PushManualReview(ctx, "alert-1"))
	require.NoError(t, cache.PushManualReview(ctx, "alert-2"))

	ids, err := cache.ManualReviewQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alert-1", "alert-2"}, ids)
}
