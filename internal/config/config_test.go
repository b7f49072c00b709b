package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "tamgiao", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "", cfg.MQTT.Broker)
	assert.Equal(t, "tamgiao-hitl", cfg.MQTT.ClientID)

	assert.Equal(t, ":8085", cfg.HTTP.ListenAddr)

	assert.Equal(t, 300, cfg.Alert.EscalationWindowSec)
	assert.Equal(t, 3, cfg.Alert.MaxEscalations)
	assert.Equal(t, "hitl:alert:", cfg.Alert.StateKeyPrefix)
	assert.Equal(t, "hitl:alert_audit", cfg.Alert.AuditStream)
	assert.Equal(t, "hitl:manual_review", cfg.Alert.ManualReviewQueue)

	assert.Equal(t, "tamgiao/hitl/alerts", cfg.Notify.MQTTTopic)
	assert.Equal(t, "", cfg.Notify.EmailWebhook)
	assert.Equal(t, 10, cfg.Notify.TimeoutSec)

	assert.False(t, cfg.Privacy.RedactMessages)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_PORT", "5433")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("ALERT_ESCALATION_WINDOW_SEC", "60")
	os.Setenv("ALERT_MAX_ESCALATIONS", "5")
	os.Setenv("NOTIFY_EMAIL_WEBHOOK", "http://mailer.local/send")
	os.Setenv("PRIVACY_REDACT_MESSAGES", "true")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 60, cfg.Alert.EscalationWindowSec)
	assert.Equal(t, 5, cfg.Alert.MaxEscalations)
	assert.Equal(t, "http://mailer.local/send", cfg.Notify.EmailWebhook)
	assert.True(t, cfg.Privacy.RedactMessages)
	assert.Equal(t, "debug", cfg.Log.Level)

	os.Clearenv()
}

func TestGetEnvInt_Invalid(t *testing.T) {
	os.Setenv("TEST_INT", "not-a-number")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))
	os.Unsetenv("TEST_INT")
}
