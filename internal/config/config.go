package config

import (
	"os"
	"strconv"
)

// Config holds the HITL service configuration. Everything is loaded from
// environment variables with sensible defaults so the service can run in a
// bare container without a config file.
type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	MQTT struct {
		Broker   string // empty disables the roster push channel
		ClientID string
		Username string
		Password string
	}

	HTTP struct {
		ListenAddr string
	}

	// Alert lifecycle configuration
	Alert struct {
		EscalationWindowSec int // timer window before re-notification
		MaxEscalations      int // escalation rounds before manual-review queue
		StateKeyPrefix      string
		StateTTLSec         int
		AuditStream         string
		ManualReviewQueue   string
	}

	// Notification channel endpoints. An empty endpoint marks the channel as
	// not configured; dispatch records a skipped outcome instead of failing.
	Notify struct {
		MQTTTopic    string
		EmailWebhook string
		SMSGateway   string
		TimeoutSec   int
	}

	Moderation struct {
		RulesPath string // optional override of the embedded rule table
	}

	Privacy struct {
		RedactMessages bool // replace user_message with a placeholder everywhere
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "tamgiao")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "tamgiao-hitl")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")

	cfg.HTTP.ListenAddr = getEnv("HTTP_LISTEN_ADDR", ":8085")

	cfg.Alert.EscalationWindowSec = getEnvInt("ALERT_ESCALATION_WINDOW_SEC", 300)
	cfg.Alert.MaxEscalations = getEnvInt("ALERT_MAX_ESCALATIONS", 3)
	cfg.Alert.StateKeyPrefix = getEnv("ALERT_STATE_PREFIX", "hitl:alert:")
	cfg.Alert.StateTTLSec = getEnvInt("ALERT_STATE_TTL_SEC", 24*3600)
	cfg.Alert.AuditStream = getEnv("ALERT_AUDIT_STREAM", "hitl:alert_audit")
	cfg.Alert.ManualReviewQueue = getEnv("ALERT_MANUAL_REVIEW_QUEUE", "hitl:manual_review")

	cfg.Notify.MQTTTopic = getEnv("NOTIFY_MQTT_TOPIC", "tamgiao/hitl/alerts")
	cfg.Notify.EmailWebhook = getEnv("NOTIFY_EMAIL_WEBHOOK", "")
	cfg.Notify.SMSGateway = getEnv("NOTIFY_SMS_GATEWAY", "")
	cfg.Notify.TimeoutSec = getEnvInt("NOTIFY_TIMEOUT_SEC", 10)

	cfg.Moderation.RulesPath = getEnv("MODERATION_RULES_PATH", "")

	cfg.Privacy.RedactMessages = getEnvBool("PRIVACY_REDACT_MESSAGES", false)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
