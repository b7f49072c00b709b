package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"tamgiao-hitl/internal/alert"
	"tamgiao-hitl/internal/bridge"
	"tamgiao-hitl/internal/config"
	httpapi "tamgiao-hitl/internal/http"
	"tamgiao-hitl/internal/moderation"
	"tamgiao-hitl/internal/notify"
	"tamgiao-hitl/internal/repository"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// HITLService wires the whole crisis pipeline: moderation, alert lifecycle,
// notification fan-out, realtime bridge and the HTTP surface.
//
// Postgres and Redis are best-effort dependencies: if either is unreachable
// at startup the service runs degraded (in-memory lifecycle only) rather
// than refusing to score messages.
type HITLService struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  mqtt.Client

	pipeline   *moderation.Pipeline
	manager    *alert.Manager
	dispatcher *notify.Dispatcher
	bridge     *bridge.Bridge
	stateCache *alert.StateCache
	feedback   *repository.FeedbackRepository

	httpServer *http.Server
}

// NewHITLService builds and wires every component. Only configuration errors
// (unreadable rule table) are fatal; missing backends degrade.
func NewHITLService(cfg *config.Config, logger *zap.Logger) (*HITLService, error) {
	s := &HITLService{
		config: cfg,
		logger: logger,
	}

	// 1. Postgres (optional)
	db, err := sql.Open("postgres", buildDSN(cfg))
	if err == nil {
		err = db.Ping()
	}
	if err != nil {
		logger.Warn("Database unavailable, running without persistence",
			zap.Error(err),
		)
		db = nil
	}
	s.db = db

	// 2. Redis (optional)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis unavailable, running without state cache and audit trail",
			zap.Error(err),
		)
		redisClient = nil
	}
	s.redisClient = redisClient

	// 3. Moderation pipeline (empty path falls back to the embedded table)
	rules, err := moderation.LoadRulesFromFile(cfg.Moderation.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load moderation rules: %w", err)
	}
	s.pipeline = moderation.NewPipeline(rules, logger)

	// 4. Repositories (nil store degrades the lifecycle to memory-only)
	var store alert.Store
	if db != nil {
		store = repository.NewAlertRepository(db, logger)
		s.feedback = repository.NewFeedbackRepository(db, logger)
	}

	var cache *alert.StateCache
	var audit *alert.AuditTrail
	if redisClient != nil {
		cache = alert.NewStateCache(cfg, redisClient, logger)
		audit = alert.NewAuditTrail(cfg, redisClient, logger)
	}
	s.stateCache = cache

	// 5. Notification channels
	s.mqttClient = connectMQTT(cfg, logger)
	timeout := time.Duration(cfg.Notify.TimeoutSec) * time.Second
	channels := []notify.Channel{
		notify.NewMQTTChannel(s.mqttClient, cfg.Notify.MQTTTopic),
		notify.NewEmailChannel(cfg.Notify.EmailWebhook, timeout),
		notify.NewSMSChannel(cfg.Notify.SMSGateway, timeout),
	}
	s.dispatcher = notify.NewDispatcher(channels, timeout, logger)

	// 6. Alert lifecycle + realtime bridge (mutual edge via SetBinder)
	s.manager = alert.NewManager(cfg, s.dispatcher, store, cache, audit, logger)
	s.bridge = bridge.New(s.manager, cfg.Privacy.RedactMessages, logger)
	s.manager.SetBinder(s.bridge)

	// 7. HTTP surface
	router := httpapi.NewRouter(logger)
	var sink httpapi.FeedbackSink
	if s.feedback != nil {
		sink = s.feedback
	}
	router.RegisterAlertRoutes(
		httpapi.NewAlertHandler(s.manager, cfg.Privacy.RedactMessages, logger),
		httpapi.NewFeedbackHandler(sink, logger),
	)
	router.RegisterChatRoutes(httpapi.NewChatHandler(s, logger))
	router.RegisterSocketRoutes(httpapi.NewSocketHandler(s.bridge, logger))
	router.RegisterHealthRoute(s.health)
	s.httpServer = &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: router,
	}

	return s, nil
}

// connectMQTT dials the roster broker. A missing broker or failed connect
// leaves the channel unconfigured instead of failing startup.
func connectMQTT(cfg *config.Config, logger *zap.Logger) mqtt.Client {
	if cfg.MQTT.Broker == "" {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		logger.Warn("MQTT broker unavailable, roster channel disabled",
			zap.String("broker", cfg.MQTT.Broker),
			zap.Error(token.Error()),
		)
		return nil
	}

	logger.Info("Connected to MQTT broker",
		zap.String("broker", cfg.MQTT.Broker),
	)
	return client
}

// Start restores state-cache alerts and serves HTTP until ctx is cancelled
// or the listener fails.
func (s *HITLService) Start(ctx context.Context) error {
	s.logger.Info("Starting HITL service",
		zap.String("listen_addr", s.config.HTTP.ListenAddr),
		zap.Bool("persistence", s.db != nil),
		zap.Bool("state_cache", s.redisClient != nil),
	)

	if s.stateCache != nil {
		if alerts, err := s.stateCache.LoadActive(ctx); err == nil {
			s.manager.Restore(alerts)
		} else {
			s.logger.Warn("Failed to load active alerts from state cache",
				zap.Error(err),
			)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}
}

// Stop shuts the HTTP server down, cancels escalation timers and closes
// every backend connection.
func (s *HITLService) Stop() error {
	s.logger.Info("Stopping HITL service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shut down http server",
			zap.Error(err),
		)
	}

	s.manager.Shutdown()

	if s.mqttClient != nil {
		s.mqttClient.Disconnect(250)
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database",
				zap.Error(err),
			)
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis",
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *HITLService) health() map[string]string {
	out := map[string]string{
		"database": "down",
		"redis":    "down",
		"mqtt":     "down",
	}
	if s.db != nil {
		if err := s.db.Ping(); err == nil {
			out["database"] = "up"
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Ping(context.Background()).Err(); err == nil {
			out["redis"] = "up"
		}
	}
	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		out["mqtt"] = "up"
	}
	return out
}

func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.SSLMode,
	)
}
