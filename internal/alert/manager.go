package alert

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tamgiao-hitl/internal/config"
	"tamgiao-hitl/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier fans an alert out to the configured channels. Implementations must
// never return an error; per-channel failures come back as outcomes.
type Notifier interface {
	Dispatch(ctx context.Context, alert *models.CriticalAlert, escalated bool) []models.DispatchOutcome
}

// Binder is the realtime-bridge surface the lifecycle needs: bind a clinician
// to an alert on acknowledgment, release the binding on resolution, and push
// alert events to connected clinician consoles.
type Binder interface {
	// BindClinician receives the alert snapshot so the bridge can route the
	// intervention without ever calling back into the manager.
	BindClinician(clinicianID string, a *models.CriticalAlert) error
	ReleaseAlert(alertID string)
	PushAlert(alert *models.CriticalAlert, escalated bool)
}

// Store is the durable side of the lifecycle. A nil Store (or a failing one)
// degrades the manager to in-memory-only operation; it never fails the chat.
type Store interface {
	CreateAlert(ctx context.Context, a *models.CriticalAlert) error
	MarkAcknowledged(ctx context.Context, alertID, clinicianID string, at time.Time) error
	MarkResolved(ctx context.Context, alertID, resolution string, at time.Time) error
	UpgradeRisk(ctx context.Context, alertID string, level models.RiskLevel, score float64, keywords []string) error
	RecordOutcomes(ctx context.Context, alertID string, outcomes []models.DispatchOutcome) error
}

// managedAlert pairs the alert record with its own lock and escalation timer.
// The lock serializes every mutation of this alert; the manager-level lock
// only guards the maps, so independent alerts proceed concurrently.
type managedAlert struct {
	mu    sync.Mutex
	alert *models.CriticalAlert
	timer *time.Timer
}

// Manager owns the critical-alert state machine: creation, escalation,
// acknowledgment, resolution. It is the sole source of truth for "is a human
// currently responsible for this user".
type Manager struct {
	cfg      *config.Config
	logger   *zap.Logger
	notifier Notifier
	store    Store
	cache    *StateCache
	audit    *AuditTrail

	binderMu sync.RWMutex
	binder   Binder

	mu          sync.RWMutex
	byID        map[string]*managedAlert
	activeIndex map[string]string // ActiveAlertKey -> alert id
}

// NewManager creates the lifecycle manager. store, cache and audit may be nil
// (degraded operation); the binder is attached later via SetBinder because
// the bridge needs the manager first.
func NewManager(cfg *config.Config, notifier Notifier, store Store, cache *StateCache, audit *AuditTrail, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		logger:      logger,
		notifier:    notifier,
		store:       store,
		cache:       cache,
		audit:       audit,
		byID:        make(map[string]*managedAlert),
		activeIndex: make(map[string]string),
	}
}

// SetBinder attaches the realtime bridge.
func (m *Manager) SetBinder(b Binder) {
	m.binderMu.Lock()
	m.binder = b
	m.binderMu.Unlock()
}

func (m *Manager) getBinder() Binder {
	m.binderMu.RLock()
	defer m.binderMu.RUnlock()
	return m.binder
}

// CreateDetails carries everything a qualifying moderation result contributes
// to a new alert.
type CreateDetails struct {
	RiskType         models.RiskType
	RiskLevel        models.RiskLevel
	RiskScore        float64
	UserMessage      string
	MessageDigest    string
	DetectedKeywords []string
	Moderation       models.ModerationResult
}

// CreateCriticalAlert creates a new alert, or returns the existing active one
// for the same (user, session, riskType) key. A duplicate with a higher score
// upgrades the stored risk in place. Notification fan-out and persistence run
// asynchronously; creation never blocks on them.
func (m *Manager) CreateCriticalAlert(ctx context.Context, userID, sessionID string, details CreateDetails) (*models.CriticalAlert, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	if details.RiskType == "" {
		return nil, fmt.Errorf("%w: risk_type is required", ErrValidation)
	}

	key := models.ActiveAlertKey(userID, sessionID, details.RiskType)

	m.mu.Lock()
	if id, ok := m.activeIndex[key]; ok {
		ma := m.byID[id]
		m.mu.Unlock()
		return m.reuseActive(ma, details), nil
	}

	now := time.Now()
	a := &models.CriticalAlert{
		AlertID:          uuid.New().String(),
		UserID:           userID,
		SessionID:        sessionID,
		RiskType:         details.RiskType,
		RiskLevel:        details.RiskLevel,
		RiskScore:        details.RiskScore,
		Status:           models.AlertPending,
		UserMessage:      details.UserMessage,
		MessageDigest:    details.MessageDigest,
		DetectedKeywords: details.DetectedKeywords,
		CreatedAt:        now,
		UpdatedAt:        now,
		Metadata:         models.AlertMetadata{Moderation: details.Moderation},
	}
	ma := &managedAlert{alert: a}
	m.byID[a.AlertID] = ma
	m.activeIndex[key] = a.AlertID
	m.mu.Unlock()

	ma.mu.Lock()
	ma.timer = time.AfterFunc(m.escalationWindow(), func() { m.escalate(a.AlertID) })
	snapshot := *a
	ma.mu.Unlock()

	m.logger.Info("Critical alert created",
		zap.String("alert_id", a.AlertID),
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.String("risk_type", string(details.RiskType)),
		zap.String("risk_level", string(details.RiskLevel)),
		zap.Float64("risk_score", details.RiskScore),
	)

	go m.afterCreate(&snapshot)

	result := snapshot
	return &result, nil
}

// afterCreate runs the non-blocking side of creation: durable write, state
// cache, audit trail, notification fan-out, clinician console push.
func (m *Manager) afterCreate(a *models.CriticalAlert) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if m.store != nil {
		if err := m.store.CreateAlert(ctx, a); err != nil {
			// Paging-level: the alert is live in memory but has no durable copy.
			m.logger.Error("Failed to persist critical alert, continuing in-memory",
				zap.String("alert_id", a.AlertID),
				zap.Bool("safety_event", true),
				zap.Error(err),
			)
		}
	}
	if m.cache != nil {
		m.cache.PutActive(ctx, a)
	}
	if m.audit != nil {
		m.audit.Append(ctx, a.AlertID, "created", map[string]string{
			"risk_type":  string(a.RiskType),
			"risk_level": string(a.RiskLevel),
		})
	}

	if b := m.getBinder(); b != nil {
		b.PushAlert(a, false)
	}

	outcomes := m.notifier.Dispatch(ctx, a, false)
	m.recordOutcomes(ctx, a.AlertID, outcomes)
}

// reuseActive enforces the one-active-alert invariant: the existing alert id
// is returned and, when the new result is worse, the stored risk is upgraded.
func (m *Manager) reuseActive(ma *managedAlert, details CreateDetails) *models.CriticalAlert {
	ma.mu.Lock()
	a := ma.alert
	upgraded := false
	if details.RiskScore > a.RiskScore {
		a.RiskScore = details.RiskScore
		if details.RiskLevel.Rank() > a.RiskLevel.Rank() {
			a.RiskLevel = details.RiskLevel
		}
		a.DetectedKeywords = mergeKeywords(a.DetectedKeywords, details.DetectedKeywords)
		a.UpdatedAt = time.Now()
		upgraded = true
	}
	snapshot := *a
	ma.mu.Unlock()

	m.logger.Info("Reusing active alert for duplicate critical message",
		zap.String("alert_id", snapshot.AlertID),
		zap.Bool("upgraded", upgraded),
	)

	if upgraded {
		go func() {
			uctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if m.store != nil {
				if err := m.store.UpgradeRisk(uctx, snapshot.AlertID, snapshot.RiskLevel, snapshot.RiskScore, snapshot.DetectedKeywords); err != nil {
					m.logger.Error("Failed to persist risk upgrade",
						zap.String("alert_id", snapshot.AlertID),
						zap.Error(err),
					)
				}
			}
			if m.cache != nil {
				m.cache.PutActive(uctx, &snapshot)
			}
			if m.audit != nil {
				m.audit.Append(uctx, snapshot.AlertID, "superseded", map[string]string{
					"risk_level": string(snapshot.RiskLevel),
				})
			}
		}()
	}
	result := snapshot
	return &result
}

// AcknowledgeAlert moves a pending alert to acknowledged: cancels the
// escalation timer, records the clinician, and binds them via the bridge.
func (m *Manager) AcknowledgeAlert(alertID, clinicianID string, notes *string) (*models.CriticalAlert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert_id is required", ErrValidation)
	}
	if clinicianID == "" {
		return nil, fmt.Errorf("%w: clinician_id is required", ErrValidation)
	}

	ma := m.lookup(alertID)
	if ma == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, alertID)
	}

	ma.mu.Lock()
	a := ma.alert
	if a.Status == models.AlertResolved {
		ma.mu.Unlock()
		return nil, fmt.Errorf("%w: alert %s is already resolved", ErrInvalidState, alertID)
	}
	if a.Status == models.AlertAcknowledged {
		ma.mu.Unlock()
		return nil, fmt.Errorf("%w: alert %s is already acknowledged by %s", ErrInvalidState, alertID, deref(a.AcknowledgedBy))
	}

	// Bind before mutating so a conflict leaves the alert untouched. The
	// binder gets a copy of the record, never the live pointer.
	if b := m.getBinder(); b != nil {
		bindSnapshot := *a
		if err := b.BindClinician(clinicianID, &bindSnapshot); err != nil {
			ma.mu.Unlock()
			return nil, err
		}
	}

	m.stopTimerLocked(ma)
	now := time.Now()
	a.Status = models.AlertAcknowledged
	a.AcknowledgedBy = &clinicianID
	a.AcknowledgedAt = &now
	a.UpdatedAt = now
	if notes != nil && *notes != "" {
		if a.Metadata.Extra == nil {
			a.Metadata.Extra = make(map[string]string)
		}
		a.Metadata.Extra["ack_notes"] = *notes
	}
	snapshot := *a
	ma.mu.Unlock()

	m.logger.Info("Alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("clinician_id", clinicianID),
	)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if m.store != nil {
			if err := m.store.MarkAcknowledged(ctx, alertID, clinicianID, now); err != nil {
				m.logger.Error("Failed to persist acknowledgment",
					zap.String("alert_id", alertID),
					zap.Error(err),
				)
			}
		}
		if m.cache != nil {
			m.cache.PutActive(ctx, &snapshot)
		}
		if m.audit != nil {
			m.audit.Append(ctx, alertID, "acknowledged", map[string]string{
				"clinician_id": clinicianID,
			})
		}
	}()

	return &snapshot, nil
}

// ResolveAlert closes an alert from pending or acknowledged state, cancels
// any live timer, releases the clinician binding and drops the alert from the
// active index. The record itself is retained for audit.
func (m *Manager) ResolveAlert(alertID, resolution string) (*models.CriticalAlert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("%w: alert_id is required", ErrValidation)
	}
	if resolution == "" {
		return nil, fmt.Errorf("%w: resolution is required", ErrValidation)
	}

	ma := m.lookup(alertID)
	if ma == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, alertID)
	}

	ma.mu.Lock()
	a := ma.alert
	if a.Status == models.AlertResolved {
		ma.mu.Unlock()
		return nil, fmt.Errorf("%w: alert %s is already resolved", ErrInvalidState, alertID)
	}

	m.stopTimerLocked(ma)
	now := time.Now()
	a.Status = models.AlertResolved
	a.Resolution = &resolution
	a.ResolvedAt = &now
	a.UpdatedAt = now
	snapshot := *a
	ma.mu.Unlock()

	m.mu.Lock()
	delete(m.activeIndex, snapshot.ActiveKey())
	m.mu.Unlock()

	if b := m.getBinder(); b != nil {
		b.ReleaseAlert(alertID)
	}

	m.logger.Info("Alert resolved",
		zap.String("alert_id", alertID),
		zap.String("resolution", resolution),
	)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if m.store != nil {
			if err := m.store.MarkResolved(ctx, alertID, resolution, now); err != nil {
				m.logger.Error("Failed to persist resolution",
					zap.String("alert_id", alertID),
					zap.Error(err),
				)
			}
		}
		if m.cache != nil {
			m.cache.DropActive(ctx, &snapshot)
		}
		if m.audit != nil {
			m.audit.Append(ctx, alertID, "resolved", map[string]string{
				"resolution": resolution,
			})
		}
	}()

	return &snapshot, nil
}

// escalate fires when the escalation timer expires. A racing acknowledgment
// or resolution wins: the fire re-checks status under the alert lock and
// no-ops on anything but pending.
func (m *Manager) escalate(alertID string) {
	ma := m.lookup(alertID)
	if ma == nil {
		return
	}

	ma.mu.Lock()
	a := ma.alert
	if a.Status != models.AlertPending {
		ma.mu.Unlock()
		return
	}

	a.EscalationRound++
	a.UpdatedAt = time.Now()
	round := a.EscalationRound
	exhausted := round >= m.maxEscalations()
	if !exhausted {
		ma.timer = time.AfterFunc(m.escalationWindow(), func() { m.escalate(alertID) })
	} else {
		ma.timer = nil
	}
	snapshot := *a
	ma.mu.Unlock()

	m.logger.Warn("Alert escalated: no acknowledgment within window",
		zap.String("alert_id", alertID),
		zap.Int("round", round),
		zap.Bool("rounds_exhausted", exhausted),
		zap.Bool("safety_event", true),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if b := m.getBinder(); b != nil {
		b.PushAlert(&snapshot, true)
	}

	outcomes := m.notifier.Dispatch(ctx, &snapshot, true)
	m.recordOutcomes(ctx, alertID, outcomes)

	if m.audit != nil {
		m.audit.Append(ctx, alertID, "escalated", map[string]string{
			"round": fmt.Sprintf("%d", round),
		})
	}

	if exhausted {
		// Bounded retries are over; hand the alert to the manual-review queue
		// instead of re-notifying forever.
		if m.cache != nil {
			if err := m.cache.PushManualReview(ctx, alertID); err != nil {
				m.logger.Error("Failed to enqueue alert for manual review",
					zap.String("alert_id", alertID),
					zap.Bool("safety_event", true),
					zap.Error(err),
				)
			}
		} else {
			m.logger.Error("Alert requires manual review and no queue is available",
				zap.String("alert_id", alertID),
				zap.Bool("safety_event", true),
			)
		}
	}
}

// recordOutcomes appends dispatch outcomes to the alert for audit.
func (m *Manager) recordOutcomes(ctx context.Context, alertID string, outcomes []models.DispatchOutcome) {
	if len(outcomes) == 0 {
		return
	}
	ma := m.lookup(alertID)
	if ma == nil {
		return
	}
	ma.mu.Lock()
	ma.alert.NotifiedChannels = append(ma.alert.NotifiedChannels, outcomes...)
	ma.mu.Unlock()

	if m.store != nil {
		if err := m.store.RecordOutcomes(ctx, alertID, outcomes); err != nil {
			m.logger.Error("Failed to persist dispatch outcomes",
				zap.String("alert_id", alertID),
				zap.Error(err),
			)
		}
	}
}

// GetAlert returns a copy of the alert, historical or active.
func (m *Manager) GetAlert(alertID string) (*models.CriticalAlert, error) {
	ma := m.lookup(alertID)
	if ma == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, alertID)
	}
	ma.mu.Lock()
	snapshot := *ma.alert
	ma.mu.Unlock()
	return &snapshot, nil
}

// ListActive returns copies of every non-resolved alert, newest first.
func (m *Manager) ListActive() []*models.CriticalAlert {
	m.mu.RLock()
	mas := make([]*managedAlert, 0, len(m.activeIndex))
	for _, id := range m.activeIndex {
		if ma, ok := m.byID[id]; ok {
			mas = append(mas, ma)
		}
	}
	m.mu.RUnlock()

	out := make([]*models.CriticalAlert, 0, len(mas))
	for _, ma := range mas {
		ma.mu.Lock()
		if ma.alert.Active() {
			snapshot := *ma.alert
			out = append(out, &snapshot)
		}
		ma.mu.Unlock()
	}
	sortAlertsNewestFirst(out)
	return out
}

// Stats are alert counts by status and risk type, served from memory.
type Stats struct {
	Total      int                        `json:"total"`
	ByStatus   map[models.AlertStatus]int `json:"by_status"`
	ByRiskType map[models.RiskType]int    `json:"by_risk_type"`
}

// GetStats counts every alert the manager has seen this process lifetime.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	mas := make([]*managedAlert, 0, len(m.byID))
	for _, ma := range m.byID {
		mas = append(mas, ma)
	}
	m.mu.RUnlock()

	stats := Stats{
		ByStatus:   make(map[models.AlertStatus]int),
		ByRiskType: make(map[models.RiskType]int),
	}
	for _, ma := range mas {
		ma.mu.Lock()
		stats.Total++
		stats.ByStatus[ma.alert.Status]++
		stats.ByRiskType[ma.alert.RiskType]++
		ma.mu.Unlock()
	}
	return stats
}

// Restore re-adopts active alerts mirrored in the state cache after a
// restart. Pending alerts get a fresh escalation timer; acknowledged alerts
// wait for resolution. Alerts whose id or active key is already live are
// skipped.
func (m *Manager) Restore(alerts []*models.CriticalAlert) int {
	restored := 0
	for _, src := range alerts {
		if src == nil || !src.Active() {
			continue
		}
		a := *src

		m.mu.Lock()
		if _, exists := m.byID[a.AlertID]; exists {
			m.mu.Unlock()
			continue
		}
		if _, taken := m.activeIndex[a.ActiveKey()]; taken {
			m.mu.Unlock()
			continue
		}
		ma := &managedAlert{alert: &a}
		m.byID[a.AlertID] = ma
		m.activeIndex[a.ActiveKey()] = a.AlertID
		m.mu.Unlock()

		if a.Status == models.AlertPending {
			alertID := a.AlertID
			ma.mu.Lock()
			ma.timer = time.AfterFunc(m.escalationWindow(), func() { m.escalate(alertID) })
			ma.mu.Unlock()
		}
		restored++
	}
	if restored > 0 {
		m.logger.Info("Restored active alerts from state cache",
			zap.Int("count", restored),
		)
	}
	return restored
}

// Shutdown cancels every live escalation timer.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	mas := make([]*managedAlert, 0, len(m.byID))
	for _, ma := range m.byID {
		mas = append(mas, ma)
	}
	m.mu.RUnlock()

	for _, ma := range mas {
		ma.mu.Lock()
		m.stopTimerLocked(ma)
		ma.mu.Unlock()
	}
}

func (m *Manager) lookup(alertID string) *managedAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[alertID]
}

// stopTimerLocked cancels the escalation timer exactly once. Callers hold
// ma.mu; a fire that already raced past Stop re-checks status and no-ops.
func (m *Manager) stopTimerLocked(ma *managedAlert) {
	if ma.timer != nil {
		ma.timer.Stop()
		ma.timer = nil
	}
}

func (m *Manager) escalationWindow() time.Duration {
	sec := m.cfg.Alert.EscalationWindowSec
	if sec <= 0 {
		sec = 300
	}
	return time.Duration(sec) * time.Second
}

func (m *Manager) maxEscalations() int {
	if m.cfg.Alert.MaxEscalations <= 0 {
		return 3
	}
	return m.cfg.Alert.MaxEscalations
}

func mergeKeywords(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := existing
	for _, k := range existing {
		seen[k] = true
	}
	for _, k := range incoming {
		if !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sortAlertsNewestFirst(alerts []*models.CriticalAlert) {
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}
