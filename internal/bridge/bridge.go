package bridge

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tamgiao-hitl/internal/alert"
	"tamgiao-hitl/internal/models"
	"tamgiao-hitl/internal/moderation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Lifecycle is the alert-manager surface the bridge drives when clinicians
// act over the websocket.
type Lifecycle interface {
	AcknowledgeAlert(alertID, clinicianID string, notes *string) (*models.CriticalAlert, error)
	ResolveAlert(alertID, resolution string) (*models.CriticalAlert, error)
}

// clinicianConn pairs a clinician console session with its live connection.
// The client is nil while the clinician is disconnected but still bound.
type clinicianConn struct {
	session models.ClinicianSession
	client  *Client
}

// intervention is one live clinician/user conversation over an alert. The
// transcript is kept until the intervention closes so either side can
// reconnect and replay missed messages.
type intervention struct {
	alertID       string
	sessionID     string
	userID        string
	clinicianID   string
	clinicianName string
	expertSeq     uint64
	userSeq       uint64
	transcript    []Event
}

// Bridge routes realtime traffic between clinician consoles and user chat
// sessions, and implements the binding surface of the alert lifecycle.
//
// Locking rule: b.mu guards the maps only. Targets are collected under the
// lock and written to after release, because a slow client's disconnect path
// re-enters the lock.
type Bridge struct {
	lifecycle      Lifecycle
	redactMessages bool
	logger         *zap.Logger
	upgrader       websocket.Upgrader

	mu            sync.RWMutex
	clinicians    map[string]*clinicianConn // clinicianID -> console
	users         map[string]*Client        // sessionID -> user connection
	interventions map[string]*intervention  // alertID -> live intervention
	byClinician   map[string]string         // clinicianID -> alertID
	bySession     map[string]string         // sessionID -> alertID
}

// New creates the bridge. The lifecycle is attached at construction; the
// reverse edge (alert manager -> bridge) is wired via alert.Manager.SetBinder.
func New(lifecycle Lifecycle, redactMessages bool, logger *zap.Logger) *Bridge {
	return &Bridge{
		lifecycle:      lifecycle,
		redactMessages: redactMessages,
		logger:         logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks belong to the fronting proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clinicians:    make(map[string]*clinicianConn),
		users:         make(map[string]*Client),
		interventions: make(map[string]*intervention),
		byClinician:   make(map[string]string),
		bySession:     make(map[string]string),
	}
}

// ServeClinician upgrades an HTTP request into a clinician console connection.
func (b *Bridge) ServeClinician(w http.ResponseWriter, r *http.Request, clinicianID, name string) error {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade clinician connection: %w", err)
	}
	c := &Client{
		bridge: b,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		role:   RoleClinician,
		id:     clinicianID,
		name:   name,
	}
	b.attachClinician(c)
	go c.writePump()
	go c.readPump()
	return nil
}

// ServeUser upgrades an HTTP request into a user session connection.
func (b *Bridge) ServeUser(w http.ResponseWriter, r *http.Request, sessionID, userID string) error {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade user connection: %w", err)
	}
	c := &Client{
		bridge: b,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		role:   RoleUser,
		id:     sessionID,
		name:   userID,
	}
	b.attachUser(c)
	go c.writePump()
	go c.readPump()
	return nil
}

func (b *Bridge) attachClinician(c *Client) {
	var replay []Event

	b.mu.Lock()
	if prev, ok := b.clinicians[c.id]; ok && prev.client != nil && prev.client != c {
		prev.client.closeSend()
	}
	cc := &clinicianConn{
		session: models.ClinicianSession{
			ClinicianID:  c.id,
			Name:         c.name,
			Availability: models.AvailabilityAvailable,
			ConnectedAt:  time.Now(),
		},
		client: c,
	}
	// Reconnect while still bound: resume the intervention and replay the
	// user messages sent while disconnected.
	if alertID, bound := b.byClinician[c.id]; bound {
		cc.session.Availability = models.AvailabilityBusy
		cc.session.ActiveAlertID = &alertID
		if iv, ok := b.interventions[alertID]; ok {
			replay = transcriptFor(iv, EventUserMessage)
		}
	}
	b.clinicians[c.id] = cc
	b.mu.Unlock()

	b.logger.Info("Clinician console connected",
		zap.String("clinician_id", c.id),
		zap.Int("replayed_events", len(replay)),
	)
	for _, ev := range replay {
		if !c.enqueue(ev) {
			return
		}
	}
}

func (b *Bridge) attachUser(c *Client) {
	var replay []Event

	b.mu.Lock()
	if prev, ok := b.users[c.id]; ok && prev != c {
		prev.closeSend()
	}
	b.users[c.id] = c
	if alertID, bound := b.bySession[c.id]; bound {
		if iv, ok := b.interventions[alertID]; ok {
			replay = transcriptFor(iv, EventExpertMessage)
		}
	}
	b.mu.Unlock()

	b.logger.Info("User session connected",
		zap.String("session_id", c.id),
		zap.Int("replayed_events", len(replay)),
	)
	for _, ev := range replay {
		if !c.enqueue(ev) {
			return
		}
	}
}

// unregister detaches a connection. A bound clinician's intervention
// survives the disconnect so a reconnect can resume it.
func (b *Bridge) unregister(c *Client) {
	b.mu.Lock()
	switch c.role {
	case RoleClinician:
		if cc, ok := b.clinicians[c.id]; ok && cc.client == c {
			delete(b.clinicians, c.id)
		}
	case RoleUser:
		if cur, ok := b.users[c.id]; ok && cur == c {
			delete(b.users, c.id)
		}
	}
	b.mu.Unlock()
	c.closeSend()
}

// handleInbound dispatches one parsed event from a connection.
func (b *Bridge) handleInbound(c *Client, ev Event) {
	switch {
	case c.role == RoleClinician && ev.Type == EventJoinIntervention:
		b.joinIntervention(c, ev.AlertID)
	case c.role == RoleClinician && ev.Type == EventExpertMessage:
		b.relayExpert(c, ev.Body)
	case c.role == RoleClinician && ev.Type == EventCloseIntervention:
		b.closeIntervention(c, ev.Body)
	case c.role == RoleUser && ev.Type == EventUserMessage:
		b.relayUser(c, ev.Body)
	default:
		c.enqueue(Event{
			Type: EventError,
			Body: fmt.Sprintf("event %q not allowed for role %s", ev.Type, c.role),
			At:   time.Now(),
		})
	}
}

// joinIntervention runs the acknowledge flow for a console takeover. The
// lifecycle call happens outside b.mu; it re-enters the bridge through
// BindClinician.
func (b *Bridge) joinIntervention(c *Client, alertID string) {
	if alertID == "" {
		c.enqueue(Event{Type: EventError, Body: "join_intervention requires alert_id", At: time.Now()})
		return
	}

	a, err := b.lifecycle.AcknowledgeAlert(alertID, c.id, nil)
	if err != nil {
		c.enqueue(Event{Type: EventError, AlertID: alertID, Body: joinErrorBody(err), At: time.Now()})
		return
	}

	b.mu.Lock()
	iv := b.interventions[alertID]
	if iv != nil {
		iv.clinicianName = c.name
	}
	var userClient *Client
	if iv != nil {
		userClient = b.users[iv.sessionID]
	}
	b.mu.Unlock()

	joined := Event{
		Type:      EventJoined,
		AlertID:   alertID,
		SessionID: a.SessionID,
		From:      c.name,
		At:        time.Now(),
	}
	c.enqueue(joined)
	if userClient != nil {
		userClient.enqueue(joined)
	}

	b.logger.Info("Clinician joined intervention",
		zap.String("alert_id", alertID),
		zap.String("clinician_id", c.id),
		zap.String("session_id", a.SessionID),
	)
}

func joinErrorBody(err error) string {
	switch {
	case errors.Is(err, alert.ErrNotFound):
		return "alert not found"
	case errors.Is(err, alert.ErrConflict):
		return "alert already handled by another clinician"
	case errors.Is(err, alert.ErrInvalidState):
		return "alert is not pending"
	default:
		return "failed to join intervention"
	}
}

// relayExpert forwards clinician text to the bound user session.
func (b *Bridge) relayExpert(c *Client, body string) {
	if body == "" {
		return
	}

	b.mu.Lock()
	alertID, bound := b.byClinician[c.id]
	if !bound {
		b.mu.Unlock()
		c.enqueue(Event{Type: EventError, Body: "no active intervention", At: time.Now()})
		return
	}
	iv := b.interventions[alertID]
	iv.expertSeq++
	ev := Event{
		Type:      EventExpertMessage,
		AlertID:   alertID,
		SessionID: iv.sessionID,
		From:      c.name,
		Body:      body,
		Seq:       iv.expertSeq,
		At:        time.Now(),
	}
	iv.transcript = append(iv.transcript, ev)
	target := b.users[iv.sessionID]
	b.mu.Unlock()

	// A disconnected user still gets the message from the transcript replay.
	if target != nil {
		target.enqueue(ev)
	}
}

// relayUser forwards user text to the bound clinician console.
func (b *Bridge) relayUser(c *Client, body string) {
	if body == "" {
		return
	}

	b.mu.Lock()
	alertID, bound := b.bySession[c.id]
	if !bound {
		b.mu.Unlock()
		c.enqueue(Event{Type: EventError, Body: "no active intervention for this session", At: time.Now()})
		return
	}
	iv := b.interventions[alertID]
	iv.userSeq++
	ev := Event{
		Type:      EventUserMessage,
		AlertID:   alertID,
		SessionID: c.id,
		From:      iv.userID,
		Body:      body,
		Seq:       iv.userSeq,
		At:        time.Now(),
	}
	iv.transcript = append(iv.transcript, ev)
	var target *Client
	if cc, ok := b.clinicians[iv.clinicianID]; ok {
		target = cc.client
	}
	b.mu.Unlock()

	if target != nil {
		target.enqueue(ev)
	}
}

// closeIntervention resolves the alert; the lifecycle calls back into
// ReleaseAlert which tears the intervention down and notifies both sides.
func (b *Bridge) closeIntervention(c *Client, resolution string) {
	b.mu.RLock()
	alertID, bound := b.byClinician[c.id]
	b.mu.RUnlock()
	if !bound {
		c.enqueue(Event{Type: EventError, Body: "no active intervention", At: time.Now()})
		return
	}

	if resolution == "" {
		resolution = "resolved_by_clinician"
	}
	if _, err := b.lifecycle.ResolveAlert(alertID, resolution); err != nil {
		c.enqueue(Event{Type: EventError, AlertID: alertID, Body: "failed to close intervention", At: time.Now()})
		return
	}
}

// BindClinician reserves an alert for one clinician. Part of the
// alert.Binder surface; called by the lifecycle during acknowledgment, so it
// must succeed or fail without touching the lifecycle again. The snapshot
// carries the session route, so restored alerts and acknowledgments that
// land before any console push still get a fully wired intervention.
func (b *Bridge) BindClinician(clinicianID string, a *models.CriticalAlert) error {
	alertID := a.AlertID

	b.mu.Lock()
	defer b.mu.Unlock()

	if iv, ok := b.interventions[alertID]; ok && iv.clinicianID != clinicianID {
		return fmt.Errorf("alert %s already bound to clinician %s: %w", alertID, iv.clinicianID, alert.ErrConflict)
	}
	if other, busy := b.byClinician[clinicianID]; busy && other != alertID {
		return fmt.Errorf("clinician %s already handling alert %s: %w", clinicianID, other, alert.ErrConflict)
	}

	if _, ok := b.interventions[alertID]; !ok {
		b.interventions[alertID] = &intervention{
			alertID:     alertID,
			sessionID:   a.SessionID,
			userID:      a.UserID,
			clinicianID: clinicianID,
		}
		if a.SessionID != "" {
			b.bySession[a.SessionID] = alertID
		}
	}
	b.byClinician[clinicianID] = alertID

	if cc, ok := b.clinicians[clinicianID]; ok {
		cc.session.Availability = models.AvailabilityBusy
		id := alertID
		cc.session.ActiveAlertID = &id
	}
	return nil
}

// ReleaseAlert tears down the binding and intervention for an alert. Part of
// the alert.Binder surface; called by the lifecycle on resolution. Safe to
// call for alerts that never had an intervention.
func (b *Bridge) ReleaseAlert(alertID string) {
	b.mu.Lock()
	iv := b.interventions[alertID]
	delete(b.interventions, alertID)

	var clinicianClient, userClient *Client
	var sessionID string
	if iv != nil {
		delete(b.byClinician, iv.clinicianID)
		delete(b.bySession, iv.sessionID)
		sessionID = iv.sessionID
		if cc, ok := b.clinicians[iv.clinicianID]; ok {
			cc.session.Availability = models.AvailabilityAvailable
			cc.session.ActiveAlertID = nil
			clinicianClient = cc.client
		}
		userClient = b.users[iv.sessionID]
	}
	b.mu.Unlock()

	if iv == nil {
		return
	}

	closed := Event{
		Type:      EventInterventionClosed,
		AlertID:   alertID,
		SessionID: sessionID,
		At:        time.Now(),
	}
	if clinicianClient != nil {
		clinicianClient.enqueue(closed)
	}
	if userClient != nil {
		userClient.enqueue(closed)
	}

	b.logger.Info("Intervention released",
		zap.String("alert_id", alertID),
		zap.String("clinician_id", iv.clinicianID),
	)
}

// PushAlert fans a new or escalated alert out to every available clinician
// console. Part of the alert.Binder surface.
func (b *Bridge) PushAlert(a *models.CriticalAlert, escalated bool) {
	out := *a
	if b.redactMessages {
		out.UserMessage = moderation.RedactionPlaceholder
	}
	ev := Event{
		Type:      EventHITLAlert,
		AlertID:   a.AlertID,
		SessionID: a.SessionID,
		Escalated: escalated,
		Alert:     &out,
		At:        time.Now(),
	}

	b.mu.Lock()
	targets := make([]*Client, 0, len(b.clinicians))
	for _, cc := range b.clinicians {
		if cc.session.Availability == models.AvailabilityAvailable && cc.client != nil {
			targets = append(targets, cc.client)
		}
	}
	b.mu.Unlock()

	for _, t := range targets {
		t.enqueue(ev)
	}

	b.logger.Info("Alert pushed to clinician consoles",
		zap.String("alert_id", a.AlertID),
		zap.Bool("escalated", escalated),
		zap.Int("console_count", len(targets)),
	)
}

// Clinicians returns a snapshot of the connected console sessions.
func (b *Bridge) Clinicians() []models.ClinicianSession {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.ClinicianSession, 0, len(b.clinicians))
	for _, cc := range b.clinicians {
		out = append(out, cc.session)
	}
	return out
}

func transcriptFor(iv *intervention, direction EventType) []Event {
	var out []Event
	for _, ev := range iv.transcript {
		if ev.Type == direction {
			out = append(out, ev)
		}
	}
	return out
}
