package bridge

import (
	"time"

	"tamgiao-hitl/internal/models"
)

// EventType discriminates the websocket envelope.
type EventType string

const (
	// EventHITLAlert is pushed to available clinician consoles when an alert
	// is created or escalates.
	EventHITLAlert EventType = "hitl_alert"
	// EventJoinIntervention is sent by a clinician to take over an alert.
	EventJoinIntervention EventType = "join_intervention"
	// EventJoined confirms the takeover to both the clinician and the user.
	EventJoined EventType = "joined"
	// EventExpertMessage relays clinician text to the user session.
	EventExpertMessage EventType = "expert_message"
	// EventUserMessage relays user text to the bound clinician.
	EventUserMessage EventType = "user_message"
	// EventCloseIntervention is sent by the clinician to end the intervention.
	EventCloseIntervention EventType = "close_intervention"
	// EventInterventionClosed notifies both sides that the intervention ended.
	EventInterventionClosed EventType = "intervention_closed"
	// EventError reports a rejected inbound event back to its sender.
	EventError EventType = "error"
)

// Event is the wire envelope for both websocket directions. Seq is a
// per-intervention, per-direction counter; together with the single writer
// pump it gives each receiver a gap-detectable total order.
type Event struct {
	Type      EventType             `json:"type"`
	AlertID   string                `json:"alert_id,omitempty"`
	SessionID string                `json:"session_id,omitempty"`
	From      string                `json:"from,omitempty"`
	Body      string                `json:"body,omitempty"`
	Seq       uint64                `json:"seq,omitempty"`
	Escalated bool                  `json:"escalated,omitempty"`
	Alert     *models.CriticalAlert `json:"alert,omitempty"`
	At        time.Time             `json:"at"`
}
