package models

import (
	"time"
)

// AlertStatus tracks the lifecycle of a critical alert.
type AlertStatus string

const (
	AlertPending      AlertStatus = "pending"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// RiskType classifies what kind of crisis an alert represents.
type RiskType string

const (
	RiskTypeSuicidal  RiskType = "suicidal"
	RiskTypeSelfHarm  RiskType = "self_harm"
	RiskTypeViolence  RiskType = "violence"
	RiskTypePsychosis RiskType = "psychosis"
)

// CriticalAlert is the central HITL entity (maps to the critical_alerts table).
// At most one non-resolved alert exists per (user_id, session_id, risk_type);
// a second critical message in the same conversation reuses or upgrades the
// existing alert instead of creating a duplicate.
type CriticalAlert struct {
	AlertID          string      `json:"alert_id" db:"alert_id"`
	UserID           string      `json:"user_id" db:"user_id"`
	SessionID        string      `json:"session_id" db:"session_id"`
	RiskType         RiskType    `json:"risk_type" db:"risk_type"`
	RiskLevel        RiskLevel   `json:"risk_level" db:"risk_level"`
	RiskScore        float64     `json:"risk_score" db:"risk_score"`
	Status           AlertStatus `json:"status" db:"status"`
	UserMessage      string      `json:"user_message" db:"user_message"` // subject to redaction
	MessageDigest    string      `json:"message_digest" db:"message_digest"`
	DetectedKeywords []string    `json:"detected_keywords" db:"detected_keywords"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
	AcknowledgedBy   *string     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgedAt   *time.Time  `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	Resolution       *string     `json:"resolution,omitempty" db:"resolution"`
	ResolvedAt       *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`

	// EscalationRound counts how many times the escalation timer has fired
	// without acknowledgment. 0 means never escalated.
	EscalationRound int `json:"escalation_round" db:"escalation_round"`

	// Metadata embeds the triggering moderation summary (JSONB in Postgres).
	Metadata AlertMetadata `json:"metadata" db:"metadata"`

	// NotifiedChannels records every dispatch outcome for audit (JSONB).
	NotifiedChannels []DispatchOutcome `json:"notified_channels" db:"notified_channels"`
}

// AlertMetadata is the strictly-typed extension payload stored with an alert.
type AlertMetadata struct {
	Moderation ModerationResult `json:"moderation"`
	// Extra carries forward-compatible metadata; keys are free-form but values
	// must be JSON-serializable strings to stay auditable.
	Extra map[string]string `json:"extra,omitempty"`
}

// DispatchOutcome is the per-channel result of one notification fan-out.
// A failed channel is recorded here, never surfaced as an error to the caller.
type DispatchOutcome struct {
	Channel   string    `json:"channel"`
	Escalated bool      `json:"escalated"`
	Success   bool      `json:"success"`
	Skipped   bool      `json:"skipped,omitempty"` // channel not configured
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Active reports whether the alert still needs a human.
func (a *CriticalAlert) Active() bool {
	return a.Status != AlertResolved
}

// ActiveKey is the dedupe key for the active-alert index.
func (a *CriticalAlert) ActiveKey() string {
	return ActiveAlertKey(a.UserID, a.SessionID, a.RiskType)
}

// ActiveAlertKey builds the (user, session, riskType) composite key.
func ActiveAlertKey(userID, sessionID string, riskType RiskType) string {
	return userID + "|" + sessionID + "|" + string(riskType)
}
