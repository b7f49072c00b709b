package notify

import (
	"time"

	"tamgiao-hitl/internal/models"
)

// alertPayload is the wire shape shared by all channels. It deliberately
// carries the message digest instead of raw text: notification transports
// never see user content.
type alertPayload struct {
	AlertID         string           `json:"alert_id"`
	UserID          string           `json:"user_id"`
	SessionID       string           `json:"session_id"`
	RiskType        models.RiskType  `json:"risk_type"`
	RiskLevel       models.RiskLevel `json:"risk_level"`
	RiskScore       float64          `json:"risk_score"`
	Keywords        []string         `json:"detected_keywords"`
	MessageDigest   string           `json:"message_digest"`
	Escalated       bool             `json:"escalated"`
	EscalationRound int              `json:"escalation_round"`
	CreatedAt       time.Time        `json:"created_at"`
}

func payloadFor(alert *models.CriticalAlert, escalated bool) alertPayload {
	return alertPayload{
		AlertID:         alert.AlertID,
		UserID:          alert.UserID,
		SessionID:       alert.SessionID,
		RiskType:        alert.RiskType,
		RiskLevel:       alert.RiskLevel,
		RiskScore:       alert.RiskScore,
		Keywords:        alert.DetectedKeywords,
		MessageDigest:   alert.MessageDigest,
		Escalated:       escalated,
		EscalationRound: alert.EscalationRound,
		CreatedAt:       alert.CreatedAt,
	}
}
