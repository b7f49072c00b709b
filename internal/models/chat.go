package models

// Hotline is crisis-line contact info attached to replies at critical risk.
type Hotline struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Available string `json:"available"`
}

// ChatReply is the user-visible outcome of scoring one chat message. The
// reply is always present; detection and alerting failures never remove it.
type ChatReply struct {
	Reply      string            `json:"reply"`
	RiskLevel  RiskLevel         `json:"risk_level"`
	Hotline    *Hotline          `json:"hotline,omitempty"`
	AlertID    string            `json:"alert_id,omitempty"`
	Moderation *ModerationResult `json:"moderation,omitempty"`
}
