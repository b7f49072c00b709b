package models

import "time"

// Availability of a clinician console session.
type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
	AvailabilityOffline   Availability = "offline"
)

// ClinicianSession is one connected clinician console. A clinician handles at
// most one intervention at a time; binding to an alert flips availability to
// busy until the intervention closes.
type ClinicianSession struct {
	ClinicianID   string       `json:"clinician_id"`
	Name          string       `json:"name"`
	Availability  Availability `json:"availability"`
	ActiveAlertID *string      `json:"active_alert_id,omitempty"`
	ConnectedAt   time.Time    `json:"connected_at"`
}

// InterventionFeedback is a clinician outcome note persisted for offline
// quality review. Not on the hot path.
type InterventionFeedback struct {
	FeedbackID  string    `json:"feedback_id" db:"feedback_id"`
	AlertID     string    `json:"alert_id" db:"alert_id"`
	ClinicianID string    `json:"clinician_id" db:"clinician_id"`
	Outcome     string    `json:"outcome" db:"outcome"` // e.g. stabilized, referred, false_alarm
	Notes       *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
