package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tamgiao-hitl/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// AlertRepository is the durable side of the alert lifecycle (critical_alerts
// table). The in-memory index stays authoritative for liveness; this is the
// audit copy, so write failures are reported to the caller and the caller
// decides how loudly to degrade.
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository creates the repository.
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// AlertFilters narrows List/Count queries. Nil fields are ignored.
type AlertFilters struct {
	UserID     *string
	SessionID  *string
	RiskType   *string
	RiskLevel  *string
	Status     *string
	Statuses   []string
	Since      *time.Time
	Until      *time.Time
	MinScore   *float64
	DigestOnly bool // omit user_message from results regardless of redaction flag
}

const alertColumns = `
	alert_id,
	user_id,
	session_id,
	risk_type,
	risk_level,
	risk_score,
	status,
	user_message,
	message_digest,
	detected_keywords,
	escalation_round,
	metadata,
	notified_channels,
	created_at,
	updated_at,
	acknowledged_by,
	acknowledged_at,
	resolution,
	resolved_at`

// CreateAlert inserts a new alert row.
func (r *AlertRepository) CreateAlert(ctx context.Context, a *models.CriticalAlert) error {
	if a == nil {
		return fmt.Errorf("alert is required")
	}
	if a.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal alert metadata: %w", err)
	}
	channels, err := json.Marshal(a.NotifiedChannels)
	if err != nil {
		return fmt.Errorf("failed to marshal notified channels: %w", err)
	}

	query := `
		INSERT INTO critical_alerts (` + alertColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
	`

	_, err = r.db.ExecContext(ctx,
		query,
		a.AlertID,
		a.UserID,
		a.SessionID,
		a.RiskType,
		a.RiskLevel,
		a.RiskScore,
		a.Status,
		a.UserMessage,
		a.MessageDigest,
		pq.Array(a.DetectedKeywords),
		a.EscalationRound,
		metadata,
		channels,
		a.CreatedAt,
		a.UpdatedAt,
		a.AcknowledgedBy,
		a.AcknowledgedAt,
		a.Resolution,
		a.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// MarkAcknowledged records the acknowledged transition.
func (r *AlertRepository) MarkAcknowledged(ctx context.Context, alertID, clinicianID string, at time.Time) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if clinicianID == "" {
		return fmt.Errorf("clinician_id is required")
	}

	query := `
		UPDATE critical_alerts
		SET status = 'acknowledged',
		    acknowledged_by = $2,
		    acknowledged_at = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE alert_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, alertID, clinicianID, at)
	if err != nil {
		return fmt.Errorf("failed to mark alert acknowledged: %w", err)
	}
	return requireRow(result, alertID)
}

// MarkResolved records the resolved transition.
func (r *AlertRepository) MarkResolved(ctx context.Context, alertID, resolution string, at time.Time) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if resolution == "" {
		return fmt.Errorf("resolution is required")
	}

	query := `
		UPDATE critical_alerts
		SET status = 'resolved',
		    resolution = $2,
		    resolved_at = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE alert_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, alertID, resolution, at)
	if err != nil {
		return fmt.Errorf("failed to mark alert resolved: %w", err)
	}
	return requireRow(result, alertID)
}

// UpgradeRisk raises the stored risk after a duplicate critical message.
func (r *AlertRepository) UpgradeRisk(ctx context.Context, alertID string, level models.RiskLevel, score float64, keywords []string) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	query := `
		UPDATE critical_alerts
		SET risk_level = $2,
		    risk_score = $3,
		    detected_keywords = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE alert_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, alertID, level, score, pq.Array(keywords))
	if err != nil {
		return fmt.Errorf("failed to upgrade alert risk: %w", err)
	}
	return requireRow(result, alertID)
}

// RecordOutcomes appends dispatch outcomes to the notified_channels JSONB
// array.
func (r *AlertRepository) RecordOutcomes(ctx context.Context, alertID string, outcomes []models.DispatchOutcome) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if len(outcomes) == 0 {
		return nil
	}

	data, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch outcomes: %w", err)
	}

	query := `
		UPDATE critical_alerts
		SET notified_channels = notified_channels || $2::jsonb,
		    updated_at = CURRENT_TIMESTAMP
		WHERE alert_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, alertID, data)
	if err != nil {
		return fmt.Errorf("failed to record dispatch outcomes: %w", err)
	}
	return requireRow(result, alertID)
}

// GetAlert loads one alert by id.
func (r *AlertRepository) GetAlert(ctx context.Context, alertID string) (*models.CriticalAlert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `SELECT ` + alertColumns + ` FROM critical_alerts WHERE alert_id = $1`
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert not found: %s", alertID)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns alerts matching the filters, newest first, with the
// total count for pagination.
func (r *AlertRepository) ListAlerts(ctx context.Context, filters AlertFilters, page, size int) ([]*models.CriticalAlert, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	var args []interface{}
	where := buildAlertWhere(filters, &args)

	countQuery := "SELECT COUNT(*) FROM critical_alerts" + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM critical_alerts%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		alertColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.CriticalAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alert rows: %w", err)
	}
	return alerts, total, nil
}

// CountByStatusAndRisk returns the stored status and risk-type breakdowns.
func (r *AlertRepository) CountByStatusAndRisk(ctx context.Context) (map[string]int, map[string]int, error) {
	byStatus := make(map[string]int)
	byRisk := make(map[string]int)

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, risk_type, COUNT(*) FROM critical_alerts GROUP BY status, risk_type`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, riskType string
		var n int
		if err := rows.Scan(&status, &riskType, &n); err != nil {
			return nil, nil, fmt.Errorf("failed to scan alert counts: %w", err)
		}
		byStatus[status] += n
		byRisk[riskType] += n
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate alert counts: %w", err)
	}
	return byStatus, byRisk, nil
}

func buildAlertWhere(filters AlertFilters, args *[]interface{}) string {
	var conds []string
	add := func(cond string, value interface{}) {
		*args = append(*args, value)
		conds = append(conds, fmt.Sprintf(cond, len(*args)))
	}

	if filters.UserID != nil {
		add("user_id = $%d", *filters.UserID)
	}
	if filters.SessionID != nil {
		add("session_id = $%d", *filters.SessionID)
	}
	if filters.RiskType != nil {
		add("risk_type = $%d", *filters.RiskType)
	}
	if filters.RiskLevel != nil {
		add("risk_level = $%d", *filters.RiskLevel)
	}
	if filters.Status != nil {
		add("status = $%d", *filters.Status)
	}
	if len(filters.Statuses) > 0 {
		add("status = ANY($%d)", pq.Array(filters.Statuses))
	}
	if filters.Since != nil {
		add("created_at >= $%d", *filters.Since)
	}
	if filters.Until != nil {
		add("created_at <= $%d", *filters.Until)
	}
	if filters.MinScore != nil {
		add("risk_score >= $%d", *filters.MinScore)
	}

	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.CriticalAlert, error) {
	var (
		a              models.CriticalAlert
		keywords       pq.StringArray
		metadata       []byte
		channels       []byte
		acknowledgedBy sql.NullString
		acknowledgedAt sql.NullTime
		resolution     sql.NullString
		resolvedAt     sql.NullTime
	)

	err := row.Scan(
		&a.AlertID,
		&a.UserID,
		&a.SessionID,
		&a.RiskType,
		&a.RiskLevel,
		&a.RiskScore,
		&a.Status,
		&a.UserMessage,
		&a.MessageDigest,
		&keywords,
		&a.EscalationRound,
		&metadata,
		&channels,
		&a.CreatedAt,
		&a.UpdatedAt,
		&acknowledgedBy,
		&acknowledgedAt,
		&resolution,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	a.DetectedKeywords = keywords
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert metadata: %w", err)
		}
	}
	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &a.NotifiedChannels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notified channels: %w", err)
		}
	}
	if acknowledgedBy.Valid {
		a.AcknowledgedBy = &acknowledgedBy.String
	}
	if acknowledgedAt.Valid {
		at := acknowledgedAt.Time
		a.AcknowledgedAt = &at
	}
	if resolution.Valid {
		a.Resolution = &resolution.String
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		a.ResolvedAt = &at
	}
	return &a, nil
}

func requireRow(result sql.Result, alertID string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alert not found: %s", alertID)
	}
	return nil
}
