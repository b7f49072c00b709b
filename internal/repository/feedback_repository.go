package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tamgiao-hitl/internal/models"

	"go.uber.org/zap"
)

// FeedbackRepository persists clinician outcome notes for offline quality
// review (intervention_feedback table). Write-only on the realtime path.
type FeedbackRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFeedbackRepository creates the repository.
func NewFeedbackRepository(db *sql.DB, logger *zap.Logger) *FeedbackRepository {
	return &FeedbackRepository{
		db:     db,
		logger: logger,
	}
}

// CreateFeedback inserts one outcome note.
func (r *FeedbackRepository) CreateFeedback(ctx context.Context, f *models.InterventionFeedback) error {
	if f == nil {
		return fmt.Errorf("feedback is required")
	}
	if f.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if f.ClinicianID == "" {
		return fmt.Errorf("clinician_id is required")
	}
	if f.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}

	query := `
		INSERT INTO intervention_feedback (
			feedback_id,
			alert_id,
			clinician_id,
			outcome,
			notes,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`
	_, err := r.db.ExecContext(ctx, query,
		f.FeedbackID,
		f.AlertID,
		f.ClinicianID,
		f.Outcome,
		f.Notes,
		f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// ListFeedbackForAlert returns the notes recorded against one alert, oldest
// first.
func (r *FeedbackRepository) ListFeedbackForAlert(ctx context.Context, alertID string) ([]*models.InterventionFeedback, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT feedback_id, alert_id, clinician_id, outcome, notes, created_at
		FROM intervention_feedback
		WHERE alert_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var out []*models.InterventionFeedback
	for rows.Next() {
		var f models.InterventionFeedback
		var notes sql.NullString
		if err := rows.Scan(&f.FeedbackID, &f.AlertID, &f.ClinicianID, &f.Outcome, &notes, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		if notes.Valid {
			f.Notes = &notes.String
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback rows: %w", err)
	}
	return out, nil
}
