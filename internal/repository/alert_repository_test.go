package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"tamgiao-hitl/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAlertDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewAlertRepository(db, zap.NewNop())
	return db, mock, repo
}

func sampleAlert() *models.CriticalAlert {
	now := time.Now()
	return &models.CriticalAlert{
		AlertID:          uuid.New().String(),
		UserID:           "u1",
		SessionID:        "s1",
		RiskType:         models.RiskTypeSuicidal,
		RiskLevel:        models.RiskCritical,
		RiskScore:        92,
		Status:           models.AlertPending,
		UserMessage:      "toi muon chet",
		MessageDigest:    "abc123",
		DetectedKeywords: []string{"muon chet"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestCreateAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	a := sampleAlert()
	mock.ExpectExec(`INSERT INTO critical_alerts`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateAlert(context.Background(), a)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_Validation(t *testing.T) {
	db, _, repo := setupMockAlertDB(t)
	defer db.Close()

	err := repo.CreateAlert(context.Background(), nil)
	assert.Error(t, err)

	a := sampleAlert()
	a.AlertID = ""
	err = repo.CreateAlert(context.Background(), a)
	assert.Error(t, err)
}

func TestMarkAcknowledged_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	alertID := uuid.New().String()
	at := time.Now()

	mock.ExpectExec(`UPDATE critical_alerts`).
		WithArgs(alertID, "clin-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkAcknowledged(context.Background(), alertID, "clin-1", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAcknowledged_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	alertID := uuid.New().String()
	mock.ExpectExec(`UPDATE critical_alerts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkAcknowledged(context.Background(), alertID, "clin-1", time.Now())
	assert.ErrorContains(t, err, "not found")
}

func TestMarkResolved_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	alertID := uuid.New().String()
	at := time.Now()

	mock.ExpectExec(`UPDATE critical_alerts`).
		WithArgs(alertID, "stabilized", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkResolved(context.Background(), alertID, "stabilized", at)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	alertID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"alert_id", "user_id", "session_id", "risk_type", "risk_level",
		"risk_score", "status", "user_message", "message_digest",
		"detected_keywords", "escalation_round", "metadata",
		"notified_channels", "created_at", "updated_at", "acknowledged_by",
		"acknowledged_at", "resolution", "resolved_at",
	}).AddRow(
		alertID, "u1", "s1", "suicidal", "critical",
		92.0, "pending", "toi muon chet", "abc123",
		`{"muon chet"}`, 0, `{"moderation":{"risk_level":"critical","risk_score":92,"signals":null,"normalized_text":"toi muon chet","message_digest":"abc123","rule_version":"v1"}}`,
		`[]`, now, now, nil,
		nil, nil, nil,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(alertID).
		WillReturnRows(rows)

	a, err := repo.GetAlert(context.Background(), alertID)
	require.NoError(t, err)
	assert.Equal(t, alertID, a.AlertID)
	assert.Equal(t, models.RiskTypeSuicidal, a.RiskType)
	assert.Equal(t, models.RiskCritical, a.RiskLevel)
	assert.Equal(t, models.AlertPending, a.Status)
	assert.Equal(t, []string{"muon chet"}, a.DetectedKeywords)
	assert.Nil(t, a.AcknowledgedBy)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlert_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	alertID := uuid.New().String()
	mock.ExpectQuery(`SELECT`).
		WithArgs(alertID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetAlert(context.Background(), alertID)
	assert.ErrorContains(t, err, "not found")
}

func TestListAlerts_WithFilters(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	status := "pending"
	filters := AlertFilters{Status: &status}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM critical_alerts`).
		WithArgs(status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"alert_id", "user_id", "session_id", "risk_type", "risk_level",
		"risk_score", "status", "user_message", "message_digest",
		"detected_keywords", "escalation_round", "metadata",
		"notified_channels", "created_at", "updated_at", "acknowledged_by",
		"acknowledged_at", "resolution", "resolved_at",
	}).AddRow(
		uuid.New().String(), "u1", "s1", "suicidal", "critical",
		92.0, "pending", "msg", "digest",
		`{}`, 0, `{}`,
		`[]`, now, now, nil,
		nil, nil, nil,
	)

	mock.ExpectQuery(`SELECT .+ FROM critical_alerts`).
		WithArgs(status, 20, 0).
		WillReturnRows(rows)

	alerts, total, err := repo.ListAlerts(context.Background(), filters, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertPending, alerts[0].Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatusAndRisk(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"status", "risk_type", "count"}).
		AddRow("pending", "suicidal", 2).
		AddRow("resolved", "suicidal", 5).
		AddRow("pending", "self_harm", 1)

	mock.ExpectQuery(`SELECT status, risk_type, COUNT\(\*\)`).
		WillReturnRows(rows)

	byStatus, byRisk, err := repo.CountByStatusAndRisk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, byStatus["pending"])
	assert.Equal(t, 5, byStatus["resolved"])
	assert.Equal(t, 7, byRisk["suicidal"])
	assert.Equal(t, 1, byRisk["self_harm"])
}

func TestRecordOutcomes_Empty(t *testing.T) {
	db, _, repo := setupMockAlertDB(t)
	defer db.Close()

	// No outcomes is a no-op, no query expected.
	err := repo.RecordOutcomes(context.Background(), uuid.New().String(), nil)
	assert.NoError(t, err)
}
