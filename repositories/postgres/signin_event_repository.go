package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/sso-gateway/models"
	"github.com/upb/sso-gateway/repositories"
	"go.uber.org/zap"
)

// ErrSignInEventNotFound is returned by GetByID for an unknown id
var ErrSignInEventNotFound = errors.New("sign-in event not found")

const signInEventColumns = `id, action, outcome, stage, reason, error_code, user_id, email,
		       tenant_id, session_id, source, details, ip_address, user_agent, request_id, timestamp`

// SignInEventRepository implements the repositories.SignInEventRepository interface
type SignInEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSignInEventRepository creates a new sign-in event repository
func NewSignInEventRepository(db *DB, logger *zap.Logger) repositories.SignInEventRepository {
	return &SignInEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new sign-in event
func (r *SignInEventRepository) Insert(ctx context.Context, event *models.SignInEvent) error {
	query := `
		INSERT INTO sign_in_events (
			id, action, outcome, stage, reason, error_code, user_id, email,
			tenant_id, session_id, source, details, ip_address, user_agent, request_id, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Action,
		event.Outcome,
		event.Stage,
		event.Reason,
		event.ErrorCode,
		event.UserID,
		event.Email,
		event.TenantID,
		event.SessionID,
		event.Source,
		nullableJSON(event.Details),
		event.IPAddress,
		event.UserAgent,
		event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sign-in event: %w", err)
	}

	r.logger.Debug("sign-in event inserted", zap.String("id", event.ID.String()), zap.String("action", string(event.Action)))
	return nil
}

// GetByID retrieves a sign-in event by ID
func (r *SignInEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SignInEvent, error) {
	query := `SELECT ` + signInEventColumns + ` FROM sign_in_events WHERE id = $1`

	event, err := scanSignInEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSignInEventNotFound, id)
		}
		return nil, fmt.Errorf("failed to get sign-in event: %w", err)
	}
	return event, nil
}

// GetByUserID retrieves events for a user, newest first, with pagination
func (r *SignInEventRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.SignInEvent, error) {
	query := `SELECT ` + signInEventColumns + `
		FROM sign_in_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3`

	return r.queryEvents(ctx, query, userID, limit, offset)
}

// GetByRequestID retrieves events recorded for one HTTP request
func (r *SignInEventRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.SignInEvent, error) {
	query := `SELECT ` + signInEventColumns + `
		FROM sign_in_events
		WHERE request_id = $1
		ORDER BY timestamp ASC`

	return r.queryEvents(ctx, query, requestID)
}

// CountRejectedSince counts rejected events at or after the given time
func (r *SignInEventRepository) CountRejectedSince(ctx context.Context, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM sign_in_events WHERE outcome = $1 AND timestamp >= $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, models.SignInOutcomeRejected, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rejected sign-in events: %w", err)
	}
	return count, nil
}

func (r *SignInEventRepository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*models.SignInEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sign-in events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.SignInEvent, 0)
	for rows.Next() {
		event, err := scanSignInEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sign-in event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sign-in events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignInEvent(row rowScanner) (*models.SignInEvent, error) {
	event := &models.SignInEvent{}
	var (
		reason, errorCode, userID, email, tenantID sql.NullString
		sessionID, source, ipAddress, userAgent     sql.NullString
		requestID                                   sql.NullString
		details                                     []byte
	)
	err := row.Scan(
		&event.ID,
		&event.Action,
		&event.Outcome,
		&event.Stage,
		&reason,
		&errorCode,
		&userID,
		&email,
		&tenantID,
		&sessionID,
		&source,
		&details,
		&ipAddress,
		&userAgent,
		&requestID,
		&event.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	event.Reason = reason.String
	event.ErrorCode = errorCode.String
	event.UserID = userID.String
	event.Email = email.String
	event.TenantID = tenantID.String
	event.SessionID = sessionID.String
	event.Source = source.String
	event.Details = details
	event.IPAddress = ipAddress.String
	event.UserAgent = userAgent.String
	event.RequestID = requestID.String
	return event, nil
}

// nullableJSON stores empty details as NULL rather than an invalid JSONB literal
func nullableJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
