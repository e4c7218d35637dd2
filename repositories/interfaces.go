package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/sso-gateway/models"
)

// SignInEventRepository handles sign-in audit trail data operations.
// Nothing in the authentication path reads from it.
type SignInEventRepository interface {
	// Insert inserts a new sign-in event
	Insert(ctx context.Context, event *models.SignInEvent) error

	// GetByID retrieves a sign-in event by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.SignInEvent, error)

	// GetByUserID retrieves events for a user, newest first, with pagination
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.SignInEvent, error)

	// GetByRequestID retrieves events recorded for one HTTP request
	GetByRequestID(ctx context.Context, requestID string) ([]*models.SignInEvent, error)

	// CountRejectedSince counts rejected events at or after the given time
	CountRejectedSince(ctx context.Context, since time.Time) (int, error)
}
