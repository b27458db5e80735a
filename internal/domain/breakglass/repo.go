package breakglass

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists break glass log entries.
type Repository interface {
	Create(ctx context.Context, l *Log) error
	GetByID(ctx context.Context, id uuid.UUID) (*Log, error)
	// MarkReviewed closes a pending entry, conditional on reviewed_at still
	// being null. Returns false when the entry was already reviewed.
	MarkReviewed(ctx context.Context, id uuid.UUID, reviewerID, notes string, reviewedAt time.Time) (bool, error)
	ListPending(ctx context.Context, limit, offset int) ([]*Log, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Log, int, error)
	// CountRecentByUser counts a user's overrides since the given time, for
	// abuse throttling.
	CountRecentByUser(ctx context.Context, userID string, since time.Time) (int, error)
}
