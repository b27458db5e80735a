package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists the append-only PHI access log. Rows are never
// updated or deleted.
type Repository interface {
	Insert(ctx context.Context, l *AccessLog) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AccessLog, int, error)
	ListByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*AccessLog, int, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*AccessLog, int, error)
}

// PatientLookup resolves the patient record owned by a user account, for
// the patient-facing access history view.
type PatientLookup interface {
	// PatientIDForUser returns uuid.Nil with a nil error when the user has
	// no patient record.
	PatientIDForUser(ctx context.Context, userID string) (uuid.UUID, error)
}
