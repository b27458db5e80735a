package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service records and serves PHI access log entries.
type Service struct {
	repo     Repository
	patients PatientLookup
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients PatientLookup, logger zerolog.Logger) *Service {
	return &Service{repo: repo, patients: patients, logger: logger, now: time.Now}
}

// Record writes one access log row. The timestamp is set server-side when
// the entry carries none.
func (s *Service) Record(ctx context.Context, l *AccessLog) error {
	if l.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if l.Action == "" {
		return fmt.Errorf("action is required")
	}
	if l.AccessedAt.IsZero() {
		l.AccessedAt = s.now().UTC()
	}
	return s.repo.Insert(ctx, l)
}

// ListByPatient returns a patient's access history, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AccessLog, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListByTimeRange returns all access rows in [from, to), for compliance
// review.
func (s *Service) ListByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*AccessLog, int, error) {
	if !to.After(from) {
		return nil, 0, fmt.Errorf("time range end must be after start")
	}
	return s.repo.ListByTimeRange(ctx, from, to, limit, offset)
}

// ListByUser returns the access rows produced by one user account.
func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*AccessLog, int, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// OwnPatientID resolves the caller's patient record, or uuid.Nil when the
// caller is not a patient.
func (s *Service) OwnPatientID(ctx context.Context, userID string) (uuid.UUID, error) {
	return s.patients.PatientIDForUser(ctx, userID)
}
