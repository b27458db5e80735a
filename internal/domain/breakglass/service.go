package breakglass

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chartlock/chartlock/internal/domain/audit"
	"github.com/chartlock/chartlock/internal/platform/auth"
)

// Recorder receives the access log entry written alongside each override.
type Recorder interface {
	Record(ctx context.Context, l *audit.AccessLog) error
}

// Service records emergency access overrides and runs the compliance
// review workflow over them.
type Service struct {
	repo     Repository
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, recorder Recorder, logger zerolog.Logger) *Service {
	return &Service{repo: repo, recorder: recorder, logger: logger, now: time.Now}
}

// RecordEmergencyAccess writes a pending break glass entry and mirrors it
// into the PHI access log. Called by the break glass middleware before the
// overridden request proceeds; a failure here blocks the override.
func (s *Service) RecordEmergencyAccess(ctx context.Context, userID, patientID, reason, justification string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	if justification == "" {
		return "", ErrMissingJustification
	}
	if reason == "" {
		reason = "emergency_access"
	}

	entry := &Log{
		UserID:        userID,
		Reason:        reason,
		Justification: justification,
		AccessedAt:    s.now().UTC(),
	}
	if patientID != "" {
		pid, err := uuid.Parse(patientID)
		if err != nil {
			return "", fmt.Errorf("invalid patient_id: %w", err)
		}
		entry.PatientID = &pid
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return "", fmt.Errorf("record emergency access: %w", err)
	}

	if entry.PatientID != nil {
		action := "EMERGENCY: " + reason
		if err := s.recorder.Record(ctx, &audit.AccessLog{
			UserID:       userID,
			PatientID:    entry.PatientID,
			Action:       action,
			ResourceType: "break_glass",
		}); err != nil {
			// The break glass row is the authoritative record; a lost mirror
			// entry degrades the unified access view only.
			s.logger.Error().Err(err).
				Str("break_glass_id", entry.ID.String()).
				Msg("failed to mirror emergency access into phi access log")
		}
	}

	return entry.ID.String(), nil
}

// Review closes a pending entry. Restricted to compliance officers and
// administrators; each entry is reviewable exactly once.
func (s *Service) Review(ctx context.Context, id uuid.UUID, reviewer *auth.Identity, notes string) (*Log, error) {
	if reviewer == nil || !(reviewer.HasRole(auth.RoleComplianceOfficer) || reviewer.HasRole(auth.RoleAdmin)) {
		return nil, ErrUnauthorized
	}

	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	reviewed, err := s.repo.MarkReviewed(ctx, id, reviewer.UserID, notes, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark break glass log %s reviewed: %w", id, err)
	}
	if !reviewed {
		return nil, ErrAlreadyReviewed
	}
	return s.repo.GetByID(ctx, id)
}

// Get returns one break glass entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Log, error) {
	return s.repo.GetByID(ctx, id)
}

// ListPending returns the open review queue, oldest first.
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*Log, int, error) {
	return s.repo.ListPending(ctx, limit, offset)
}

// ListByPatient returns the overrides recorded against one patient.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Log, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// CountRecent returns how many overrides a user recorded in the window
// ending now.
func (s *Service) CountRecent(ctx context.Context, userID string, window time.Duration) (int, error) {
	return s.repo.CountRecentByUser(ctx, userID, s.now().Add(-window))
}
