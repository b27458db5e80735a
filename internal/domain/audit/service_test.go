package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =========== Mock Repository ===========

type mockAuditRepo struct {
	mu   sync.Mutex
	rows []*AccessLog
}

func (m *mockAuditRepo) Insert(_ context.Context, l *AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.New()
	cp := *l
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *mockAuditRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*AccessLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*AccessLog
	for _, l := range m.rows {
		if l.PatientID != nil && *l.PatientID == patientID {
			items = append(items, l)
		}
	}
	return items, len(items), nil
}

func (m *mockAuditRepo) ListByTimeRange(_ context.Context, from, to time.Time, limit, offset int) ([]*AccessLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*AccessLog
	for _, l := range m.rows {
		if !l.AccessedAt.Before(from) && l.AccessedAt.Before(to) {
			items = append(items, l)
		}
	}
	return items, len(items), nil
}

func (m *mockAuditRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*AccessLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*AccessLog
	for _, l := range m.rows {
		if l.UserID == userID {
			items = append(items, l)
		}
	}
	return items, len(items), nil
}

type mockPatientLookup struct {
	patients map[string]uuid.UUID
}

func (m *mockPatientLookup) PatientIDForUser(_ context.Context, userID string) (uuid.UUID, error) {
	return m.patients[userID], nil
}

func newTestService() (*Service, *mockAuditRepo) {
	repo := &mockAuditRepo{}
	svc := NewService(repo, &mockPatientLookup{patients: map[string]uuid.UUID{}}, zerolog.Nop())
	return svc, repo
}

// =========== Tests ===========

func TestRecord_Success(t *testing.T) {
	svc, repo := newTestService()
	patientID := uuid.New()
	l := &AccessLog{
		UserID:       "user-1",
		PatientID:    &patientID,
		Action:       "view_clinical_note",
		ResourceType: "clinical_note",
	}
	if err := svc.Record(context.Background(), l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(repo.rows))
	}
	if repo.rows[0].AccessedAt.IsZero() {
		t.Error("expected server-side timestamp")
	}
}

func TestRecord_UserRequired(t *testing.T) {
	svc, _ := newTestService()
	l := &AccessLog{Action: "view"}
	if err := svc.Record(context.Background(), l); err == nil {
		t.Fatal("expected error for missing user_id")
	}
}

func TestRecord_ActionRequired(t *testing.T) {
	svc, _ := newTestService()
	l := &AccessLog{UserID: "user-1"}
	if err := svc.Record(context.Background(), l); err == nil {
		t.Fatal("expected error for missing action")
	}
}

func TestRecord_PreservesExplicitTimestamp(t *testing.T) {
	svc, repo := newTestService()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	l := &AccessLog{UserID: "user-1", Action: "view", AccessedAt: at}
	if err := svc.Record(context.Background(), l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.rows[0].AccessedAt.Equal(at) {
		t.Error("explicit timestamp should be preserved")
	}
}

func TestListByPatient(t *testing.T) {
	svc, _ := newTestService()
	p1, p2 := uuid.New(), uuid.New()
	svc.Record(context.Background(), &AccessLog{UserID: "u1", Action: "view", PatientID: &p1})
	svc.Record(context.Background(), &AccessLog{UserID: "u2", Action: "view", PatientID: &p1})
	svc.Record(context.Background(), &AccessLog{UserID: "u3", Action: "view", PatientID: &p2})

	items, total, err := svc.ListByPatient(context.Background(), p1, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 rows for patient, got %d", total)
	}
}

func TestListByTimeRange_RejectsInvertedRange(t *testing.T) {
	svc, _ := newTestService()
	now := time.Now()
	_, _, err := svc.ListByTimeRange(context.Background(), now, now.Add(-time.Hour), 10, 0)
	if err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestListByTimeRange(t *testing.T) {
	svc, _ := newTestService()
	inside := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	outside := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	svc.Record(context.Background(), &AccessLog{UserID: "u1", Action: "view", AccessedAt: inside})
	svc.Record(context.Background(), &AccessLog{UserID: "u1", Action: "view", AccessedAt: outside})

	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	_, total, err := svc.ListByTimeRange(context.Background(), from, to, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 row in range, got %d", total)
	}
}
