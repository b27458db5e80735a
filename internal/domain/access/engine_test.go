package access

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chartlock/chartlock/internal/domain/audit"
	"github.com/chartlock/chartlock/internal/platform/auth"
)

// =========== Mock Directories ===========

type mockRoleDir struct {
	roles map[string][]string
}

func (m *mockRoleDir) RolesForUser(_ context.Context, userID string) ([]string, error) {
	return m.roles[userID], nil
}

type assignmentKey struct {
	userID    string
	patientID uuid.UUID
}

type mockAssignmentDir struct {
	active map[assignmentKey]bool
}

func (m *mockAssignmentDir) HasActiveAssignment(_ context.Context, providerUserID string, patientID uuid.UUID) (bool, error) {
	return m.active[assignmentKey{providerUserID, patientID}], nil
}

type mockPatientDir struct {
	owners map[uuid.UUID]string
}

func (m *mockPatientDir) IsPatientOwner(_ context.Context, userID string, patientID uuid.UUID) (bool, error) {
	return m.owners[patientID] == userID, nil
}

type mockRecorder struct {
	mu      sync.Mutex
	entries []*audit.AccessLog
	failing bool
}

func (m *mockRecorder) Record(_ context.Context, l *audit.AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return fmt.Errorf("audit store unavailable")
	}
	cp := *l
	m.entries = append(m.entries, &cp)
	return nil
}

// =========== Helpers ===========

type testEnv struct {
	engine      *Engine
	roles       *mockRoleDir
	assignments *mockAssignmentDir
	patients    *mockPatientDir
	recorder    *mockRecorder
}

func newTestEnv() *testEnv {
	roles := &mockRoleDir{roles: map[string][]string{}}
	assignments := &mockAssignmentDir{active: map[assignmentKey]bool{}}
	patients := &mockPatientDir{owners: map[uuid.UUID]string{}}
	recorder := &mockRecorder{}
	engine := NewEngine(roles, assignments, patients, recorder, zerolog.Nop())
	return &testEnv{engine: engine, roles: roles, assignments: assignments, patients: patients, recorder: recorder}
}

func ident(userID string, roles ...string) *auth.Identity {
	return &auth.Identity{UserID: userID, Roles: roles}
}

func viewRequest(patientID uuid.UUID) *Request {
	return &Request{
		PatientID:    patientID,
		ResourceType: "clinical_note",
		ResourceID:   "note-1",
		Action:       "view_clinical_note",
	}
}

// =========== Cascade Tests ===========

func TestCheck_AdminAllowed(t *testing.T) {
	env := newTestEnv()
	d, err := env.engine.Check(context.Background(), ident("u1", auth.RoleAdmin), viewRequest(uuid.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Reason != "Admin access" {
		t.Errorf("expected admin allow, got %+v", d)
	}
}

func TestCheck_ComplianceReadAllowed(t *testing.T) {
	env := newTestEnv()
	d, err := env.engine.Check(context.Background(), ident("u1", auth.RoleComplianceOfficer), viewRequest(uuid.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Reason != "Compliance audit access" {
		t.Errorf("expected compliance allow, got %+v", d)
	}
}

func TestCheck_ComplianceWriteDenied(t *testing.T) {
	env := newTestEnv()
	req := viewRequest(uuid.New())
	req.Action = "update_clinical_note"
	d, err := env.engine.Check(context.Background(), ident("u1", auth.RoleComplianceOfficer), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("compliance officer must not get write access")
	}
	if d.Reason != "Access denied" {
		t.Errorf("expected default deny reason, got %q", d.Reason)
	}
}

func TestCheck_AssignedProviderAllowed(t *testing.T) {
	env := newTestEnv()
	patientID := uuid.New()
	env.assignments.active[assignmentKey{"prov-user", patientID}] = true

	d, err := env.engine.Check(context.Background(), ident("prov-user", auth.RoleProvider), viewRequest(patientID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Reason != "Assigned provider access" {
		t.Errorf("expected provider allow, got %+v", d)
	}
}

func TestCheck_UnassignedProviderDenied(t *testing.T) {
	env := newTestEnv()
	d, err := env.engine.Check(context.Background(), ident("prov-user", auth.RoleProvider), viewRequest(uuid.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("provider without assignment must be denied")
	}
}

func TestCheck_RevokedAssignmentDenied(t *testing.T) {
	env := newTestEnv()
	patientID := uuid.New()
	// A revoked assignment is simply not active.
	env.assignments.active[assignmentKey{"prov-user", patientID}] = false

	d, _ := env.engine.Check(context.Background(), ident("prov-user", auth.RoleProvider), viewRequest(patientID))
	if d.Allowed {
		t.Error("revoked assignment must not grant access")
	}
}

func TestCheck_PatientOwnRecordAllowed(t *testing.T) {
	env := newTestEnv()
	patientID := uuid.New()
	env.patients.owners[patientID] = "pat-user"

	d, err := env.engine.Check(context.Background(), ident("pat-user", auth.RolePatient), viewRequest(patientID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Reason != "Patient accessing own records" {
		t.Errorf("expected patient self allow, got %+v", d)
	}
}

func TestCheck_PatientWriteOwnRecordDenied(t *testing.T) {
	env := newTestEnv()
	patientID := uuid.New()
	env.patients.owners[patientID] = "pat-user"

	req := viewRequest(patientID)
	req.Action = "update_clinical_note"
	d, err := env.engine.Check(context.Background(), ident("pat-user", auth.RolePatient), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("patient access to own records is read only")
	}
	if d.Reason != "Access denied" {
		t.Errorf("expected default deny reason, got %q", d.Reason)
	}
}

func TestCheck_PatientOtherRecordDenied(t *testing.T) {
	env := newTestEnv()
	patientID := uuid.New()
	env.patients.owners[patientID] = "someone-else"

	d, _ := env.engine.Check(context.Background(), ident("pat-user", auth.RolePatient), viewRequest(patientID))
	if d.Allowed {
		t.Error("patient must not access another patient's records")
	}
	if d.Reason != "Access denied" {
		t.Errorf("expected default deny reason, got %q", d.Reason)
	}
}

func TestCheck_UnassignedProviderWithPatientRoleDenied(t *testing.T) {
	env := newTestEnv()
	patientID := uuid.New()
	// The caller owns the patient record but has no active care assignment.
	env.patients.owners[patientID] = "dual-user"

	d, err := env.engine.Check(context.Background(),
		ident("dual-user", auth.RoleProvider, auth.RolePatient), viewRequest(patientID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("provider without an assignment must be denied, whatever other roles they hold")
	}
	if d.Reason != "Access denied" {
		t.Errorf("expected default deny reason, got %q", d.Reason)
	}
}

func TestCheck_NoRolesDenied(t *testing.T) {
	env := newTestEnv()
	d, err := env.engine.Check(context.Background(), ident("u1"), viewRequest(uuid.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("user with no roles must be denied")
	}
}

func TestCheck_AdminRuleWinsOverPatientRule(t *testing.T) {
	env := newTestEnv()
	patientID := uuid.New()
	env.patients.owners[patientID] = "dual-user"

	d, _ := env.engine.Check(context.Background(),
		ident("dual-user", auth.RolePatient, auth.RoleAdmin), viewRequest(patientID))
	if !d.Allowed {
		t.Fatal("expected allow")
	}
	if d.Reason != "Admin access" {
		t.Errorf("admin rule should decide first, got %q", d.Reason)
	}
}

func TestCheck_RolesFallBackToDirectory(t *testing.T) {
	env := newTestEnv()
	env.roles.roles["u1"] = []string{auth.RoleAdmin}

	d, err := env.engine.Check(context.Background(), ident("u1"), viewRequest(uuid.New()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Error("roles from the directory should feed the cascade")
	}
	if len(d.Roles) != 1 || d.Roles[0] != auth.RoleAdmin {
		t.Errorf("expected directory roles in decision, got %v", d.Roles)
	}
}

func TestCheck_IdentityRequired(t *testing.T) {
	env := newTestEnv()
	if _, err := env.engine.Check(context.Background(), nil, viewRequest(uuid.New())); err == nil {
		t.Fatal("expected error for nil identity")
	}
}

func TestCheck_ActionRequired(t *testing.T) {
	env := newTestEnv()
	req := viewRequest(uuid.New())
	req.Action = ""
	if _, err := env.engine.Check(context.Background(), ident("u1", auth.RoleAdmin), req); err == nil {
		t.Fatal("expected error for missing action")
	}
}

// =========== Audit Logging Tests ===========

func TestCheck_AllowWritesExactlyOneLogEntry(t *testing.T) {
	env := newTestEnv()
	patientID := uuid.New()
	env.engine.Check(context.Background(), ident("u1", auth.RoleAdmin), viewRequest(patientID))

	if len(env.recorder.entries) != 1 {
		t.Fatalf("expected exactly 1 log entry, got %d", len(env.recorder.entries))
	}
	entry := env.recorder.entries[0]
	if entry.Action != "view_clinical_note" {
		t.Errorf("allowed action must be logged unprefixed, got %q", entry.Action)
	}
	if entry.PatientID == nil || *entry.PatientID != patientID {
		t.Error("log entry must carry the patient id")
	}
}

func TestCheck_DenyWritesPrefixedLogEntry(t *testing.T) {
	env := newTestEnv()
	env.engine.Check(context.Background(), ident("u1"), viewRequest(uuid.New()))

	if len(env.recorder.entries) != 1 {
		t.Fatalf("expected exactly 1 log entry, got %d", len(env.recorder.entries))
	}
	// Log consumers match on the exact marker, action directly after the colon.
	if got := env.recorder.entries[0].Action; got != "DENIED:view_clinical_note" {
		t.Errorf("denied action must be DENIED:<action>, got %q", got)
	}
	if !strings.HasPrefix(env.recorder.entries[0].Action, audit.DeniedPrefix) {
		t.Errorf("denied action must carry the denied prefix, got %q", env.recorder.entries[0].Action)
	}
}

func TestCheck_NoPatientNoLogEntry(t *testing.T) {
	env := newTestEnv()
	req := &Request{ResourceType: "system_config", Action: "view_config"}
	env.engine.Check(context.Background(), ident("u1", auth.RoleAdmin), req)

	if len(env.recorder.entries) != 0 {
		t.Errorf("non patient-scoped checks must not be logged, got %d entries", len(env.recorder.entries))
	}
}

func TestCheck_AuditFailureDoesNotChangeDecision(t *testing.T) {
	env := newTestEnv()
	env.recorder.failing = true

	d, err := env.engine.Check(context.Background(), ident("u1", auth.RoleAdmin), viewRequest(uuid.New()))
	if err != nil {
		t.Fatalf("audit failure must not fail the check: %v", err)
	}
	if !d.Allowed {
		t.Error("audit failure must not flip the decision")
	}
}
