package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chartlock/chartlock/internal/domain/audit"
	"github.com/chartlock/chartlock/internal/platform/auth"
)

// RoleDirectory resolves the roles granted to a user account. Consulted
// when the caller's token carries no role claims.
type RoleDirectory interface {
	RolesForUser(ctx context.Context, userID string) ([]string, error)
}

// AssignmentDirectory answers whether a provider currently has an active
// care relationship with a patient. Revoked assignments do not count.
type AssignmentDirectory interface {
	HasActiveAssignment(ctx context.Context, providerUserID string, patientID uuid.UUID) (bool, error)
}

// PatientDirectory answers whether a user account owns a patient record.
type PatientDirectory interface {
	IsPatientOwner(ctx context.Context, userID string, patientID uuid.UUID) (bool, error)
}

// Recorder receives one audit entry per patient-scoped decision.
// Implemented by the audit service.
type Recorder interface {
	Record(ctx context.Context, l *audit.AccessLog) error
}

// PolicyRule is one named step in the decision cascade. Rules are
// evaluated in order; the first non-abstaining rule decides the request.
type PolicyRule struct {
	Name     string
	Evaluate func(ctx context.Context, e *Engine, ident *auth.Identity, roles []string, req *Request) (Verdict, string, error)
}

const deniedReason = "Access denied"

// Engine decides PHI access requests by running an ordered policy rule
// cascade, then writes the decision to the access log.
type Engine struct {
	roles       RoleDirectory
	assignments AssignmentDirectory
	patients    PatientDirectory
	recorder    Recorder
	rules       []PolicyRule
	logger      zerolog.Logger
}

func NewEngine(roles RoleDirectory, assignments AssignmentDirectory, patients PatientDirectory, recorder Recorder, logger zerolog.Logger) *Engine {
	e := &Engine{
		roles:       roles,
		assignments: assignments,
		patients:    patients,
		recorder:    recorder,
		logger:      logger,
	}
	e.rules = []PolicyRule{adminRule, complianceReadRule, assignedProviderRule, patientSelfRule}
	return e
}

// Check decides a request for the given identity. Every patient-scoped
// decision is audit logged, allowed or denied, before the decision is
// returned. An audit write failure is surfaced to monitoring but never
// changes or blocks the decision.
func (e *Engine) Check(ctx context.Context, ident *auth.Identity, req *Request) (*Decision, error) {
	if ident == nil || ident.UserID == "" {
		return nil, fmt.Errorf("identity is required")
	}
	if req.Action == "" {
		return nil, fmt.Errorf("action is required")
	}

	roles := ident.Roles
	if len(roles) == 0 {
		var err error
		roles, err = e.roles.RolesForUser(ctx, ident.UserID)
		if err != nil {
			return nil, fmt.Errorf("resolve roles for user %s: %w", ident.UserID, err)
		}
	}

	decision := &Decision{Allowed: false, Reason: deniedReason, Roles: roles}
	for _, rule := range e.rules {
		verdict, reason, err := rule.Evaluate(ctx, e, ident, roles, req)
		if err != nil {
			return nil, fmt.Errorf("policy rule %s: %w", rule.Name, err)
		}
		if verdict == VerdictAbstain {
			continue
		}
		decision.Allowed = verdict == VerdictAllow
		decision.Reason = reason
		break
	}

	e.record(ctx, ident, req, decision)
	return decision, nil
}

// CanAccess is the narrow form of Check used by resource handlers.
func (e *Engine) CanAccess(ctx context.Context, ident *auth.Identity, patientID uuid.UUID, resourceType, resourceID, action string) (bool, string, error) {
	d, err := e.Check(ctx, ident, &Request{
		PatientID:    patientID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
	})
	if err != nil {
		return false, "", err
	}
	return d.Allowed, d.Reason, nil
}

func (e *Engine) record(ctx context.Context, ident *auth.Identity, req *Request, d *Decision) {
	if req.PatientID == uuid.Nil {
		return
	}
	action := req.Action
	if !d.Allowed {
		action = audit.DeniedPrefix + action
	}
	patientID := req.PatientID
	entry := &audit.AccessLog{
		UserID:       ident.UserID,
		PatientID:    &patientID,
		Action:       action,
		ResourceType: req.ResourceType,
		IPAddress:    ident.IPAddress,
		UserAgent:    ident.UserAgent,
	}
	if req.ResourceID != "" {
		resourceID := req.ResourceID
		entry.ResourceID = &resourceID
	}
	if err := e.recorder.Record(ctx, entry); err != nil {
		e.logger.Error().Err(err).
			Str("user_id", ident.UserID).
			Str("patient_id", req.PatientID.String()).
			Str("action", action).
			Msg("failed to write phi access log entry")
	}
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// isReadAction reports whether an action only discloses data. Compliance
// reviewers get read access, never write.
func isReadAction(action string) bool {
	for _, prefix := range []string{"view", "list", "read", "search", "export"} {
		if strings.HasPrefix(action, prefix) {
			return true
		}
	}
	return false
}

// adminRule grants administrators unconditional access.
var adminRule = PolicyRule{
	Name: "admin",
	Evaluate: func(_ context.Context, _ *Engine, _ *auth.Identity, roles []string, _ *Request) (Verdict, string, error) {
		if hasRole(roles, auth.RoleAdmin) {
			return VerdictAllow, "Admin access", nil
		}
		return VerdictAbstain, "", nil
	},
}

// complianceReadRule grants compliance officers read-only access for
// audit review.
var complianceReadRule = PolicyRule{
	Name: "compliance-read",
	Evaluate: func(_ context.Context, _ *Engine, _ *auth.Identity, roles []string, req *Request) (Verdict, string, error) {
		if hasRole(roles, auth.RoleComplianceOfficer) && isReadAction(req.Action) {
			return VerdictAllow, "Compliance audit access", nil
		}
		return VerdictAbstain, "", nil
	},
}

// assignedProviderRule grants providers access to patients they hold an
// active, unrevoked assignment for. Once the guard matches, the rule
// decides: a provider without an active assignment is denied outright and
// never falls through to later rules, so holding a patient role as well
// cannot recover access the care relationship does not grant.
var assignedProviderRule = PolicyRule{
	Name: "assigned-provider",
	Evaluate: func(ctx context.Context, e *Engine, ident *auth.Identity, roles []string, req *Request) (Verdict, string, error) {
		if !hasRole(roles, auth.RoleProvider) || req.PatientID == uuid.Nil {
			return VerdictAbstain, "", nil
		}
		assigned, err := e.assignments.HasActiveAssignment(ctx, ident.UserID, req.PatientID)
		if err != nil {
			return VerdictAbstain, "", err
		}
		if assigned {
			return VerdictAllow, "Assigned provider access", nil
		}
		return VerdictDeny, deniedReason, nil
	},
}

// patientSelfRule grants patients read access to their own records.
// Patients never write clinical data; non-read actions fall through to the
// default deny.
var patientSelfRule = PolicyRule{
	Name: "patient-self",
	Evaluate: func(ctx context.Context, e *Engine, ident *auth.Identity, roles []string, req *Request) (Verdict, string, error) {
		if !hasRole(roles, auth.RolePatient) || req.PatientID == uuid.Nil || !isReadAction(req.Action) {
			return VerdictAbstain, "", nil
		}
		owner, err := e.patients.IsPatientOwner(ctx, ident.UserID, req.PatientID)
		if err != nil {
			return VerdictAbstain, "", err
		}
		if owner {
			return VerdictAllow, "Patient accessing own records", nil
		}
		return VerdictAbstain, "", nil
	},
}
