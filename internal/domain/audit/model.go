package audit

import (
	"time"

	"github.com/google/uuid"
)

// AccessLog maps to the phi_access_log table. One row is written for every
// access attempt against patient data, allowed or denied. Denied attempts
// carry a DENIED: prefix on the action.
type AccessLog struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Action       string     `db:"action" json:"action"`
	ResourceType string     `db:"resource_type" json:"resource_type"`
	ResourceID   *string    `db:"resource_id" json:"resource_id,omitempty"`
	IPAddress    string     `db:"ip_address" json:"ip_address"`
	UserAgent    string     `db:"user_agent" json:"user_agent"`
	AccessedAt   time.Time  `db:"accessed_at" json:"accessed_at"`
}

// DeniedPrefix marks log rows for access attempts that were refused.
const DeniedPrefix = "DENIED:"
