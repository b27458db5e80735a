package access

import "github.com/google/uuid"

// Request describes one access attempt against patient data. PatientID is
// uuid.Nil for requests that are not scoped to a patient; those are decided
// but not audit logged.
type Request struct {
	PatientID    uuid.UUID `json:"patient_id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Action       string    `json:"action"`
}

// Decision is the outcome of an access check. Reason is a short
// human-readable statement of which policy granted or refused access.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reason  string   `json:"reason"`
	Roles   []string `json:"roles"`
}

// Verdict is a single policy rule's position on a request.
type Verdict int

const (
	// VerdictAbstain passes the request to the next rule.
	VerdictAbstain Verdict = iota
	VerdictAllow
	VerdictDeny
)
