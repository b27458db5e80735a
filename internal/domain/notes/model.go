package notes

import (
	"time"

	"github.com/google/uuid"
)

// ClinicalNote maps to the clinical_notes table. Each row is one version of
// a SOAP note for an encounter: the original, or an amendment linked to the
// version it supersedes via AmendedFromID.
type ClinicalNote struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	EncounterID      uuid.UUID  `db:"encounter_id" json:"encounter_id"`
	AuthorID         uuid.UUID  `db:"author_id" json:"author_id"`
	NoteType         string     `db:"note_type" json:"note_type"`
	Subjective       string     `db:"soap_subjective" json:"soap_subjective"`
	Objective        string     `db:"soap_objective" json:"soap_objective"`
	Assessment       string     `db:"soap_assessment" json:"soap_assessment"`
	Plan             string     `db:"soap_plan" json:"soap_plan"`
	ContentEncrypted *string    `db:"content_encrypted" json:"content_encrypted,omitempty"`
	IsSigned         bool       `db:"is_signed" json:"is_signed"`
	SignedAt         *time.Time `db:"signed_at" json:"signed_at,omitempty"`
	SignedBy         *uuid.UUID `db:"signed_by" json:"signed_by,omitempty"`
	SignatureHash    *string    `db:"signature_hash" json:"signature_hash,omitempty"`
	IsAmendment      bool       `db:"is_amendment" json:"is_amendment"`
	AmendmentReason  *string    `db:"amendment_reason" json:"amendment_reason,omitempty"`
	AmendedFromID    *uuid.UUID `db:"amended_from_id" json:"amended_from_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Content extracts the hashed clinical fields of the note.
func (n *ClinicalNote) Content() NoteContent {
	return NoteContent{
		Subjective:       n.Subjective,
		Objective:        n.Objective,
		Assessment:       n.Assessment,
		Plan:             n.Plan,
		ContentEncrypted: n.ContentEncrypted,
	}
}

// SignatureRecord maps to the signature_log table. One immutable row is
// written per signing event; the most recent row for a note carries the
// content hash used for tamper checks.
type SignatureRecord struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	NoteID             uuid.UUID `db:"note_id" json:"note_id"`
	SignerID           uuid.UUID `db:"signer_id" json:"signer_id"`
	ContentHash        string    `db:"content_hash" json:"content_hash"`
	SignatureHash      string    `db:"signature_hash" json:"signature_hash"`
	SignedAt           time.Time `db:"signed_at" json:"signed_at"`
	SignatureMethod    string    `db:"signature_method" json:"signature_method"`
	VerificationStatus string    `db:"verification_status" json:"verification_status"`
	IPAddress          string    `db:"ip_address" json:"ip_address"`
	UserAgent          string    `db:"user_agent" json:"user_agent"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// AmendmentLink maps to the note_amendments table, relating an original
// signed note to the amendment that supersedes it.
type AmendmentLink struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OriginalNoteID uuid.UUID `db:"original_note_id" json:"original_note_id"`
	AmendedNoteID  uuid.UUID `db:"amended_note_id" json:"amended_note_id"`
	AmendedBy      uuid.UUID `db:"amended_by" json:"amended_by"`
	Reason         string    `db:"reason" json:"reason"`
	AmendedAt      time.Time `db:"amended_at" json:"amended_at"`
}

// SignResult is returned from a successful signing operation.
type SignResult struct {
	SignatureHash string    `json:"signature_hash"`
	ContentHash   string    `json:"content_hash"`
	SignedAt      time.Time `json:"signed_at"`
}

// VerifyResult is the structured outcome of a signature verification.
// Verify never fails for unsigned or tampered notes; the state is reported
// here so callers can render verified/tampered/unsigned uniformly.
type VerifyResult struct {
	Valid           bool       `json:"valid"`
	ContentIntact   bool       `json:"content_intact"`
	SignatureStatus string     `json:"signature_status"`
	SignedAt        *time.Time `json:"signed_at,omitempty"`
	SignerID        *uuid.UUID `json:"signer_id,omitempty"`
	Reason          *string    `json:"reason,omitempty"`
}

// RequestMeta carries caller metadata captured on the signature record.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
