package notes

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NoteRepository persists clinical notes.
type NoteRepository interface {
	Create(ctx context.Context, n *ClinicalNote) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicalNote, error)
	// UpdateDraft writes the clinical fields of an unsigned note. The update
	// is conditional on is_signed = false so a signed row can never be
	// touched, even by a buggy caller.
	UpdateDraft(ctx context.Context, n *ClinicalNote) (bool, error)
	// MarkSigned sets the signed fields conditionally on is_signed = false.
	// Returns false when no row matched, meaning another signer won the race.
	MarkSigned(ctx context.Context, id, signerID uuid.UUID, signatureHash string, signedAt time.Time) (bool, error)
	ListByEncounter(ctx context.Context, encounterID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error)
	ListAmendmentsOf(ctx context.Context, noteID uuid.UUID) ([]*ClinicalNote, error)
}

// SignatureRepository persists the append-only signature log.
type SignatureRepository interface {
	Create(ctx context.Context, r *SignatureRecord) error
	// LatestByNote returns the most recent signature record for a note, or
	// nil when none exists.
	LatestByNote(ctx context.Context, noteID uuid.UUID) (*SignatureRecord, error)
}

// AmendmentRepository persists original-to-amendment links.
type AmendmentRepository interface {
	CreateLink(ctx context.Context, l *AmendmentLink) error
	ListByOriginal(ctx context.Context, originalNoteID uuid.UUID) ([]*AmendmentLink, error)
}

// Directory resolves collaborator records owned by other parts of the EHR.
type Directory interface {
	// ProviderIDForUser maps an authenticated user to a provider row.
	// Returns uuid.Nil with a nil error when the user is not a provider.
	ProviderIDForUser(ctx context.Context, userID string) (uuid.UUID, error)
	// PatientIDForEncounter resolves the patient a note's encounter belongs
	// to, for access checks and audit logging.
	PatientIDForEncounter(ctx context.Context, encounterID uuid.UUID) (uuid.UUID, error)
}
