package notes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const signatureMethod = "SHA-256"

// Signature verification statuses stored on signature_log rows.
const (
	StatusValid   = "valid"
	StatusRevoked = "revoked"
)

// Verify reasons reported to callers.
const (
	reasonNotSigned   = "Note is not signed"
	reasonNoSignature = "No signature log found"
	reasonTampered    = "Content has been modified since signing"
)

// Service implements note authoring, the signature engine, and the
// amendment manager.
type Service struct {
	notes      NoteRepository
	signatures SignatureRepository
	amendments AmendmentRepository
	directory  Directory
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(notes NoteRepository, signatures SignatureRepository, amendments AmendmentRepository, directory Directory, logger zerolog.Logger) *Service {
	return &Service{
		notes:      notes,
		signatures: signatures,
		amendments: amendments,
		directory:  directory,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the signing clock. Tests use this to produce
// deterministic signature hashes.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateNote creates an unsigned draft note.
func (s *Service) CreateNote(ctx context.Context, n *ClinicalNote) error {
	if n.EncounterID == uuid.Nil {
		return fmt.Errorf("encounter_id is required")
	}
	if n.AuthorID == uuid.Nil {
		return fmt.Errorf("author_id is required")
	}
	if n.NoteType == "" {
		n.NoteType = "soap"
	}
	n.IsSigned = false
	n.SignedAt = nil
	n.SignedBy = nil
	n.SignatureHash = nil
	return s.notes.Create(ctx, n)
}

// GetNote returns a note by id.
func (s *Service) GetNote(ctx context.Context, id uuid.UUID) (*ClinicalNote, error) {
	return s.notes.GetByID(ctx, id)
}

// UpdateDraft writes new clinical fields to an unsigned note. Edits to a
// signed note are rejected at this boundary; corrections to signed content
// must go through CreateAmendment.
func (s *Service) UpdateDraft(ctx context.Context, id uuid.UUID, content NoteContent) (*ClinicalNote, error) {
	note, err := s.notes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if note.IsSigned {
		return nil, ErrCannotEditSignedNote
	}

	note.Subjective = content.Subjective
	note.Objective = content.Objective
	note.Assessment = content.Assessment
	note.Plan = content.Plan
	note.ContentEncrypted = content.ContentEncrypted

	updated, err := s.notes.UpdateDraft(ctx, note)
	if err != nil {
		return nil, err
	}
	if !updated {
		// The note was signed between the read and the write.
		return nil, ErrCannotEditSignedNote
	}
	return note, nil
}

// ListByEncounter returns the notes recorded for an encounter.
func (s *Service) ListByEncounter(ctx context.Context, encounterID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error) {
	return s.notes.ListByEncounter(ctx, encounterID, limit, offset)
}

// Sign locks the note's current content under the caller's provider
// identity. The signing timestamp is always taken from the server clock.
//
// Two concurrent sign attempts on the same note resolve to exactly one
// success: the signed flag is flipped with a conditional update and the
// loser observes ErrAlreadySigned.
func (s *Service) Sign(ctx context.Context, noteID uuid.UUID, signerUserID string, meta RequestMeta) (*SignResult, error) {
	providerID, err := s.directory.ProviderIDForUser(ctx, signerUserID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider for user %s: %w", signerUserID, err)
	}
	if providerID == uuid.Nil {
		return nil, ErrNotAProvider
	}

	note, err := s.notes.GetByID(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note.IsSigned {
		return nil, ErrAlreadySigned
	}

	contentHash := ContentHash(note.Content())
	signedAt := s.now().UTC()
	signatureHash := SignatureHash(contentHash, providerID, signedAt)

	signed, err := s.notes.MarkSigned(ctx, noteID, providerID, signatureHash, signedAt)
	if err != nil {
		return nil, fmt.Errorf("mark note %s signed: %w", noteID, err)
	}
	if !signed {
		return nil, ErrAlreadySigned
	}

	record := &SignatureRecord{
		NoteID:             noteID,
		SignerID:           providerID,
		ContentHash:        contentHash,
		SignatureHash:      signatureHash,
		SignedAt:           signedAt,
		SignatureMethod:    signatureMethod,
		VerificationStatus: StatusValid,
		IPAddress:          meta.IPAddress,
		UserAgent:          meta.UserAgent,
	}
	if err := s.signatures.Create(ctx, record); err != nil {
		// The note signature itself succeeded; a lost signature record is
		// surfaced to operational monitoring rather than the caller, since
		// failing here would leave the note signed with no way to retry.
		s.logger.Error().Err(err).
			Str("note_id", noteID.String()).
			Str("signer_id", providerID.String()).
			Msg("failed to write signature log entry")
	}

	return &SignResult{
		SignatureHash: signatureHash,
		ContentHash:   contentHash,
		SignedAt:      signedAt,
	}, nil
}

// Verify recomputes the content hash from the note's current fields and
// compares it against the stored hash from signing time. A mismatch means
// the signed content was altered after signing.
func (s *Service) Verify(ctx context.Context, noteID uuid.UUID) (*VerifyResult, error) {
	note, err := s.notes.GetByID(ctx, noteID)
	if err != nil {
		return nil, err
	}

	if !note.IsSigned || note.SignatureHash == nil {
		reason := reasonNotSigned
		return &VerifyResult{Valid: false, ContentIntact: false, Reason: &reason}, nil
	}

	record, err := s.signatures.LatestByNote(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("load signature log for note %s: %w", noteID, err)
	}
	if record == nil {
		// A signed note without a signature record is an inconsistent state
		// that the sign path never produces; report it rather than guess.
		reason := reasonNoSignature
		return &VerifyResult{Valid: false, ContentIntact: false, Reason: &reason}, nil
	}

	currentHash := ContentHash(note.Content())
	contentIntact := currentHash == record.ContentHash

	result := &VerifyResult{
		Valid:           contentIntact && record.VerificationStatus == StatusValid,
		ContentIntact:   contentIntact,
		SignatureStatus: record.VerificationStatus,
		SignedAt:        &record.SignedAt,
		SignerID:        &record.SignerID,
	}
	if !contentIntact {
		reason := reasonTampered
		result.Reason = &reason
	}
	return result, nil
}

// CreateAmendment records a correction to a signed note as a new, unsigned
// note version linked to the original. The original row is never touched;
// the new note goes through Sign independently.
func (s *Service) CreateAmendment(ctx context.Context, originalNoteID uuid.UUID, content NoteContent, reason, authorUserID string) (*ClinicalNote, error) {
	if reason == "" {
		return nil, ErrMissingJustification
	}

	providerID, err := s.directory.ProviderIDForUser(ctx, authorUserID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider for user %s: %w", authorUserID, err)
	}
	if providerID == uuid.Nil {
		return nil, ErrNotAProvider
	}

	original, err := s.notes.GetByID(ctx, originalNoteID)
	if err != nil {
		return nil, err
	}
	if !original.IsSigned {
		return nil, ErrOriginalNotSigned
	}

	amendedFrom := original.ID
	amendment := &ClinicalNote{
		EncounterID:      original.EncounterID,
		AuthorID:         providerID,
		NoteType:         original.NoteType,
		Subjective:       content.Subjective,
		Objective:        content.Objective,
		Assessment:       content.Assessment,
		Plan:             content.Plan,
		ContentEncrypted: content.ContentEncrypted,
		IsAmendment:      true,
		AmendmentReason:  &reason,
		AmendedFromID:    &amendedFrom,
	}
	if err := s.notes.Create(ctx, amendment); err != nil {
		return nil, fmt.Errorf("create amendment note: %w", err)
	}

	link := &AmendmentLink{
		OriginalNoteID: original.ID,
		AmendedNoteID:  amendment.ID,
		AmendedBy:      providerID,
		Reason:         reason,
		AmendedAt:      s.now().UTC(),
	}
	if err := s.amendments.CreateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("create amendment link: %w", err)
	}

	return amendment, nil
}

// History returns the note followed by its amendment chain, oldest first.
// The chain is the transitive closure of amended_from links starting at the
// given note.
func (s *Service) History(ctx context.Context, noteID uuid.UUID) ([]*ClinicalNote, error) {
	root, err := s.notes.GetByID(ctx, noteID)
	if err != nil {
		return nil, err
	}

	history := []*ClinicalNote{root}
	frontier := []uuid.UUID{root.ID}
	seen := map[uuid.UUID]bool{root.ID: true}

	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]

		amendments, err := s.notes.ListAmendmentsOf(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list amendments of note %s: %w", id, err)
		}
		for _, a := range amendments {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			history = append(history, a)
			frontier = append(frontier, a.ID)
		}
	}

	return history, nil
}

// AmendmentLinks returns the recorded amendment links for an original note.
func (s *Service) AmendmentLinks(ctx context.Context, originalNoteID uuid.UUID) ([]*AmendmentLink, error) {
	return s.amendments.ListByOriginal(ctx, originalNoteID)
}
