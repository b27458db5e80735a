package notes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chartlock/chartlock/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository {
	return &noteRepoPG{pool: pool}
}

func (r *noteRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const noteCols = `id, encounter_id, author_id, note_type,
	soap_subjective, soap_objective, soap_assessment, soap_plan, content_encrypted,
	is_signed, signed_at, signed_by, signature_hash,
	is_amendment, amendment_reason, amended_from_id,
	created_at, updated_at`

func (r *noteRepoPG) scanNote(row pgx.Row) (*ClinicalNote, error) {
	var n ClinicalNote
	err := row.Scan(&n.ID, &n.EncounterID, &n.AuthorID, &n.NoteType,
		&n.Subjective, &n.Objective, &n.Assessment, &n.Plan, &n.ContentEncrypted,
		&n.IsSigned, &n.SignedAt, &n.SignedBy, &n.SignatureHash,
		&n.IsAmendment, &n.AmendmentReason, &n.AmendedFromID,
		&n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	return &n, err
}

func (r *noteRepoPG) Create(ctx context.Context, n *ClinicalNote) error {
	n.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_notes (id, encounter_id, author_id, note_type,
			soap_subjective, soap_objective, soap_assessment, soap_plan, content_encrypted,
			is_amendment, amendment_reason, amended_from_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		n.ID, n.EncounterID, n.AuthorID, n.NoteType,
		n.Subjective, n.Objective, n.Assessment, n.Plan, n.ContentEncrypted,
		n.IsAmendment, n.AmendmentReason, n.AmendedFromID).
		Scan(&n.CreatedAt, &n.UpdatedAt)
}

func (r *noteRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicalNote, error) {
	return r.scanNote(r.conn(ctx).QueryRow(ctx, `SELECT `+noteCols+` FROM clinical_notes WHERE id = $1`, id))
}

func (r *noteRepoPG) UpdateDraft(ctx context.Context, n *ClinicalNote) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_notes SET soap_subjective=$2, soap_objective=$3,
			soap_assessment=$4, soap_plan=$5, content_encrypted=$6, updated_at=NOW()
		WHERE id = $1 AND is_signed = false`,
		n.ID, n.Subjective, n.Objective, n.Assessment, n.Plan, n.ContentEncrypted)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *noteRepoPG) MarkSigned(ctx context.Context, id, signerID uuid.UUID, signatureHash string, signedAt time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinical_notes SET is_signed=true, signed_at=$2, signed_by=$3,
			signature_hash=$4, updated_at=NOW()
		WHERE id = $1 AND is_signed = false`,
		id, signedAt, signerID, signatureHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *noteRepoPG) ListByEncounter(ctx context.Context, encounterID uuid.UUID, limit, offset int) ([]*ClinicalNote, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM clinical_notes WHERE encounter_id = $1`, encounterID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+noteCols+` FROM clinical_notes
		WHERE encounter_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		encounterID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ClinicalNote
	for rows.Next() {
		n, err := r.scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, nil
}

func (r *noteRepoPG) ListAmendmentsOf(ctx context.Context, noteID uuid.UUID) ([]*ClinicalNote, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+noteCols+` FROM clinical_notes
		WHERE amended_from_id = $1 ORDER BY created_at ASC`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ClinicalNote
	for rows.Next() {
		n, err := r.scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, nil
}

type signatureRepoPG struct{ pool *pgxpool.Pool }

func NewSignatureRepoPG(pool *pgxpool.Pool) SignatureRepository {
	return &signatureRepoPG{pool: pool}
}

func (r *signatureRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *signatureRepoPG) Create(ctx context.Context, rec *SignatureRecord) error {
	rec.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO signature_log (id, note_id, signer_id, content_hash, signature_hash,
			signed_at, signature_method, verification_status, ip_address, user_agent)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at`,
		rec.ID, rec.NoteID, rec.SignerID, rec.ContentHash, rec.SignatureHash,
		rec.SignedAt, rec.SignatureMethod, rec.VerificationStatus, rec.IPAddress, rec.UserAgent).
		Scan(&rec.CreatedAt)
}

func (r *signatureRepoPG) LatestByNote(ctx context.Context, noteID uuid.UUID) (*SignatureRecord, error) {
	var rec SignatureRecord
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, note_id, signer_id, content_hash, signature_hash, signed_at,
			signature_method, verification_status, ip_address, user_agent, created_at
		FROM signature_log WHERE note_id = $1
		ORDER BY signed_at DESC LIMIT 1`, noteID).
		Scan(&rec.ID, &rec.NoteID, &rec.SignerID, &rec.ContentHash, &rec.SignatureHash,
			&rec.SignedAt, &rec.SignatureMethod, &rec.VerificationStatus,
			&rec.IPAddress, &rec.UserAgent, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type amendmentRepoPG struct{ pool *pgxpool.Pool }

func NewAmendmentRepoPG(pool *pgxpool.Pool) AmendmentRepository {
	return &amendmentRepoPG{pool: pool}
}

func (r *amendmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *amendmentRepoPG) CreateLink(ctx context.Context, l *AmendmentLink) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO note_amendments (id, original_note_id, amended_note_id, amended_by, reason, amended_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.OriginalNoteID, l.AmendedNoteID, l.AmendedBy, l.Reason, l.AmendedAt)
	return err
}

func (r *amendmentRepoPG) ListByOriginal(ctx context.Context, originalNoteID uuid.UUID) ([]*AmendmentLink, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, original_note_id, amended_note_id, amended_by, reason, amended_at
		FROM note_amendments WHERE original_note_id = $1 ORDER BY amended_at ASC`, originalNoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AmendmentLink
	for rows.Next() {
		var l AmendmentLink
		if err := rows.Scan(&l.ID, &l.OriginalNoteID, &l.AmendedNoteID, &l.AmendedBy, &l.Reason, &l.AmendedAt); err != nil {
			return nil, err
		}
		items = append(items, &l)
	}
	return items, nil
}

type directoryPG struct{ pool *pgxpool.Pool }

// NewDirectoryPG resolves providers and patients from the shared EHR tables.
func NewDirectoryPG(pool *pgxpool.Pool) Directory {
	return &directoryPG{pool: pool}
}

func (r *directoryPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *directoryPG) ProviderIDForUser(ctx context.Context, userID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM providers WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *directoryPG) PatientIDForEncounter(ctx context.Context, encounterID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT patient_id FROM encounters WHERE id = $1`, encounterID).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
