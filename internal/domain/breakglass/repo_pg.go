package breakglass

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

type breakGlassRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &breakGlassRepoPG{pool: pool}
}

func (r *breakGlassRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const logCols = `id, user_id, patient_id, reason, justification, accessed_at,
	reviewed_by, reviewed_at, review_notes`

func (r *breakGlassRepoPG) scanLog(row pgx.Row) (*Log, error) {
	var l Log
	err := row.Scan(&l.ID, &l.UserID, &l.PatientID, &l.Reason, &l.Justification,
		&l.AccessedAt, &l.ReviewedBy, &l.ReviewedAt, &l.ReviewNotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &l, err
}

func (r *breakGlassRepoPG) Create(ctx context.Context, l *Log) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO break_glass_log (id, user_id, patient_id, reason, justification, accessed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.UserID, l.PatientID, l.Reason, l.Justification, l.AccessedAt)
	return err
}

func (r *breakGlassRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Log, error) {
	return r.scanLog(r.conn(ctx).QueryRow(ctx, `SELECT `+logCols+` FROM break_glass_log WHERE id = $1`, id))
}

func (r *breakGlassRepoPG) MarkReviewed(ctx context.Context, id uuid.UUID, reviewerID, notes string, reviewedAt time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE break_glass_log SET reviewed_by=$2, reviewed_at=$3, review_notes=$4
		WHERE id = $1 AND reviewed_at IS NULL`,
		id, reviewerID, reviewedAt, notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *breakGlassRepoPG) ListPending(ctx context.Context, limit, offset int) ([]*Log, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM break_glass_log WHERE reviewed_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM break_glass_log
		WHERE reviewed_at IS NULL ORDER BY accessed_at ASC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Log
	for rows.Next() {
		l, err := r.scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, nil
}

func (r *breakGlassRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Log, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM break_glass_log WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM break_glass_log
		WHERE patient_id = $1 ORDER BY accessed_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Log
	for rows.Next() {
		l, err := r.scanLog(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, nil
}

func (r *breakGlassRepoPG) CountRecentByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM break_glass_log WHERE user_id = $1 AND accessed_at >= $2`,
		userID, since).Scan(&count)
	return count, err
}
