package audit

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

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &auditRepoPG{pool: pool}
}

func (r *auditRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const logCols = `id, user_id, patient_id, action, resource_type, resource_id,
	ip_address, user_agent, accessed_at`

func (r *auditRepoPG) Insert(ctx context.Context, l *AccessLog) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO phi_access_log (id, user_id, patient_id, action, resource_type,
			resource_id, ip_address, user_agent, accessed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		l.ID, l.UserID, l.PatientID, l.Action, l.ResourceType,
		l.ResourceID, l.IPAddress, l.UserAgent, l.AccessedAt)
	return err
}

func (r *auditRepoPG) scanLogs(rows pgx.Rows) ([]*AccessLog, error) {
	defer rows.Close()
	var items []*AccessLog
	for rows.Next() {
		var l AccessLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.PatientID, &l.Action, &l.ResourceType,
			&l.ResourceID, &l.IPAddress, &l.UserAgent, &l.AccessedAt); err != nil {
			return nil, err
		}
		items = append(items, &l)
	}
	return items, nil
}

func (r *auditRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AccessLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM phi_access_log WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM phi_access_log
		WHERE patient_id = $1 ORDER BY accessed_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanLogs(rows)
	return items, total, err
}

func (r *auditRepoPG) ListByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*AccessLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM phi_access_log WHERE accessed_at >= $1 AND accessed_at < $2`,
		from, to).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM phi_access_log
		WHERE accessed_at >= $1 AND accessed_at < $2
		ORDER BY accessed_at DESC LIMIT $3 OFFSET $4`,
		from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanLogs(rows)
	return items, total, err
}

func (r *auditRepoPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*AccessLog, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM phi_access_log WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM phi_access_log
		WHERE user_id = $1 ORDER BY accessed_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.scanLogs(rows)
	return items, total, err
}

type patientLookupPG struct{ pool *pgxpool.Pool }

// NewPatientLookupPG resolves patients from the shared patients table.
func NewPatientLookupPG(pool *pgxpool.Pool) PatientLookup {
	return &patientLookupPG{pool: pool}
}

func (r *patientLookupPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *patientLookupPG) PatientIDForUser(ctx context.Context, userID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM patients WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
