package access

import (
	"context"

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

type directoryPG struct{ pool *pgxpool.Pool }

// NewDirectoryPG backs all three engine directories with the shared EHR
// tables: user_roles, patient_provider_assignments, and patients.
func NewDirectoryPG(pool *pgxpool.Pool) *directoryPG {
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

func (r *directoryPG) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT role FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (r *directoryPG) HasActiveAssignment(ctx context.Context, providerUserID string, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patient_provider_assignments a
			JOIN providers p ON p.id = a.provider_id
			WHERE p.user_id = $1 AND a.patient_id = $2 AND a.revoked_at IS NULL
		)`, providerUserID, patientID).Scan(&exists)
	return exists, err
}

func (r *directoryPG) IsPatientOwner(ctx context.Context, userID string, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patients WHERE id = $1 AND user_id = $2
		)`, patientID, userID).Scan(&exists)
	return exists, err
}
