package breakglass

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the break glass log entry does not exist.
	ErrNotFound = errors.New("break glass log not found")

	// ErrMissingJustification indicates an emergency access attempt
	// without a stated justification.
	ErrMissingJustification = errors.New("justification is required for emergency access")

	// ErrUnauthorized indicates the caller lacks the reviewer role.
	ErrUnauthorized = errors.New("only compliance officers may review emergency access")

	// ErrAlreadyReviewed indicates a second review attempt on an entry.
	ErrAlreadyReviewed = errors.New("emergency access has already been reviewed")
)

// Log maps to the break_glass_log table. One row per emergency access
// override; every row stays pending until a compliance reviewer closes it.
type Log struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	PatientID     *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Reason        string     `db:"reason" json:"reason"`
	Justification string     `db:"justification" json:"justification"`
	AccessedAt    time.Time  `db:"accessed_at" json:"accessed_at"`
	ReviewedBy    *string    `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes   *string    `db:"review_notes" json:"review_notes,omitempty"`
}

// Pending reports whether the entry still awaits compliance review.
func (l *Log) Pending() bool {
	return l.ReviewedAt == nil
}
