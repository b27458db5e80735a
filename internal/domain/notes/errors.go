package notes

import "errors"

// Integrity rule violations returned as typed failures so the transport
// layer can map each to a precise status and message.
var (
	// ErrNoteNotFound indicates the requested note does not exist.
	ErrNoteNotFound = errors.New("note not found")

	// ErrAlreadySigned indicates a sign attempt on a note that is already
	// signed. Each note version is signable exactly once.
	ErrAlreadySigned = errors.New("note is already signed")

	// ErrNotAProvider indicates the caller does not resolve to a provider
	// identity and therefore cannot sign notes.
	ErrNotAProvider = errors.New("user is not a provider")

	// ErrOriginalNotSigned indicates an amendment was attempted against a
	// note that has not been signed. Drafts are corrected in place, not
	// amended.
	ErrOriginalNotSigned = errors.New("original note is not signed")

	// ErrMissingJustification indicates an amendment without a reason.
	ErrMissingJustification = errors.New("amendment reason is required")

	// ErrCannotEditSignedNote indicates an in-place edit attempt on a
	// signed note. Signed content is immutable; corrections go through
	// amendments.
	ErrCannotEditSignedNote = errors.New("signed notes cannot be edited")
)
