package notes

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NoteContent is the canonical serialization unit for content hashing.
// Field order is fixed by this struct definition, never by the caller, so
// the digest is stable across processes.
type NoteContent struct {
	Subjective       string  `json:"soap_subjective"`
	Objective        string  `json:"soap_objective"`
	Assessment       string  `json:"soap_assessment"`
	Plan             string  `json:"soap_plan"`
	ContentEncrypted *string `json:"content_encrypted"`
}

// ContentHash returns the hex-encoded SHA-256 digest of the note content.
// Any difference in any field, including whitespace, changes the digest.
func ContentHash(content NoteContent) string {
	data, _ := json.Marshal(content)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SignatureHash binds a content hash to the signer and the server-side
// signing timestamp: sha256(contentHash | signerID | RFC3339Nano timestamp).
// The timestamp must come from the server clock; accepting a caller-supplied
// value would allow signature backdating.
func SignatureHash(contentHash string, signerID uuid.UUID, signedAt time.Time) string {
	payload := contentHash + "|" + signerID.String() + "|" + signedAt.UTC().Format(time.RFC3339Nano)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
