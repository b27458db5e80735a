package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chartlock/chartlock/internal/domain/notes"
)

func newNoteService() *notes.Service {
	return notes.NewService(
		notes.NewNoteRepoPG(globalPool),
		notes.NewSignatureRepoPG(globalPool),
		notes.NewAmendmentRepoPG(globalPool),
		notes.NewDirectoryPG(globalPool),
		zerolog.Nop(),
	)
}

func TestNoteSignVerifyLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newNoteService()

	providerUser := uniqueUserID("prov")
	providerID := seedProvider(t, ctx, providerUser)
	patientID := seedPatient(t, ctx, "")
	encounterID := seedEncounter(t, ctx, patientID)

	note := &notes.ClinicalNote{
		EncounterID: encounterID,
		AuthorID:    providerID,
		Subjective:  "Patient reports chest tightness on exertion.",
		Objective:   "BP 148/92, HR 88. Lungs clear.",
		Assessment:  "Probable stable angina.",
		Plan:        "Order stress test, start aspirin 81mg daily.",
	}
	if err := svc.CreateNote(ctx, note); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if note.IsSigned {
		t.Fatal("new note must start unsigned")
	}

	result, err := svc.Sign(ctx, note.ID, providerUser, notes.RequestMeta{IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(result.SignatureHash) != 64 || len(result.ContentHash) != 64 {
		t.Errorf("expected 64-char hashes, got %d/%d", len(result.SignatureHash), len(result.ContentHash))
	}

	// A second sign attempt against the signed row must lose.
	if _, err := svc.Sign(ctx, note.ID, providerUser, notes.RequestMeta{}); !errors.Is(err, notes.ErrAlreadySigned) {
		t.Fatalf("expected ErrAlreadySigned, got %v", err)
	}

	verify, err := svc.Verify(ctx, note.ID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !verify.Valid || !verify.ContentIntact {
		t.Fatalf("expected valid intact signature, got %+v", verify)
	}
	if verify.SignerID == nil || *verify.SignerID != providerID {
		t.Errorf("expected signer %s, got %v", providerID, verify.SignerID)
	}
}

func TestVerify_DetectsDirectRowTampering(t *testing.T) {
	ctx := context.Background()
	svc := newNoteService()

	providerUser := uniqueUserID("prov")
	providerID := seedProvider(t, ctx, providerUser)
	patientID := seedPatient(t, ctx, "")
	encounterID := seedEncounter(t, ctx, patientID)

	note := &notes.ClinicalNote{
		EncounterID: encounterID,
		AuthorID:    providerID,
		Assessment:  "Type 2 diabetes, well controlled.",
	}
	if err := svc.CreateNote(ctx, note); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if _, err := svc.Sign(ctx, note.ID, providerUser, notes.RequestMeta{}); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// Simulate an out-of-band edit that bypasses the service layer.
	mustExec(t, ctx, `
		UPDATE clinical_notes SET soap_assessment = 'Type 2 diabetes, poorly controlled.'
		WHERE id = $1`, note.ID)

	verify, err := svc.Verify(ctx, note.ID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verify.Valid || verify.ContentIntact {
		t.Fatalf("expected tamper detection, got %+v", verify)
	}
	if verify.Reason == nil || *verify.Reason != "Content has been modified since signing" {
		t.Errorf("unexpected reason: %v", verify.Reason)
	}
}

func TestAmendmentChainAcrossRows(t *testing.T) {
	ctx := context.Background()
	svc := newNoteService()

	providerUser := uniqueUserID("prov")
	providerID := seedProvider(t, ctx, providerUser)
	patientID := seedPatient(t, ctx, "")
	encounterID := seedEncounter(t, ctx, patientID)

	original := &notes.ClinicalNote{
		EncounterID: encounterID,
		AuthorID:    providerID,
		Plan:        "Amoxicillin 500mg TID for 10 days.",
	}
	if err := svc.CreateNote(ctx, original); err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	// Amendments require a signed original.
	if _, err := svc.CreateAmendment(ctx, original.ID, notes.NoteContent{}, "dosage error", providerUser); !errors.Is(err, notes.ErrOriginalNotSigned) {
		t.Fatalf("expected ErrOriginalNotSigned, got %v", err)
	}

	if _, err := svc.Sign(ctx, original.ID, providerUser, notes.RequestMeta{}); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	amendment, err := svc.CreateAmendment(ctx, original.ID,
		notes.NoteContent{Plan: "Amoxicillin 875mg BID for 10 days."},
		"incorrect dosage recorded", providerUser)
	if err != nil {
		t.Fatalf("CreateAmendment: %v", err)
	}
	if !amendment.IsAmendment || amendment.IsSigned {
		t.Fatalf("amendment must be an unsigned new version, got %+v", amendment)
	}

	history, err := svc.History(ctx, original.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}
	if history[0].ID != original.ID || history[1].ID != amendment.ID {
		t.Error("history must list the original before the amendment")
	}

	links, err := svc.AmendmentLinks(ctx, original.ID)
	if err != nil {
		t.Fatalf("AmendmentLinks: %v", err)
	}
	if len(links) != 1 || links[0].Reason != "incorrect dosage recorded" {
		t.Fatalf("unexpected links: %+v", links)
	}
}
