package notes

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chartlock/chartlock/internal/platform/auth"
	"github.com/chartlock/chartlock/pkg/pagination"
)

// AccessChecker gates note reads on the caller's relationship to the
// patient the note belongs to. Implemented by the access decision engine.
type AccessChecker interface {
	CanAccess(ctx context.Context, ident *auth.Identity, patientID uuid.UUID, resourceType, resourceID, action string) (bool, string, error)
}

// Handler provides HTTP handlers for clinical notes, signatures, and
// amendments.
type Handler struct {
	svc    *Service
	access AccessChecker
}

func NewHandler(svc *Service, access AccessChecker) *Handler {
	return &Handler{svc: svc, access: access}
}

// RegisterRoutes registers all clinical note routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	write := api.Group("", auth.RequireRole(auth.RoleProvider, auth.RoleAdmin))
	write.POST("/clinical-notes", h.CreateNote)
	write.PUT("/clinical-notes/:id", h.UpdateNote)
	write.POST("/clinical-notes/:id/signature", h.Signature)
	write.POST("/clinical-notes/:id/amendments", h.CreateAmendment)

	api.GET("/clinical-notes", h.ListNotes)
	api.GET("/clinical-notes/:id", h.GetNote)
	api.GET("/clinical-notes/:id/history", h.GetHistory)
}

type noteRequest struct {
	EncounterID      uuid.UUID `json:"encounter_id"`
	NoteType         string    `json:"note_type"`
	Subjective       string    `json:"soap_subjective"`
	Objective        string    `json:"soap_objective"`
	Assessment       string    `json:"soap_assessment"`
	Plan             string    `json:"soap_plan"`
	ContentEncrypted *string   `json:"content_encrypted"`
}

func (h *Handler) CreateNote(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	if ident == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	providerID, err := h.svc.directory.ProviderIDForUser(ctx, ident.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if providerID == uuid.Nil {
		return echo.NewHTTPError(http.StatusForbidden, ErrNotAProvider.Error())
	}

	note := &ClinicalNote{
		EncounterID:      req.EncounterID,
		AuthorID:         providerID,
		NoteType:         req.NoteType,
		Subjective:       req.Subjective,
		Objective:        req.Objective,
		Assessment:       req.Assessment,
		Plan:             req.Plan,
		ContentEncrypted: req.ContentEncrypted,
	}
	if err := h.svc.CreateNote(ctx, note); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, note)
}

func (h *Handler) GetNote(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	note, err := h.svc.GetNote(ctx, id)
	if err != nil {
		return h.mapError(err)
	}

	if err := h.authorizeRead(c, note, "view_clinical_note", note.ID.String()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, note)
}

func (h *Handler) ListNotes(c echo.Context) error {
	encounterID, err := uuid.Parse(c.QueryParam("encounter_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "encounter_id is required")
	}
	ctx := c.Request().Context()

	ident := auth.IdentityFromContext(ctx)
	if ident == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	patientID, err := h.svc.directory.PatientIDForEncounter(ctx, encounterID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "encounter not found")
	}
	allowed, reason, err := h.access.CanAccess(ctx, ident, patientID, "clinical_note", encounterID.String(), "list_clinical_notes")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !allowed {
		return echo.NewHTTPError(http.StatusForbidden, reason)
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByEncounter(ctx, encounterID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateNote(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	note, err := h.svc.UpdateDraft(c.Request().Context(), id, NoteContent{
		Subjective:       req.Subjective,
		Objective:        req.Objective,
		Assessment:       req.Assessment,
		Plan:             req.Plan,
		ContentEncrypted: req.ContentEncrypted,
	})
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, note)
}

type signatureRequest struct {
	Action string `json:"action"`
}

// Signature handles both actions on a note's signature resource: "sign"
// locks the current content, "verify" checks the stored hash against the
// current content.
func (h *Handler) Signature(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req signatureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()

	switch req.Action {
	case "sign":
		ident := auth.IdentityFromContext(ctx)
		if ident == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		meta := RequestMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
		result, err := h.svc.Sign(ctx, id, ident.UserID, meta)
		if err != nil {
			return h.mapError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":        true,
			"signature_hash": result.SignatureHash,
			"content_hash":   result.ContentHash,
			"signed_at":      result.SignedAt,
		})
	case "verify":
		result, err := h.svc.Verify(ctx, id)
		if err != nil {
			return h.mapError(err)
		}
		return c.JSON(http.StatusOK, result)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "action must be sign or verify")
	}
}

type amendmentRequest struct {
	noteRequest
	Reason string `json:"amendment_reason"`
}

func (h *Handler) CreateAmendment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ident := auth.IdentityFromContext(c.Request().Context())
	if ident == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var req amendmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	amendment, err := h.svc.CreateAmendment(c.Request().Context(), id, NoteContent{
		Subjective:       req.Subjective,
		Objective:        req.Objective,
		Assessment:       req.Assessment,
		Plan:             req.Plan,
		ContentEncrypted: req.ContentEncrypted,
	}, req.Reason, ident.UserID)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusCreated, amendment)
}

func (h *Handler) GetHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()

	note, err := h.svc.GetNote(ctx, id)
	if err != nil {
		return h.mapError(err)
	}
	if err := h.authorizeRead(c, note, "view_note_history", note.ID.String()); err != nil {
		return err
	}

	history, err := h.svc.History(ctx, id)
	if err != nil {
		return h.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"note_id": id,
		"history": history,
		"total":   len(history),
	})
}

func (h *Handler) authorizeRead(c echo.Context, note *ClinicalNote, action, resourceID string) error {
	ctx := c.Request().Context()
	ident := auth.IdentityFromContext(ctx)
	if ident == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	patientID, err := h.svc.directory.PatientIDForEncounter(ctx, note.EncounterID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	allowed, reason, err := h.access.CanAccess(ctx, ident, patientID, "clinical_note", resourceID, action)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !allowed {
		return echo.NewHTTPError(http.StatusForbidden, reason)
	}
	return nil
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, ErrNoteNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadySigned),
		errors.Is(err, ErrOriginalNotSigned),
		errors.Is(err, ErrCannotEditSignedNote):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotAProvider):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrMissingJustification):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
