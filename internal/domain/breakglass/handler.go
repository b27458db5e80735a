package breakglass

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chartlock/chartlock/internal/platform/auth"
	"github.com/chartlock/chartlock/pkg/pagination"
)

// Handler serves the break glass record and review endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers break glass routes. Recording is open to any
// authenticated clinician; the review queue is compliance only.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/break-glass", h.RecordAccess)

	review := api.Group("", auth.RequireRole(auth.RoleComplianceOfficer, auth.RoleAdmin))
	review.GET("/break-glass/pending", h.ListPending)
	review.GET("/break-glass/:id", h.GetLog)
	review.POST("/break-glass/:id/review", h.Review)
}

type recordRequest struct {
	PatientID     string `json:"patient_id"`
	Reason        string `json:"reason"`
	Justification string `json:"justification"`
}

func (h *Handler) RecordAccess(c echo.Context) error {
	ctx := c.Request().Context()
	ident := auth.IdentityFromContext(ctx)
	if ident == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := h.svc.RecordEmergencyAccess(ctx, ident.UserID, req.PatientID, req.Reason, req.Justification)
	if err != nil {
		if errors.Is(err, ErrMissingJustification) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) ListPending(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPending(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetLog(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	l, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, l)
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) Review(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	ident := auth.IdentityFromContext(ctx)

	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	l, err := h.svc.Review(ctx, id, ident, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrUnauthorized):
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		case errors.Is(err, ErrAlreadyReviewed):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, l)
}
