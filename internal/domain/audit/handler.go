package audit

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chartlock/chartlock/internal/platform/auth"
	"github.com/chartlock/chartlock/pkg/pagination"
)

// Handler serves PHI access log views.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers access log routes. The compliance view is
// restricted; the self view is open to any authenticated patient.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	review := api.Group("", auth.RequireRole(auth.RoleComplianceOfficer, auth.RoleAdmin))
	review.GET("/phi-access-logs", h.ListLogs)

	api.GET("/phi-access-logs/me", h.ListOwnLogs)
}

// ListLogs serves the compliance review view. Filters: patient_id, user_id,
// or a from/to time range (RFC3339). Exactly one filter is required so a
// reviewer cannot accidentally dump the whole log.
func (h *Handler) ListLogs(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)

	if p := c.QueryParam("patient_id"); p != "" {
		patientID, err := uuid.Parse(p)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		items, total, err := h.svc.ListByPatient(ctx, patientID, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	if u := c.QueryParam("user_id"); u != "" {
		items, total, err := h.svc.ListByUser(ctx, u, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	fromParam, toParam := c.QueryParam("from"), c.QueryParam("to")
	if fromParam == "" || toParam == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id, user_id, or from/to range is required")
	}
	from, err := time.Parse(time.RFC3339, fromParam)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
	}
	to, err := time.Parse(time.RFC3339, toParam)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
	}
	items, total, err := h.svc.ListByTimeRange(ctx, from, to, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// ListOwnLogs serves a patient's view of who accessed their records.
func (h *Handler) ListOwnLogs(c echo.Context) error {
	ctx := c.Request().Context()
	ident := auth.IdentityFromContext(ctx)
	if ident == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	patientID, err := h.svc.OwnPatientID(ctx, ident.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if patientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusForbidden, "no patient record for this account")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(ctx, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
