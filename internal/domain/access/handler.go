package access

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chartlock/chartlock/internal/platform/auth"
)

// Handler exposes the access decision engine over HTTP so clients can
// probe permissions before rendering PHI views.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes registers the access check route. Any authenticated user
// may ask about their own access; the decision itself is the guard.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/access/check", h.CheckAccess)
}

func (h *Handler) CheckAccess(c echo.Context) error {
	ctx := c.Request().Context()
	ident := auth.IdentityFromContext(ctx)
	if ident == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	decision, err := h.engine.Check(ctx, ident, &req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, decision)
}
