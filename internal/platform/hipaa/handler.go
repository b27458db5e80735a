package hipaa

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chartlock/chartlock/internal/platform/auth"
)

// Handler exposes field-level PHI encryption to trusted internal callers.
type Handler struct {
	enc *PHIEncryptor
}

func NewHandler(enc *PHIEncryptor) *Handler {
	return &Handler{enc: enc}
}

// RegisterRoutes registers the encrypt and decrypt routes. Restricted to
// clinicians and administrators; these endpoints never see storage, only
// the value in the request.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	phi := api.Group("/phi", auth.RequireRole(auth.RoleProvider, auth.RoleAdmin))
	phi.POST("/encrypt", h.Encrypt)
	phi.POST("/decrypt", h.Decrypt)
}

type valueRequest struct {
	Value string `json:"value"`
}

type valueResponse struct {
	Result string `json:"result"`
}

func (h *Handler) Encrypt(c echo.Context) error {
	var req valueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}
	out, err := h.enc.Encrypt(req.Value)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, valueResponse{Result: out})
}

func (h *Handler) Decrypt(c echo.Context) error {
	var req valueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Value == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}
	out, err := h.enc.Decrypt(req.Value)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to decrypt value")
	}
	return c.JSON(http.StatusOK, valueResponse{Result: out})
}
