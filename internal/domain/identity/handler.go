package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicadental/agenda/internal/platform/auth"
	"github.com/clinicadental/agenda/pkg/response"
)

type Handler struct {
	dir *Directory
}

func NewHandler(dir *Directory) *Handler {
	return &Handler{dir: dir}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/usuarios/me", h.GetMe)
}

// GetMe returns the caller's directory entry, which clients use to learn
// whether their profile is complete enough to book.
func (h *Handler) GetMe(c echo.Context) error {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Token de autenticación requerido")
	}
	u, err := h.dir.GetUser(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Usuario no encontrado")
		}
		return err
	}
	return response.OK(c, "Usuario obtenido", u)
}
