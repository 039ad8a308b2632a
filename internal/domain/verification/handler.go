package verification

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	resolver *Resolver
}

func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// RegisterRoutes mounts the resolve endpoint. Verification is public by
// design: the bearer of a printed document must be able to check it without
// credentials, and the result discloses no clinical content.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/verify/:token", h.ResolveToken)
}

func (h *Handler) ResolveToken(c echo.Context) error {
	res, err := h.resolver.Resolve(c.Request().Context(), c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, res)
}
