package document

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medscript/medscript/internal/domain/prescription"
	"github.com/medscript/medscript/internal/platform/auth"
	"github.com/medscript/medscript/internal/platform/telemetry"
)

// MetricRenderFailures counts documents that could not be rendered.
const MetricRenderFailures = "render_failures_total"

type Handler struct {
	svc      *prescription.Service
	renderer *Renderer
	metrics  *telemetry.Provider
	logger   zerolog.Logger
}

func NewHandler(svc *prescription.Service, renderer *Renderer, metrics *telemetry.Provider, logger zerolog.Logger) *Handler {
	if metrics != nil {
		metrics.Register(MetricRenderFailures, "", "Prescription documents that failed to render.")
	}
	return &Handler{svc: svc, renderer: renderer, metrics: metrics, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician", "assistant"))
	g.GET("/prescriptions/:id/document", h.GetDocument)
}

// GetDocument regenerates the PDF for a record. Regeneration is exact: the
// bytes match every earlier render of the same record, amended or not.
func (h *Handler) GetDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, prescription.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	pdf, err := h.renderer.Render(p)
	if err != nil {
		if h.metrics != nil {
			h.metrics.Inc(MetricRenderFailures, "")
		}
		h.logger.Error().Err(err).Str("prescription_id", id.String()).Msg("document render failed")
		var re *RenderError
		if errors.As(err, &re) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, re.Msg)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		`inline; filename="prescription-`+id.String()+`.pdf"`)
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}
