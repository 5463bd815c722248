package report

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/jobs"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RoleStaff))
	g.GET("", h.ListReports)
	g.GET("/patient/:patientId", h.ListByPatient)
	g.GET("/:id", h.GetReport)
	g.POST("/generate", h.Generate)
	g.POST("/generate/sync", h.GenerateSync)
	g.POST("/:id/regenerate", h.Regenerate)
	g.PUT("/:id", h.UpdateReport)
	g.DELETE("/:id", h.DeleteReport)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) ListReports(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReports(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := parseID(c, "patientId")
	if err != nil {
		return err
	}
	items, err := h.svc.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.FromSlice(items, pagination.FromContext(c)))
}

func (h *Handler) GetReport(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.svc.GetReport(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

// Generate answers 202 as soon as the report record exists; the content is
// written by the background job.
func (h *Handler) Generate(c echo.Context) error {
	var in GenerateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Generate(c.Request().Context(), in, false)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "report generation started",
		"status":  r.ProcessingStatus,
		"report":  r,
	})
}

func (h *Handler) GenerateSync(c echo.Context) error {
	var in GenerateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.Generate(c.Request().Context(), in, true)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if r.ProcessingStatus == jobs.StatusFailed {
		msg := "report generation failed"
		if r.ProcessingError != nil {
			msg = *r.ProcessingError
		}
		return apperr.ToHTTP(apperr.Internal(msg, nil))
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) Regenerate(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.svc.Regenerate(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusAccepted, r)
}

func (h *Handler) UpdateReport(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.UpdateReport(c.Request().Context(), id, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteReport(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteReport(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "report deleted"})
}
