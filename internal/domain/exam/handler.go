package exam

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/exams", auth.RequireRole(auth.RoleStaff))
	g.GET("/categories", h.ListCategories)
	g.POST("/upload", h.Upload)
	g.GET("/patient/:patientId", h.ListByPatient)
	g.GET("/patient/:patientId/export", h.Export)
	g.GET("/:id", h.GetExam)
	g.POST("/:id/reprocess", h.Reprocess)
	g.DELETE("/:id", h.DeleteExam)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// Upload accepts a multipart form with patient_id and file. The response is
// sent once the file is stored; analysis continues in the background.
func (h *Handler) Upload(c echo.Context) error {
	rawPatient := c.FormValue("patient_id")
	if rawPatient == "" {
		rawPatient = c.FormValue("patientId")
	}
	fh, fileErr := c.FormFile("file")
	if rawPatient == "" || fileErr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id and file are required")
	}
	patientID, err := uuid.Parse(rawPatient)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	exam, err := h.svc.Upload(c.Request().Context(), patientID, fh.Filename, fh.Header.Get(echo.HeaderContentType), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"exam":    exam,
		"message": "upload complete, analysis in progress",
	})
}

func (h *Handler) GetExam(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	exam, err := h.svc.GetExam(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, exam)
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

// Reprocess answers 202 with the reset record, or with ?wait=true runs the
// analysis in the request and answers with the final record.
func (h *Handler) Reprocess(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	wait, _ := strconv.ParseBool(c.QueryParam("wait"))
	exam, err := h.svc.Reprocess(c.Request().Context(), id, wait)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if !wait {
		return c.JSON(http.StatusAccepted, exam)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "reprocessing finished",
		"exam":    exam,
	})
}

func (h *Handler) DeleteExam(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteExam(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "exam deleted"})
}

func (h *Handler) ListCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, Categories)
}

func (h *Handler) Export(c echo.Context) error {
	patientID, err := parseID(c, "patientId")
	if err != nil {
		return err
	}
	data, name, err := h.svc.Export(c.Request().Context(), patientID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, XLSXMediaType, data)
}
