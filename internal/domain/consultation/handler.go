package consultation

import (
	"net/http"

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
	g := api.Group("/consultations", auth.RequireRole(auth.RoleStaff))
	g.GET("", h.ListConsultations)
	g.GET("/patient/:patientId", h.ListByPatient)
	g.GET("/:id", h.GetConsultation)
	g.POST("", h.CreateConsultation)
	g.PUT("/:id", h.UpdateConsultation)
	g.DELETE("/:id", h.DeleteConsultation)

	g.POST("/:id/upload-audio", h.UploadAudio)
	g.GET("/:id/audios/:audioId", h.GetAudio)
	g.POST("/:id/audios/:audioId/reprocess", h.ReprocessAudio)
	g.DELETE("/:id/audios/:audioId", h.DeleteAudio)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) CreateConsultation(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cons, err := h.svc.CreateConsultation(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, cons)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	cons, err := h.svc.GetConsultation(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) ListConsultations(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListConsultations(c.Request().Context(), nil, pg.Limit, pg.Offset)
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
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListConsultations(c.Request().Context(), &patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateConsultation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cons, err := h.svc.UpdateConsultation(c.Request().Context(), id, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, cons)
}

func (h *Handler) DeleteConsultation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteConsultation(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "consultation deleted"})
}

// UploadAudio accepts a multipart "audio" field and answers as soon as the
// recording is stored; transcription continues in the background.
func (h *Handler) UploadAudio(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	fh, err := c.FormFile("audio")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "audio file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	audio, err := h.svc.UploadAudio(c.Request().Context(), id, fh.Filename, fh.Header.Get(echo.HeaderContentType), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"audio":   audio,
		"message": "upload complete, transcription started",
	})
}

func (h *Handler) GetAudio(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	audioID, err := parseID(c, "audioId")
	if err != nil {
		return err
	}
	audio, err := h.svc.GetAudio(c.Request().Context(), id, audioID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, audio)
}

func (h *Handler) ReprocessAudio(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	audioID, err := parseID(c, "audioId")
	if err != nil {
		return err
	}
	audio, err := h.svc.ReprocessAudio(c.Request().Context(), id, audioID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusAccepted, audio)
}

func (h *Handler) DeleteAudio(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	audioID, err := parseID(c, "audioId")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAudio(c.Request().Context(), id, audioID); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "audio recording deleted"})
}
