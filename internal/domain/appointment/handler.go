package appointment

import (
	"net/http"
	"time"

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
	g := api.Group("/appointments", auth.RequireRole(auth.RoleStaff))
	g.GET("", h.ListAppointments)
	g.GET("/:id", h.GetAppointment)
	g.GET("/:id/ics", h.DownloadICS)
	g.POST("", h.CreateAppointment)
	g.PUT("/:id", h.UpdateAppointment)
	g.POST("/:id/cancel", h.CancelAppointment)
	g.DELETE("/:id", h.DeleteAppointment)

	// The callback is reached by the consent redirect and is public.
	api.GET("/calendar/google/callback", h.GoogleCallback)
	cal := api.Group("/calendar/google", auth.RequireRole(auth.RoleAdmin))
	cal.GET("/auth-url", h.GoogleAuthURL)
	cal.GET("/events", h.GoogleEvents)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

const dateLayout = "2006-01-02"

// parseTime accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseTime(value string, endOfDay bool) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func filterFromQuery(c echo.Context) (Filter, error) {
	var f Filter
	for _, p := range []struct {
		name string
		dst  **uuid.UUID
	}{
		{"patient_id", &f.PatientID},
		{"user_id", &f.UserID},
	} {
		if v := c.QueryParam(p.name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name)
			}
			*p.dst = &id
		}
	}
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		f.Status = &st
	}
	for _, p := range []struct {
		name     string
		dst      **time.Time
		endOfDay bool
	}{
		{"start_date", &f.StartDate, false},
		{"end_date", &f.EndDate, true},
	} {
		if v := c.QueryParam(p.name); v != "" {
			t, err := parseTime(v, p.endOfDay)
			if err != nil {
				return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name)
			}
			*p.dst = t
		}
	}
	return f, nil
}

func (h *Handler) ListAppointments(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAppointments(c.Request().Context(), f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.FromSlice(items, pagination.FromContext(c)))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DownloadICS(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="appointment-`+a.ID.String()+`.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(h.svc.ICS(a)))
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.CreateAppointment(c.Request().Context(), in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Reason *string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.CancelAppointment(c.Request().Context(), id, body.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "appointment deleted"})
}

func (h *Handler) GoogleAuthURL(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"url": h.svc.Google().AuthURL(uuid.NewString())})
}

// GoogleCallback completes the consent flow. The tokens are returned so an
// operator can persist them as GOOGLE_ACCESS_TOKEN and GOOGLE_REFRESH_TOKEN.
func (h *Handler) GoogleCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}
	tok, err := h.svc.Google().Exchange(c.Request().Context(), code)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       "google calendar connected",
		"access_token":  tok.AccessToken,
		"refresh_token": tok.RefreshToken,
		"expiry":        tok.Expiry,
	})
}

// GoogleEvents lists remote events; without bounds the next 30 days are
// returned.
func (h *Handler) GoogleEvents(c echo.Context) error {
	start := time.Now()
	end := start.AddDate(0, 0, 30)
	for _, p := range []struct {
		name     string
		dst      *time.Time
		endOfDay bool
	}{
		{"start", &start, false},
		{"end", &end, true},
	} {
		if v := c.QueryParam(p.name); v != "" {
			t, err := parseTime(v, p.endOfDay)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+p.name)
			}
			*p.dst = *t
		}
	}
	google := h.svc.Google()
	if !google.Enabled() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "google calendar is not configured")
	}
	events, err := google.List(c.Request().Context(), start, end)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
	}
	return c.JSON(http.StatusOK, events)
}
