package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

var statusByCode = map[Code]int{
	CodeValidation: http.StatusBadRequest,
	CodeNotFound:   http.StatusNotFound,
	CodeConflict:   http.StatusConflict,
	CodeForeignKey: http.StatusConflict,
	CodeInternal:   http.StatusInternalServerError,
	CodeTimeout:    http.StatusGatewayTimeout,
	CodeCanceled:   http.StatusServiceUnavailable,
}

// Status returns the HTTP status for err.
func Status(err error) int {
	if s, ok := statusByCode[CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ToHTTP converts err into an echo.HTTPError. Existing HTTP errors pass
// through untouched; internal errors hide their cause from the client.
func ToHTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ae *AppError
	if !errors.As(err, &ae) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
	status := Status(ae)
	body := map[string]string{"error": ae.Message}
	if ae.Field != "" {
		body["field"] = ae.Field
	}
	return echo.NewHTTPError(status, body).SetInternal(err)
}
