package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 carrying the request id. When
// the handler already started writing, the panic is only logged.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				rid, _ := c.Get("request_id").(string)
				committed := c.Response().Committed

				logger.Error().
					Str("request_id", rid).
					Str("method", c.Request().Method).
					Str("path", c.Request().URL.Path).
					Str("panic", fmt.Sprint(r)).
					Bool("committed", committed).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				if committed {
					err = nil
					return
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, map[string]string{
					"error":      "internal server error",
					"request_id": rid,
				})
			}()
			return next(c)
		}
	}
}
