package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		want     string
	}{
		{name: "mints when absent"},
		{name: "keeps caller id", incoming: "front-desk-42", want: "front-desk-42"},
		{name: "replaces oversized id", incoming: strings.Repeat("x", 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var seen string
			err := RequestID()(func(c echo.Context) error {
				seen, _ = c.Get("request_id").(string)
				return nil
			})(c)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			header := rec.Header().Get(RequestIDHeader)
			if seen != header {
				t.Errorf("context id %q differs from header %q", seen, header)
			}
			if tt.want != "" && header != tt.want {
				t.Errorf("expected %q, got %q", tt.want, header)
			}
			if tt.want == "" && len(header) != 36 {
				t.Errorf("expected a fresh uuid, got %q", header)
			}
		})
	}
}
