package caldav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrNotConfigured = errors.New("caldav credentials are not configured")

type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Client) Enabled() bool {
	return c.cfg.URL != "" && c.cfg.Username != "" && c.cfg.Password != ""
}

func (c *Client) eventURL(uid string) string {
	return strings.TrimRight(c.cfg.URL, "/") + "/" + url.PathEscape(uid) + ".ics"
}

// Put creates or replaces the event stored under uid.
func (c *Client) Put(ctx context.Context, uid, ics string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.eventURL(uid), strings.NewReader(ics))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("caldav put: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("CalDAV Error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	c.logger.Info().Str("uid", uid).Msg("caldav event stored")
	return nil
}

// Delete removes the event stored under uid; a missing event is not an
// error.
func (c *Client) Delete(ctx context.Context, uid string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.eventURL(uid), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("caldav delete: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("CalDAV Error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}
