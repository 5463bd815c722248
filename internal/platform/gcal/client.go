// Package gcal talks to the Google Calendar v3 REST API with OAuth2
// credentials from configuration or from a completed consent flow.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	DefaultBaseURL  = "https://www.googleapis.com/calendar/v3"
	DefaultTimeZone = "America/Sao_Paulo"
)

var Scopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/calendar.events",
}

var ErrNotConfigured = errors.New("google calendar is not configured")

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AccessToken  string
	RefreshToken string
	CalendarID   string
	BaseURL      string
	// HTTPClient is used for token and API calls when set.
	HTTPClient *http.Client
}

type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	calendarID string
	httpClient *http.Client
	logger     zerolog.Logger

	mu     sync.RWMutex
	tokens oauth2.TokenSource
}

func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       Scopes,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		calendarID: cfg.CalendarID,
		httpClient: cfg.HTTPClient,
		logger:     logger,
	}
	if cfg.AccessToken != "" && cfg.RefreshToken != "" {
		c.setToken(&oauth2.Token{AccessToken: cfg.AccessToken, RefreshToken: cfg.RefreshToken})
	}
	return c
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	if c.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	return ctx
}

func (c *Client) setToken(tok *oauth2.Token) {
	src := c.oauth.TokenSource(c.oauthContext(context.Background()), tok)
	c.mu.Lock()
	c.tokens = oauth2.ReuseTokenSource(tok, src)
	c.mu.Unlock()
}

// Enabled reports whether the client holds credentials for API calls.
func (c *Client) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.oauth.ClientID != "" && c.tokens != nil
}

// AuthURL builds the consent URL, asking for offline access so a refresh
// token is issued.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for tokens and starts using them.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if c.oauth.ClientID == "" {
		return nil, ErrNotConfigured
	}
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	c.setToken(tok)
	return tok, nil
}

type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type Attendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

type ReminderOverride struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type Reminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []ReminderOverride `json:"overrides,omitempty"`
}

type Event struct {
	ID          string     `json:"id,omitempty"`
	Status      string     `json:"status,omitempty"`
	HTMLLink    string     `json:"htmlLink,omitempty"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	Reminders   *Reminders `json:"reminders,omitempty"`
}

// At formats t for an event boundary in the clinic's time zone.
func At(t time.Time) EventTime {
	return EventTime{DateTime: t.UTC().Format(time.RFC3339), TimeZone: DefaultTimeZone}
}

// DefaultReminders emails a day ahead and pops up an hour ahead.
func DefaultReminders() *Reminders {
	return &Reminders{Overrides: []ReminderOverride{
		{Method: "email", Minutes: 24 * 60},
		{Method: "popup", Minutes: 60},
	}}
}

func (c *Client) Insert(ctx context.Context, ev Event) (string, error) {
	var out Event
	if err := c.do(ctx, http.MethodPost, c.eventsURL(""), nil, ev, &out); err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	c.logger.Info().Str("event_id", out.ID).Msg("google calendar event created")
	return out.ID, nil
}

func (c *Client) Update(ctx context.Context, eventID string, ev Event) error {
	if err := c.do(ctx, http.MethodPut, c.eventsURL(eventID), nil, ev, nil); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// Delete removes an event. An event that is already gone is not an error.
func (c *Client) Delete(ctx context.Context, eventID string) error {
	err := c.do(ctx, http.MethodDelete, c.eventsURL(eventID), nil, nil, nil)
	var se *StatusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusGone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// List returns single events between timeMin and timeMax ordered by start.
func (c *Client) List(ctx context.Context, timeMin, timeMax time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
	q.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	var out struct {
		Items []Event `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, c.eventsURL(""), q, nil, &out); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out.Items, nil
}

func (c *Client) eventsURL(eventID string) string {
	u := c.baseURL + "/calendars/" + url.PathEscape(c.calendarID) + "/events"
	if eventID != "" {
		u += "/" + url.PathEscape(eventID)
	}
	return u
}

// StatusError is a non-2xx API answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("google calendar status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, in, out any) error {
	c.mu.RLock()
	tokens := c.tokens
	c.mu.RUnlock()
	if tokens == nil || c.oauth.ClientID == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := oauth2.NewClient(c.oauthContext(ctx), tokens)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
