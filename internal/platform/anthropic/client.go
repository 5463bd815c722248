// Package anthropic is a minimal client for the Anthropic Messages API,
// covering the text, image and PDF document blocks used by exam analysis
// and report generation.
package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	APIVersion     = "2023-06-01"
)

// ErrUnexpectedContent is returned when the first response block is not text.
var ErrUnexpectedContent = errors.New("Resposta inesperada da API")

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type Source struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type ContentBlock struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Source *Source `json:"source,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// DocumentBlock embeds a PDF as base64.
func DocumentBlock(data []byte) ContentBlock {
	return ContentBlock{Type: "document", Source: &Source{
		Type:      "base64",
		MediaType: "application/pdf",
		Data:      base64.StdEncoding.EncodeToString(data),
	}}
}

func ImageBlock(mediaType string, data []byte) ContentBlock {
	return ContentBlock{Type: "image", Source: &Source{
		Type:      "base64",
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}}
}

type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

func UserMessage(blocks ...ContentBlock) Message {
	return Message{Role: "user", Content: blocks}
}

type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []Message `json:"messages"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Response struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	StopReason string         `json:"stop_reason"`
	Content    []ContentBlock `json:"content"`
	Usage      Usage          `json:"usage"`
}

// Text returns the trimmed text of the first content block.
func (r *Response) Text() (string, error) {
	if len(r.Content) == 0 || r.Content[0].Type != "text" {
		return "", ErrUnexpectedContent
	}
	return strings.TrimSpace(r.Content[0].Text), nil
}

// APIError is a non-2xx answer from the API. Its message is the provider's
// own, so callers can match on phrases such as "credit balance".
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("anthropic status %d", e.StatusCode)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Type, e.Message)
}

// CreateMessage sends one Messages request. There is no retry.
func (c *Client) CreateMessage(ctx context.Context, req Request) (*Response, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Type = envelope.Error.Type
			apiErr.Message = envelope.Error.Message
		}
		c.logger.Error().Int("status", resp.StatusCode).Str("error_type", apiErr.Type).
			Dur("elapsed", time.Since(start)).Msg("anthropic request failed")
		return nil, apiErr
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug().
		Str("model", out.Model).
		Str("stop_reason", out.StopReason).
		Int("input_tokens", out.Usage.InputTokens).
		Int("output_tokens", out.Usage.OutputTokens).
		Dur("elapsed", time.Since(start)).
		Msg("anthropic response")
	return &out, nil
}
