// Package whisper calls the OpenAI audio transcription endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
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
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Language == "" {
		cfg.Language = "pt"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Result struct {
	Text     string    `json:"text"`
	Duration float64   `json:"duration"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

var audioMimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".mp4":  "audio/mp4",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".mpeg": "audio/mpeg",
}

// MimeType maps a file name to the audio type sent to the API, defaulting
// to audio/mpeg.
func MimeType(fileName string) string {
	if mt, ok := audioMimeTypes[strings.ToLower(filepath.Ext(fileName))]; ok {
		return mt
	}
	return "audio/mpeg"
}

// Transcribe uploads audio in one request and returns the verbose result.
func (c *Client) Transcribe(ctx context.Context, fileName string, audio []byte) (*Result, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(fileName))))
	h.Set("Content-Type", MimeType(fileName))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	fields := [][2]string{
		{"model", c.cfg.Model},
		{"language", c.cfg.Language},
		{"response_format", "verbose_json"},
		{"temperature", "0.2"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var envelope struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
			msg = envelope.Error.Message
		}
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, msg)
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}

	c.logger.Info().
		Str("language", out.Language).
		Float64("audio_seconds", out.Duration).
		Int("segments", len(out.Segments)).
		Dur("elapsed", time.Since(start)).
		Msg("transcription finished")
	return &out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
