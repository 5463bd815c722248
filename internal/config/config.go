package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	UploadsDir       string `mapstructure:"UPLOADS_DIR"`
	MaxExamFileSize  int64  `mapstructure:"MAX_EXAM_FILE_SIZE"`
	MaxAudioFileSize int64  `mapstructure:"MAX_AUDIO_FILE_SIZE"`

	AnthropicAPIKey      string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL     string `mapstructure:"ANTHROPIC_BASE_URL"`
	AnthropicExamModel   string `mapstructure:"ANTHROPIC_EXAM_MODEL"`
	AnthropicReportModel string `mapstructure:"ANTHROPIC_REPORT_MODEL"`
	OpenAIAPIKey         string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL        string `mapstructure:"OPENAI_BASE_URL"`

	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string `mapstructure:"GOOGLE_REDIRECT_URI"`
	GoogleAccessToken  string `mapstructure:"GOOGLE_ACCESS_TOKEN"`
	GoogleRefreshToken string `mapstructure:"GOOGLE_REFRESH_TOKEN"`
	GoogleCalendarID   string `mapstructure:"GOOGLE_CALENDAR_ID"`

	CalDAVURL      string `mapstructure:"APPLE_CALDAV_URL"`
	CalDAVUsername string `mapstructure:"APPLE_CALDAV_USERNAME"`
	CalDAVPassword string `mapstructure:"APPLE_CALDAV_PASSWORD"`
	OrganizerName  string `mapstructure:"ORGANIZER_NAME"`
	OrganizerEmail string `mapstructure:"ORGANIZER_EMAIL"`
	EventUIDDomain string `mapstructure:"EVENT_UID_DOMAIN"`

	StatsCacheTTL   time.Duration `mapstructure:"STATS_CACHE_TTL"`
	JobDrainTimeout time.Duration `mapstructure:"JOB_DRAIN_TIMEOUT"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
	"BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"UPLOADS_DIR", "MAX_EXAM_FILE_SIZE", "MAX_AUDIO_FILE_SIZE",
	"ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "ANTHROPIC_EXAM_MODEL", "ANTHROPIC_REPORT_MODEL",
	"OPENAI_API_KEY", "OPENAI_BASE_URL",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URI",
	"GOOGLE_ACCESS_TOKEN", "GOOGLE_REFRESH_TOKEN", "GOOGLE_CALENDAR_ID",
	"APPLE_CALDAV_URL", "APPLE_CALDAV_USERNAME", "APPLE_CALDAV_PASSWORD",
	"ORGANIZER_NAME", "ORGANIZER_EMAIL", "EVENT_UID_DOMAIN",
	"STATS_CACHE_TTL", "JOB_DRAIN_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("UPLOADS_DIR", "./uploads")
	v.SetDefault("MAX_EXAM_FILE_SIZE", 50*1024*1024)
	v.SetDefault("MAX_AUDIO_FILE_SIZE", 100*1024*1024)
	v.SetDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com")
	v.SetDefault("ANTHROPIC_EXAM_MODEL", "claude-sonnet-4-5-20250929")
	v.SetDefault("ANTHROPIC_REPORT_MODEL", "claude-sonnet-4-20250514")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("GOOGLE_REDIRECT_URI", "http://localhost:8000/api/calendar/google/callback")
	v.SetDefault("GOOGLE_CALENDAR_ID", "primary")
	v.SetDefault("ORGANIZER_NAME", "Clínica")
	v.SetDefault("ORGANIZER_EMAIL", "contato@clinica.local")
	v.SetDefault("EVENT_UID_DOMAIN", "clinica.local")
	v.SetDefault("STATS_CACHE_TTL", 30*time.Second)
	v.SetDefault("JOB_DRAIN_TIMEOUT", 30*time.Second)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = splitList(origins)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// GoogleEnabled reports whether Google Calendar credentials are present.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// CalDAVEnabled reports whether all CalDAV settings are present.
func (c *Config) CalDAVEnabled() bool {
	return c.CalDAVURL != "" && c.CalDAVUsername != "" && c.CalDAVPassword != ""
}

// Validate checks that the configuration is safe to run. Outside development
// a token verification source must be configured, upload limits must be
// positive, and CalDAV settings must be complete or absent.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.MaxExamFileSize <= 0 {
		return fmt.Errorf("MAX_EXAM_FILE_SIZE must be positive, got %d", c.MaxExamFileSize)
	}
	if c.MaxAudioFileSize <= 0 {
		return fmt.Errorf("MAX_AUDIO_FILE_SIZE must be positive, got %d", c.MaxAudioFileSize)
	}
	caldavSet := 0
	for _, s := range []string{c.CalDAVURL, c.CalDAVUsername, c.CalDAVPassword} {
		if s != "" {
			caldavSet++
		}
	}
	if caldavSet != 0 && caldavSet != 3 {
		return fmt.Errorf("APPLE_CALDAV_URL, APPLE_CALDAV_USERNAME and APPLE_CALDAV_PASSWORD must be set together")
	}
	return nil
}
