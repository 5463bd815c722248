package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/consultation"
	"github.com/clinic/clinic/internal/domain/dashboard"
	"github.com/clinic/clinic/internal/domain/exam"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/report"
	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/internal/platform/anthropic"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/cache"
	"github.com/clinic/clinic/internal/platform/caldav"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/filestore"
	"github.com/clinic/clinic/internal/platform/gcal"
	"github.com/clinic/clinic/internal/platform/jobs"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/whisper"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// uploadLimit is the multipart body cap: the larger file limit plus room for
// the other form fields.
func uploadLimit(cfg *config.Config) string {
	limit := cfg.MaxAudioFileSize
	if cfg.MaxExamFileSize > limit {
		limit = cfg.MaxExamFileSize
	}
	return strconv.FormatInt(limit+1<<20, 10)
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "clinic-server",
	}
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
}

// statsCache connects to Redis when REDIS_URL is set. Without it the
// dashboard reads straight from the database.
func statsCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Cache, func()) {
	if cfg.RedisURL == "" {
		return nil, func() {}
	}
	r, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, dashboard cache disabled")
		return nil, func() {}
	}
	logger.Info().Msg("connected to redis")
	return r, func() { _ = r.Close() }
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(os.Getenv("ENV"))
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	files, err := filestore.NewLocal(cfg.UploadsDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare uploads directory")
	}

	statsStore, closeCache := statsCache(ctx, cfg, logger)
	defer closeCache()

	// Background jobs outlive the request that started them.
	runner := jobs.NewRunner(ctx, logger)
	tx := db.NewTxRunner(pool)

	// Collaborators
	messenger := anthropic.NewClient(anthropic.Config{
		APIKey:  cfg.AnthropicAPIKey,
		BaseURL: cfg.AnthropicBaseURL,
	}, logger)
	transcriber := whisper.NewClient(whisper.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
	}, logger)
	google := gcal.New(gcal.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		AccessToken:  cfg.GoogleAccessToken,
		RefreshToken: cfg.GoogleRefreshToken,
		CalendarID:   cfg.GoogleCalendarID,
	}, logger)
	calendar := caldav.NewClient(caldav.Config{
		URL:      cfg.CalDAVURL,
		Username: cfg.CalDAVUsername,
		Password: cfg.CalDAVPassword,
	}, logger)
	logger.Info().
		Bool("google_calendar", google.Enabled()).
		Bool("caldav", calendar.Enabled()).
		Msg("calendar sync providers")

	// Services
	staffSvc := staff.NewService(staff.NewUserRepoPG(pool))
	patientSvc := patient.NewService(patient.NewPatientRepoPG(pool), tx, files, logger)
	consultationSvc := consultation.NewService(consultation.Deps{
		Consultations: consultation.NewConsultationRepoPG(pool),
		Audios:        consultation.NewAudioRepoPG(pool),
		Patients:      patientSvc,
		Users:         staffSvc,
		Tx:            tx,
		Files:         files,
		Transcriber:   transcriber,
		Runner:        runner,
		Logger:        logger,
		MaxAudioSize:  cfg.MaxAudioFileSize,
	})
	examSvc := exam.NewService(exam.Deps{
		Exams:       exam.NewExamRepoPG(pool),
		Patients:    patientSvc,
		Files:       files,
		Messenger:   messenger,
		Model:       cfg.AnthropicExamModel,
		Runner:      runner,
		Logger:      logger,
		MaxFileSize: cfg.MaxExamFileSize,
	})
	reportSvc := report.NewService(report.Deps{
		Reports:       report.NewReportRepoPG(pool),
		Patients:      patientSvc,
		Users:         staffSvc,
		Consultations: consultationSvc,
		Exams:         examSvc,
		Tx:            tx,
		Messenger:     messenger,
		Model:         cfg.AnthropicReportModel,
		Runner:        runner,
		Logger:        logger,
	})
	appointmentSvc := appointment.NewService(appointment.Deps{
		Appointments: appointment.NewAppointmentRepoPG(pool),
		Patients:     patientSvc,
		Users:        staffSvc,
		Google:       google,
		CalDAV:       calendar,
		Runner:       runner,
		Logger:       logger,
		Organizer:    caldav.Person{Name: cfg.OrganizerName, Email: cfg.OrganizerEmail},
		UIDDomain:    cfg.EventUIDDomain,
	})
	dashboardSvc := dashboard.NewService(dashboard.NewCountRepoPG(pool), statsStore, cfg.StatsCacheTTL, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(filestore.URLPrefix))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, uploadLimit(cfg)))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, runner))

	// Uploaded files
	e.Static(strings.TrimSuffix(filestore.URLPrefix, "/"), files.Root())

	// API group
	api := e.Group("/api")
	api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware(jwtConfig(cfg)))
	} else {
		api.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}

	staff.NewHandler(staffSvc).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	consultation.NewHandler(consultationSvc).RegisterRoutes(api)
	exam.NewHandler(examSvc).RegisterRoutes(api)
	report.NewHandler(reportSvc).RegisterRoutes(api)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(api)
	dashboard.NewHandler(dashboardSvc).RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	// A job cut off here leaves its record in PROCESSING.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.JobDrainTimeout)
	defer cancelDrain()
	if err := runner.Wait(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("background jobs did not finish")
	}
	logger.Info().Msg("server stopped")
	return nil
}
