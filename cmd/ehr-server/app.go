package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/config"
	"github.com/mdhs/ehr/internal/domain/access"
	"github.com/mdhs/ehr/internal/domain/clinical"
	"github.com/mdhs/ehr/internal/domain/documents"
	"github.com/mdhs/ehr/internal/domain/encounter"
	"github.com/mdhs/ehr/internal/domain/identity"
	"github.com/mdhs/ehr/internal/domain/survey"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/blobstore"
	"github.com/mdhs/ehr/internal/platform/db"
	"github.com/mdhs/ehr/internal/platform/metrics"
	"github.com/mdhs/ehr/internal/platform/middleware"
	"github.com/mdhs/ehr/internal/platform/notification"
	"github.com/mdhs/ehr/internal/platform/sequence"
	"github.com/mdhs/ehr/internal/platform/validate"
)

// app holds the services shared by the serve and seed commands.
type app struct {
	cfg     *config.Config
	pool    *pgxpool.Pool
	logger  zerolog.Logger
	metrics *metrics.Metrics

	tokens      *auth.TokenIssuer
	revocations auth.RevocationStore
	pingers     map[string]db.Pinger
	closers     []func()

	users     identity.UserRepository
	accounts  *identity.AccountService
	patients  *identity.PatientService
	grants    *access.Service
	visits    *encounter.Service
	clinical  *clinical.Service
	documents *documents.Service
	surveys   *survey.Service
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newRevocationStore(cfg *config.Config, logger zerolog.Logger) (auth.RevocationStore, *redis.Client, error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, revoked tokens are kept in memory")
		return auth.NewMemoryRevocationStore(time.Minute), nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return auth.NewRedisRevocationStore(client), client, nil
}

func newMailer(cfg *config.Config, logger zerolog.Logger) *notification.Mailer {
	var sender notification.EmailSender
	if cfg.SMTPHost == "" {
		logger.Warn().Msg("SMTP_HOST not set, outgoing mail is written to the log")
		sender = notification.NewLogSender(logger)
	} else {
		sender = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	}
	return notification.NewMailer(sender, notification.NewTemplateEngine())
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		pool:    pool,
		logger:  logger,
		metrics: metrics.New(),
		tokens:  auth.NewTokenIssuer(cfg.SigningKey(), cfg.JWTIssuer, cfg.TokenTTL),
		pingers: map[string]db.Pinger{},
	}

	revocations, redisClient, err := newRevocationStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.revocations = revocations
	switch s := revocations.(type) {
	case *auth.MemoryRevocationStore:
		a.closers = append(a.closers, s.Close)
	case *auth.RedisRevocationStore:
		a.pingers["redis"] = s
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
	}

	blobs, err := blobstore.NewDiskStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("open upload dir: %w", err)
	}

	tx := db.NewTransactor(pool)
	ids := sequence.NewPGGenerator(pool, time.Now)

	grantRepo := access.NewRepo(pool)
	guard := access.NewGuard(grantRepo, a.metrics, logger)
	a.grants = access.NewService(grantRepo, guard, tx)

	visitRepo := encounter.NewRepo(pool)
	a.visits = encounter.NewService(visitRepo, guard, tx, logger)
	a.clinical = clinical.NewService(visitRepo, clinical.NewPGRepositories(pool), guard, tx, a.metrics, logger)

	maxUpload := cfg.MaxUploadMB << 20
	a.documents = documents.NewService(documents.NewRepo(pool), visitRepo, guard, blobs, maxUpload, logger)

	a.users = identity.NewUserRepo(pool)
	a.accounts = identity.NewAccountService(identity.AccountDeps{
		Users:         a.users,
		IDs:           ids,
		Tx:            tx,
		Guard:         guard,
		Tokens:        a.tokens,
		Resets:        auth.NewResetTokenIssuer(cfg.ResetKey(), cfg.JWTIssuer, cfg.ResetTokenTTL),
		Revoked:       a.revocations,
		Mailer:        newMailer(cfg, logger),
		Blobs:         blobs,
		Metrics:       a.metrics,
		Logger:        logger,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	a.patients = identity.NewPatientService(identity.NewPatientRepo(pool), grantRepo, guard, ids, tx,
		a.documents, a.metrics, logger)

	a.surveys = survey.NewService(survey.NewRepo(pool), guard, a.metrics, logger)
	return a, nil
}

func (a *app) Close() {
	for _, fn := range a.closers {
		fn()
	}
}

// router builds the echo instance with the middleware chain and every route.
func (a *app) router() *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.metrics.Middleware())
	e.Use(middleware.SecurityHeaders(nil))
	e.Use(middleware.BodyLimit(middleware.BodyLimits{JSON: 1 << 20, Upload: (cfg.MaxUploadMB + 1) << 20}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	verify := auth.JWTMiddleware(auth.JWTConfig{
		Tokens:      a.tokens,
		Revocations: a.revocations,
		Skipper:     auth.AuthSkipper,
		Logger:      a.logger,
	})
	if id, ok := cfg.DevActorID(); ok {
		a.logger.Warn().Str("user_id", id.String()).Str("role", cfg.DevUserRole).
			Msg("development auth enabled, requests without a token act as DEV_USER_ID")
		e.Use(auth.DevAuthMiddleware(verify, auth.Actor{UserID: id, Role: cfg.DevUserRole}))
	} else {
		e.Use(verify)
	}
	e.Use(middleware.Audit(a.logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(a.pool, a.pingers))
	e.GET("/metrics", a.metrics.Handler())

	authLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})

	api := e.Group("/api/v1")
	identity.NewHandler(a.accounts, a.patients, a.visits).RegisterRoutes(api, authLimit)
	access.NewHandler(a.grants).RegisterRoutes(api)
	encounter.NewHandler(a.visits).RegisterRoutes(api)
	clinical.NewHandler(a.clinical).RegisterRoutes(api)
	documents.NewHandler(a.documents).RegisterRoutes(api)
	survey.NewHandler(a.surveys).RegisterRoutes(api)

	return e
}

func (a *app) serve(ctx context.Context, e *echo.Echo) error {
	addr := ":" + a.cfg.Port
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", addr).Bool("tls", a.cfg.TLSEnabled).Msg("starting server")
		var err error
		if a.cfg.TLSEnabled {
			err = e.StartTLS(addr, a.cfg.TLSCertFile, a.cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info().Msg("server stopped")
	return nil
}
