package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/mssola/useragent"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/config"
	"github.com/ehr/triage/internal/domain/audit"
	"github.com/ehr/triage/internal/domain/notification"
	"github.com/ehr/triage/internal/domain/triage"
	"github.com/ehr/triage/internal/domain/vitals"
	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/internal/platform/db"
	"github.com/ehr/triage/internal/platform/ids"
	"github.com/ehr/triage/internal/platform/messaging"
	"github.com/ehr/triage/internal/platform/metrics"
	"github.com/ehr/triage/internal/platform/middleware"
	"github.com/ehr/triage/internal/platform/websocket"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
	anonymousActor  = "anonymous"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// stores holds the repositories chosen at startup. pool is nil when running on
// in-memory repositories.
type stores struct {
	pool      *pgxpool.Pool
	vitals    vitals.Repository
	patients  vitals.PatientRegistry
	auditRepo audit.Repository
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.UsesMemoryStore() {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory repositories; data is lost on restart")
		return &stores{
			vitals:    vitals.NewMemoryRepository(),
			patients:  vitals.NewPatientDirectory(),
			auditRepo: audit.NewMemoryRepository(),
		}, nil
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to database")
	return &stores{
		pool:      pool,
		vitals:    vitals.NewRepoPG(pool),
		patients:  vitals.NewPatientLookupPG(pool),
		auditRepo: audit.NewRepoPG(pool),
	}, nil
}

func (s *stores) seed(ctx context.Context, patientIDs []string) error {
	for _, id := range patientIDs {
		if err := s.patients.Register(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// pinger returns nil in memory mode so the health handler reports that
// instead of a typed-nil pool.
func (s *stores) pinger() db.Pinger {
	if s.pool == nil {
		return nil
	}
	return s.pool
}

func (s *stores) close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// accessRecorder turns access entries from the HTTP layer into audit rows.
func accessRecorder(svc *audit.Service) middleware.AccessRecorder {
	return middleware.AccessRecorderFunc(func(ctx context.Context, e middleware.AccessEntry) {
		data, ok := accessAuditData(e)
		if !ok {
			return
		}
		svc.LogActionAsync(ctx, data)
	})
}

func accessAuditData(e middleware.AccessEntry) (audit.ActionData, bool) {
	var action audit.Action
	switch e.Kind {
	case middleware.AccessDenied:
		action = audit.ActionAccessDenied
	case middleware.AccessVitalsViewed:
		action = audit.ActionVitalsViewed
	default:
		return audit.ActionData{}, false
	}

	user := e.UserID
	if user == "" {
		user = anonymousActor
	}
	meta := map[string]interface{}{
		"status":     e.StatusCode,
		"request_id": e.RequestID,
		"ip_address": e.IPAddress,
		"user_agent": e.UserAgent,
		"roles":      e.UserRoles,
	}
	if e.UserAgent != "" {
		ua := useragent.New(e.UserAgent)
		browser, browserVersion := ua.Browser()
		meta["client"] = map[string]interface{}{
			"browser": browser + " " + browserVersion,
			"os":      ua.OS(),
			"mobile":  ua.Mobile(),
			"bot":     ua.Bot(),
		}
	}
	return audit.ActionData{
		UserID:    user,
		Action:    action,
		PatientID: e.PatientID,
		Details:   e.Method + " " + e.Path,
		Metadata:  meta,
	}, true
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer st.close()
	if err := st.seed(ctx, cfg.SeedPatients); err != nil {
		logger.Error().Err(err).Msg("failed to seed patients")
		return err
	}

	// Messaging
	hub := websocket.NewHub(logger)
	publisher, err := messaging.New(messaging.Config{
		Driver:       cfg.MessagingDriver,
		RedisURL:     cfg.RedisURL,
		MQTTBroker:   cfg.MQTTBroker,
		MQTTClientID: cfg.MQTTClientID,
		KafkaBrokers: cfg.KafkaBrokers,
		ClientID:     "triage-server",
	}, hub, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.MessagingDriver).Msg("failed to start messaging")
		return err
	}
	defer publisher.Close()

	// Redis is a work queue; relay it so dashboards on /ws still see pages.
	if consumer, ok := publisher.(messaging.Consumer); ok {
		go func() {
			if err := messaging.Relay(ctx, consumer, cfg.HighPriorityQueue, hub, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("notification relay stopped")
			}
		}()
	}

	// Services
	m := metrics.New()
	gen := ids.UUIDGenerator{}

	auditSvc := audit.NewService(st.auditRepo, gen, logger,
		audit.WithMetrics(m),
		audit.WithBatchConcurrency(cfg.AuditBatchConcurrency),
		audit.WithDeadLetter(func(data audit.ActionData, err error) {
			logger.Error().Err(err).
				Str("type", "audit_dead_letter").
				Str("action", string(data.Action)).
				Str("user_id", data.UserID).
				Str("patient_id", data.PatientID).
				Interface("metadata", data.Metadata).
				Msg("audit entry dropped")
		}),
	)
	defer auditSvc.Wait()

	vitalsSvc := vitals.NewService(st.vitals, st.patients, gen, logger)
	notifySvc := notification.NewService(publisher, gen, logger)
	notifySvc.SetQueue(cfg.HighPriorityQueue)

	engine := triage.NewEngine(triage.DefaultTiers()...)
	orchestrator := triage.NewOrchestrator(vitalsSvc, engine, notifySvc, auditSvc, logger)
	orchestrator.SetMetrics(m)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	e.Use(m.Middleware())
	e.Use(middleware.AccessAudit(logger, accessRecorder(auditSvc)))

	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		logger.Warn().Msg("development auth enabled: unauthenticated requests act as " + auth.DevUserID)
		authMW = auth.DevAuthMiddleware(jwtConfig(cfg))
	} else {
		authMW = auth.JWTMiddleware(jwtConfig(cfg))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rateLimitCfg))
	triage.NewHandler(orchestrator, engine).RegisterRoutes(apiV1)
	vitals.NewHandler(vitalsSvc).RegisterRoutes(apiV1)
	audit.NewHandler(auditSvc).RegisterRoutes(apiV1)
	notification.NewHandler(notifySvc).RegisterRoutes(apiV1)

	websocket.NewHandler(hub, cfg.HighPriorityQueue).RegisterRoutes(e, authMW)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"version":   version,
			"messaging": publisher.Connected(),
			"dashboards": map[string]interface{}{
				"clients": hub.ClientCount(),
				"dropped": hub.Dropped(),
			},
		})
	})
	e.GET("/health/db", db.HealthHandler(st.pinger()))
	e.GET("/metrics", m.Handler())

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("messaging", cfg.MessagingDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
