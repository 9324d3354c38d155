package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/adapter/cache"
	"github.com/voltgrid/csms/internal/adapter/http/fiber/handlers"
	"github.com/voltgrid/csms/internal/adapter/http/fiber/middleware"
	"github.com/voltgrid/csms/internal/adapter/queue"
	"github.com/voltgrid/csms/internal/adapter/storage/postgres"
	mqtttransport "github.com/voltgrid/csms/internal/adapter/transport/mqtt"
	wstransport "github.com/voltgrid/csms/internal/adapter/transport/websocket"
	"github.com/voltgrid/csms/internal/adapter/vault"
	"github.com/voltgrid/csms/internal/observability/telemetry"
	"github.com/voltgrid/csms/internal/router"
	"github.com/voltgrid/csms/internal/secrets"
	"github.com/voltgrid/csms/internal/service/auth"
	"github.com/voltgrid/csms/internal/service/billing"
	"github.com/voltgrid/csms/internal/service/chargepoint"
	"github.com/voltgrid/csms/internal/service/control"
	"github.com/voltgrid/csms/internal/service/device"
	"github.com/voltgrid/csms/internal/service/statistics"
	"github.com/voltgrid/csms/internal/service/sweeper"
	"github.com/voltgrid/csms/internal/session"
	"github.com/voltgrid/csms/pkg/config"
)

const (
	serviceName    = "voltgrid-csms"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// 2. Initialize logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting VoltGrid CSMS",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Resolve secrets from Vault when enabled
	jwtSecret := cfg.JWT.Secret
	masterKey := cfg.Secrets.MasterKey
	dbURL := cfg.Database.URL
	if cfg.Vault.Enabled {
		sm, err := vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token)
		if err != nil {
			logger.Fatal("Failed to connect to Vault", zap.Error(err))
		}
		if v, err := sm.GetDatabaseCredentials(); err == nil {
			dbURL = v
		} else {
			logger.Warn("Vault database credentials unavailable, using config", zap.Error(err))
		}
		if v, err := sm.GetMasterKey(); err == nil {
			masterKey = v
		} else {
			logger.Warn("Vault master key unavailable, using config", zap.Error(err))
		}
		if v, err := sm.GetJWTSecret(); err == nil {
			jwtSecret = v
		} else {
			logger.Warn("Vault JWT secret unavailable, using config", zap.Error(err))
		}
	}

	// 4. Initialize tracing
	if cfg.OpenTelemetry.Enabled {
		tp, err := telemetry.InitTracer(serviceName, serviceVersion, cfg.OpenTelemetry.Jaeger.Endpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	// 5. Connect to PostgreSQL
	dbCfg := cfg.Database
	dbCfg.URL = dbURL
	db, err := postgres.NewConnection(dbCfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if dbCfg.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("Failed to access database handle", zap.Error(err))
	}

	// 6. Connect to Redis
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	liveness := cache.NewLiveness(redisCache, logger)

	// 7. Connect to the message queue
	mq, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("Failed to connect to message queue", zap.Error(err))
	}
	defer mq.Close()
	publisher := queue.NewEventPublisher(mq, logger)

	// 8. Repositories
	chargePointRepo := postgres.NewChargePointRepository(db, logger)
	evseRepo := postgres.NewEVSERepository(db, logger)
	sessionRepo := postgres.NewSessionRepository(db, logger)
	meterValueRepo := postgres.NewMeterValueRepository(db, logger)
	eventRepo := postgres.NewEventRepository(db, logger)
	idTagRepo := postgres.NewIdTagRepository(db, logger)
	orderRepo := postgres.NewOrderRepository(db, logger)
	deviceRepo := postgres.NewDeviceRepository(db, logger)

	// Warm the liveness cache so dashboards are correct right after a
	// restart.
	if err := liveness.Rebuild(ctx, eventRepo); err != nil {
		logger.Warn("Liveness cache rebuild failed", zap.Error(err))
	}

	// 9. OCPP router and transports
	replies := session.NewReplyCache(cfg.OCPP.DedupWindow)
	defer replies.Stop()

	deps := session.Deps{
		ChargePoints: chargePointRepo,
		EVSEs:        evseRepo,
		Sessions:     sessionRepo,
		MeterValues:  meterValueRepo,
		Events:       eventRepo,
		IdTags:       idTagRepo,
		Orders:       orderRepo,
		Liveness:     liveness,
		Publisher:    publisher,
		Config:       cfg.OCPP,
		Log:          logger,
	}
	ocppRouter := router.New(deps, replies)

	wsServer := wstransport.NewServer(cfg.OCPP.ListenAddr, ocppRouter, logger)
	if err := wsServer.Start(ctx); err != nil {
		logger.Fatal("OCPP WebSocket server failed", zap.Error(err))
	}
	logger.Info("OCPP WebSocket server listening", zap.String("addr", cfg.OCPP.ListenAddr))

	mqttTransport := mqtttransport.NewTransport(cfg.MQTT, cfg.OCPP.OfflineTimeout, ocppRouter, logger)
	if cfg.MQTT.BrokerURL != "" {
		if err := mqttTransport.Start(ctx); err != nil {
			logger.Fatal("MQTT transport failed", zap.Error(err))
		}
	} else {
		logger.Info("MQTT transport disabled, no broker configured")
	}

	// 10. Services
	cipher, err := secrets.NewCipher(masterKey)
	if err != nil {
		logger.Fatal("Failed to initialize provisioning cipher", zap.Error(err))
	}

	chargePointService := chargepoint.NewService(chargePointRepo, sessionRepo, liveness, cfg.OCPP.OfflineTimeout, logger)
	controlService := control.NewService(ocppRouter, sessionRepo, cfg.OCPP.CallTimeout, logger)
	statisticsService := statistics.NewService(eventRepo, logger)
	deviceService := device.NewService(deviceRepo, cipher, logger)
	tokenValidator := auth.NewService(jwtSecret, redisCache, logger)

	billingWorker := billing.NewWorker(orderRepo, logger)
	if err := billingWorker.Start(mq); err != nil {
		logger.Warn("Billing worker subscription failed", zap.Error(err))
	}

	// 11. Stale session sweeper
	staleSweeper := sweeper.New(sessionRepo, eventRepo, cfg.OCPP.SessionStaleTimeout, cfg.OCPP.SweepInterval, logger)
	staleSweeper.Start(ctx)
	defer staleSweeper.Stop()

	// 12. HTTP API
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(middleware.CORS())
	if cfg.RateLimiting.Enabled {
		app.Use(middleware.RateLimit(cfg.RateLimiting))
	}
	if cfg.CircuitBreaker.Enabled {
		app.Use(middleware.CircuitBreaker(cfg.CircuitBreaker, logger))
	}

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if err := sqlDB.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Database not ready")
		}
		return c.SendString("Ready")
	})

	if cfg.Prometheus.Enabled {
		metricsPath := cfg.Prometheus.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		app.Get(metricsPath, func(c *fiber.Ctx) error {
			metricsHandler(c.Context())
			return nil
		})
	}

	// Broker auth webhook stays unauthenticated: the broker itself
	// calls it before any device has a token.
	deviceHandler := handlers.NewDeviceHandler(deviceService, logger)
	app.Post("/broker/auth", deviceHandler.BrokerAuth)

	v1 := app.Group("/api/v1")
	protected := v1.Group("", middleware.AuthRequired(tokenValidator))

	chargerHandler := handlers.NewChargerHandler(chargePointService, logger)
	protected.Get("/chargers", chargerHandler.List)
	protected.Get("/chargers/pending", chargerHandler.ListPending)
	protected.Get("/chargers/:id", chargerHandler.Get)
	protected.Get("/chargers/:id/history", chargerHandler.History)
	protected.Put("/chargers/:id/location", chargerHandler.UpdateLocation)
	protected.Put("/chargers/:id/pricing", chargerHandler.UpdatePricing)
	protected.Patch("/chargers/:id/operational-status", chargerHandler.SetOperationalStatus)

	controlHandler := handlers.NewControlHandler(controlService, logger)
	protected.Post("/chargers/:id/remote-start", controlHandler.RemoteStart)
	protected.Post("/chargers/:id/remote-stop", controlHandler.RemoteStop)
	protected.Post("/chargers/:id/reset", controlHandler.Reset)
	protected.Post("/chargers/:id/change-availability", controlHandler.ChangeAvailability)
	protected.Post("/chargers/:id/trigger-message", controlHandler.TriggerMessage)
	protected.Post("/chargers/:id/unlock-connector", controlHandler.UnlockConnector)
	protected.Post("/chargers/:id/diagnostics", controlHandler.GetDiagnostics)
	protected.Post("/chargers/:id/firmware", controlHandler.UpdateFirmware)

	statisticsHandler := handlers.NewStatisticsHandler(statisticsService, logger)
	protected.Get("/chargers/:id/statistics/heartbeats", statisticsHandler.Heartbeats)
	protected.Get("/chargers/:id/statistics/status-timeline", statisticsHandler.StatusTimeline)

	admin := protected.Group("/devices", middleware.RequireRole("admin", "operator"))
	admin.Post("/", deviceHandler.Provision)
	admin.Get("/", deviceHandler.List)
	admin.Get("/:serial", deviceHandler.Get)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		logger.Info("HTTP API listening", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 13. Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", zap.Error(err))
	}
	if err := wsServer.Close(); err != nil {
		logger.Warn("WebSocket shutdown failed", zap.Error(err))
	}
	if err := mqttTransport.Close(); err != nil {
		logger.Warn("MQTT shutdown failed", zap.Error(err))
	}
	ocppRouter.Shutdown()

	logger.Info("Stopped")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = level
	}
	return zapCfg.Build()
}
