package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nomad-gis/config"
	"nomad-gis/handlers"
	"nomad-gis/logger"
	"nomad-gis/metrics"
	"nomad-gis/middleware"
	"nomad-gis/models"
	"nomad-gis/services"
	"nomad-gis/utils"
	"nomad-gis/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormprom "gorm.io/plugin/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		ServiceName: "nomad-gis",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormCfg := logger.DefaultGormLoggerConfig()
	gormCfg.SlowThreshold = cfg.SlowQueryTime
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.NewGormLogger(log, gormCfg),
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := db.Use(gormprom.New(gormprom.Config{
		DBName:          "nomad_gis",
		RefreshInterval: 15,
		StartServer:     false,
	})); err != nil {
		log.Fatal("failed to register gorm metrics", zap.Error(err))
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var badges services.BadgeStorage
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		badges = r2
	} else {
		log.Warn("R2 not configured, badge uploads disabled")
	}

	ledger := services.NewProgressionLedger(m)
	achievements := services.NewAchievementEngine(log, m)
	catalog := services.NewCatalogService(db, badges, log)
	leaderboard := services.NewLeaderboardService(db, cfg.LeaderboardSize, log)

	if _, err := catalog.EnsureDefaultAchievements(ctx); err != nil {
		log.Fatal("failed to seed achievements", zap.Error(err))
	}

	svc := handlers.Services{
		Unlock:      services.NewUnlockOrchestrator(db, ledger, achievements, cfg.UnlockBaseXP, log, m),
		Social:      services.NewSocialEventOrchestrator(db, achievements, log, m),
		Progression: services.NewProgressionService(db, ledger, log, m),
		Leaderboard: leaderboard,
		Catalog:     catalog,
		Stats:       services.NewStatsService(db),
	}

	sched, err := leaderboard.StartLeaderboardScheduler(cfg.LeaderboardRefreshInterval)
	if err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	if cfg.IdentitySyncURL != "" {
		syncWorker, err := workers.NewProfileSyncWorker(db, log, cfg.IdentitySyncURL, cfg.IdentitySyncPath, cfg.GatewayToken, cfg.IdentitySyncInterval)
		if err != nil {
			log.Fatal("failed to create profile sync worker", zap.Error(err))
		}
		syncWorker.Start(ctx)
	} else {
		log.Info("IDENTITY_SYNC_URL not set, profile sync disabled")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	// Only Gateway requests allowed; /metrics is scraped directly.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, log, "/metrics"))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	handlers.Setup(app, svc, log)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()
	log.Info("server running", zap.String("port", cfg.Port), zap.Strings("cors_origins", cfg.AllowedOrigins))

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("server shutdown", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		log.Warn("scheduler shutdown", zap.Error(err))
	}
}
