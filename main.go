package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"taskflow-progression/handlers"
	"taskflow-progression/middleware"
	"taskflow-progression/services"
	"taskflow-progression/storage"
	"taskflow-progression/utils"
	"taskflow-progression/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	log := utils.NewLogger("progression")

	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 5 * 1024 * 1024, // icon uploads only
	})

	// Only Gateway requests allowed — no exceptions besides health.
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		log.Warn("ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOrigins = "http://localhost:3000"
	}
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}

	store := storage.NewPostgresStore(db)
	if err := store.AutoMigrate(); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}
	if err := store.SeedCatalog(context.Background()); err != nil {
		log.WithError(err).Fatal("failed to seed achievement catalog")
	}

	if err := utils.InitR2(); err != nil {
		log.WithError(err).Fatal("failed to initialize R2 client")
	}

	var leaderboard *services.LeaderboardService
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		leaderboard, err = services.NewLeaderboardService(addr, os.Getenv("REDIS_PASSWORD"))
		if err != nil {
			// Leaderboard is best-effort; the engine runs without it.
			log.WithError(err).Warn("leaderboard disabled, redis unreachable")
			leaderboard = nil
		}
	}

	progressionService := services.NewProgressionService(store, services.ProgressionConfig{
		Curve:          services.LevelCurve{BaseXP: envInt64("LEVEL_BASE_XP", 100)},
		StreakLocation: streakLocation(log),
		LockTimeout:    envDuration("LOCK_TIMEOUT", 3*time.Second),
		Leaderboard:    leaderboard,
		Logger:         log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reconciler := workers.NewReconcileWorker(progressionService, log, envDuration("RECONCILE_INTERVAL", 10*time.Minute))
	if err := reconciler.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start reconcile worker")
	}

	handlers.SetupProgressionRoutes(app, progressionService, leaderboard)
	handlers.SetupCatalogRoutes(app, db, progressionService)

	metricsAddr := os.Getenv("METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9100"
	}
	go func() {
		if err := utils.ServeMetrics(metricsAddr); err != nil {
			log.WithError(err).Error("metrics listener stopped")
		}
	}()

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":5300"
	}
	go func() {
		if err := app.Listen(listenAddr); err != nil {
			log.WithError(err).Error("server error")
		}
	}()

	log.Infof("✅ Progression service running on %s", listenAddr)
	log.Infof("✅ Reconcile worker running (every %s)", envDuration("RECONCILE_INTERVAL", 10*time.Minute))
	log.Infof("✅ Metrics on %s/metrics", metricsAddr)

	<-ctx.Done()
	log.Info("shutting down server...")
	_ = app.Shutdown()
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func streakLocation(log interface{ Warnf(string, ...interface{}) }) *time.Location {
	name := os.Getenv("STREAK_TIMEZONE")
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warnf("invalid STREAK_TIMEZONE %q, falling back to UTC", name)
		return time.UTC
	}
	return loc
}
