package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fadilmartias/pte-practice/internal/config"
	"github.com/fadilmartias/pte-practice/internal/domain/fiber/handler"
	"github.com/fadilmartias/pte-practice/internal/domain/ws"
	"github.com/fadilmartias/pte-practice/internal/evaluation"
	"github.com/fadilmartias/pte-practice/internal/loader"
	"github.com/fadilmartias/pte-practice/internal/middleware"
	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/render"
	"github.com/fadilmartias/pte-practice/internal/repository"
	"github.com/fadilmartias/pte-practice/internal/service"
	"github.com/fadilmartias/pte-practice/internal/session"
	"github.com/fadilmartias/pte-practice/internal/usecase"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Could not load .env file")
	}

	appConfig := config.LoadAppConfig()
	slog.SetDefault(newLogger(appConfig))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := fiber.New(fiber.Config{
		AppName:   appConfig.Name,
		BodyLimit: 8 * 1024 * 1024,
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}

			message := err.Error()
			if message == "" {
				message = "Internal Server Error"
			}
			return ctx.Status(code).JSON(fiber.Map{"error": message})
		},
	})
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !appConfig.IsProduction(),
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(pprof.New(pprof.Config{
		Next: func(c *fiber.Ctx) bool {
			return appConfig.IsProduction()
		},
	}))
	app.Use(healthcheck.New())
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(middleware.RateLimiter(1200, 1*time.Minute))

	gemini, err := service.NewGeminiService(ctx)
	if err != nil {
		log.Printf("Gemini disabled: %v", err)
		gemini = nil
	}

	var practice *usecase.PracticeUsecase
	if config.LoadDBConfig().Enabled() {
		db := ConnectDB()
		if gemini != nil {
			practice = usecase.NewPracticeUsecase(repository.NewAttemptRepository(db), gemini)
		} else {
			practice = usecase.NewPracticeUsecase(repository.NewAttemptRepository(db), nil)
		}
	} else {
		log.Println("DB_HOST not set, practice history disabled")
	}

	backend := service.NewBackendService()
	hub := ws.NewHub()
	sessionConfig := config.LoadSessionConfig()

	deps := session.Deps{
		Loader:    buildLoader(backend, gemini, practice),
		Evaluator: evaluation.NewDispatcher(backend),
		Registry:  render.NewRegistry(timings(sessionConfig)),
		Notifier:  hub,
		Logger:    slog.Default(),
	}
	if practice != nil {
		deps.Recorder = practice
	}
	sessions := session.NewManager(deps, sessionConfig.IdleTimeout)
	go sessions.Run(ctx)

	var history handler.HistoryUsecase
	if practice != nil {
		history = practice
	}

	api := app.Group("/api")
	handler.NewSessionHandler(sessions).RegisterRoutes(api)
	handler.NewHistoryHandler(history).RegisterRoutes(api)
	handler.NewTTSHandler(service.NewTTSService(buildAudioCache(ctx))).RegisterRoutes(api)

	wsServer := &http.Server{
		Addr:              appConfig.WSPort,
		Handler:           ws.NewHandler(hub, sessions).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Println("WebSocket server running on", appConfig.WSPort)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("Active goroutines: %d, sessions: %d", runtime.NumGoroutine(), sessions.Len())
				if gemini != nil {
					if errs, open := gemini.CircuitBreakerStatus(); open {
						log.Printf("Gemini circuit breaker open after %d consecutive errors", errs)
					}
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sessions.Shutdown()
		hub.Close()
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("WebSocket shutdown: %v", err)
		}
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown: %v", err)
		}
	}()

	log.Println("Server running on", appConfig.Port)
	if err := app.Listen(appConfig.Port); err != nil {
		log.Fatal(err)
	}
}

func newLogger(appConfig *config.AppConfig) *slog.Logger {
	level := slog.LevelDebug
	if appConfig.IsProduction() {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("app", appConfig.Name, "env", appConfig.Env)
}

func timings(cfg *config.SessionConfig) render.Timings {
	t := render.DefaultTimings()
	t.DescribeImagePrep = cfg.DescribeImagePrep
	t.DescribeImageAnswer = cfg.DescribeImageAnswer
	t.Essay = cfg.EssaySeconds
	t.Summary = cfg.SummarySeconds
	return t
}

// buildLoader orders task sources by TASK_SOURCE. The backend always comes
// last so every task type has a source.
func buildLoader(backend service.BackendServiceInterface, gemini *service.GeminiService, practice *usecase.PracticeUsecase) *loader.Loader {
	cfg := config.LoadBackendConfig()
	var sources []loader.Source
	switch cfg.TaskSource {
	case "pdf":
		if cfg.TaskBank == "" {
			log.Println("TASK_SOURCE=pdf but TASK_BANK_PDF not set, falling back to backend")
			break
		}
		sources = append(sources, loader.NewPDFSource(cfg.TaskBank))
	case "gemini":
		if gemini == nil {
			log.Println("TASK_SOURCE=gemini but Gemini is disabled, falling back to backend")
			break
		}
		var dedupe loader.Deduper
		if practice != nil {
			dedupe = practice
		}
		sources = append(sources, loader.NewGeminiSource(gemini, dedupe))
	case "backend":
	default:
		log.Printf("Unknown TASK_SOURCE %q, using backend", cfg.TaskSource)
	}
	sources = append(sources, loader.NewBackendSource(backend))
	return loader.New(sources...)
}

func buildAudioCache(ctx context.Context) service.AudioCache {
	url := config.LoadTTSConfig().RedisURL
	if url == "" {
		return service.NewMemoryAudioCache()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("Invalid REDIS_URL, using memory cache: %v", err)
		return service.NewMemoryAudioCache()
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unreachable, using memory cache: %v", err)
		return service.NewMemoryAudioCache()
	}
	return service.NewRedisAudioCache(client)
}

func ConnectDB() *gorm.DB {
	dbConfig := config.LoadDBConfig()
	appConfig := config.LoadAppConfig()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		dbConfig.Host,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Name,
		dbConfig.Port,
		dbConfig.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	pgDB, err := db.DB()
	if err != nil {
		log.Fatalf("Could not get database instance: %v", err)
	}
	if appConfig.IsProduction() {
		pgDB.SetMaxIdleConns(10)
		pgDB.SetMaxOpenConns(50)
		pgDB.SetConnMaxLifetime(time.Hour)
	} else {
		pgDB.SetMaxIdleConns(5)
		pgDB.SetMaxOpenConns(10)
		pgDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		log.Fatal("enable pgvector: ", err)
	}
	if err := db.AutoMigrate(&model.Attempt{}); err != nil {
		log.Fatal("migration failed: ", err)
	}
	return db
}
