package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"underwriting-service/internal/config"
	"underwriting-service/internal/database/minio"
	"underwriting-service/internal/database/postgres"
	"underwriting-service/internal/database/redis"
	"underwriting-service/internal/event"
	"underwriting-service/internal/handlers"
	"underwriting-service/internal/repository"
	"underwriting-service/internal/services"
	"underwriting-service/internal/worker"

	"github.com/gofiber/fiber/v3"
)

func setupLogging(logDir string) (*os.File, error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Recovered from panic: %v\n", r)
		}
	}()

	fmt.Println("Log directory:", logDir)
	err := os.MkdirAll(logDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	if absPath, err := filepath.Abs(logFile); err == nil {
		fmt.Printf("Logging to: %s\n", absPath)
	}

	out := io.MultiWriter(os.Stdout, file)
	log.SetOutput(out)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{AddSource: true})))

	return file, nil
}

func main() {
	cfg := config.New()
	logFile, err := setupLogging(cfg.LogDir)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the ledger is rebuilt from postgres, so startup waits for it
	db, err := postgres.ConnectAndCreateDB(cfg.PostgresCfg)
	if err != nil {
		slog.Error("error connect to database", "error", err)
		postgres.RetryConnectOnFailed(30*time.Second, &db, cfg.PostgresCfg)
	}
	defer db.Close()

	var store services.LedgerStore = repository.NewUnderwritingRepository(db)

	var cache services.PremiumCache
	redisClient, err := redis.NewRedisClient(cfg.RedisCfg)
	if err != nil {
		slog.Warn("premium cache disabled", "error", err)
	} else {
		defer redisClient.Close()
		cache = repository.NewPremiumCacheRepository(redisClient)
	}

	var (
		publisher       services.EventPublisher
		dispatcher      services.JobSubmitter
		ledgerPublisher *event.LedgerPublisher
		poolWg          sync.WaitGroup
	)
	rabbitConn, err := event.ConnectRabbitMQ(cfg.RabbitMQCfg)
	if err != nil {
		slog.Warn("ledger events disabled", "error", err)
	} else {
		defer rabbitConn.Close()
		ledgerPublisher = event.NewLedgerPublisher(rabbitConn)
		publisher = ledgerPublisher

		pool := worker.NewWorkingPool("ledger-events", cfg.EventCfg.NumWorkers, cfg.EventCfg.QueueSize)
		poolWg.Add(1)
		go pool.Start(ctx, &poolWg)
		dispatcher = pool
	}

	var archive services.SnapshotArchive
	minioClient, err := minio.NewMinioClient(cfg.MinioCfg)
	if err != nil {
		slog.Warn("snapshot archive disabled", "error", err)
	} else {
		defer minioClient.Close()
		archive = minioClient
	}

	underwritingService := services.NewUnderwritingService(store, cache, publisher, dispatcher, archive)
	if err := underwritingService.Load(ctx, cfg.InitialAdmin); err != nil {
		log.Fatalf("Failed to load underwriting ledger: %v", err)
	}

	app := fiber.New()
	app.Get("/checkhealth", func(c fiber.Ctx) error {
		health := map[string]any{
			"status":         "healthy",
			"database":       postgres.DBStatus,
			"ledger_version": underwritingService.Ledger().Version(),
		}
		if ledgerPublisher != nil {
			health["events"] = ledgerPublisher.HealthCheck()
		}
		return c.Status(fiber.StatusOK).JSON(health)
	})

	underwritingHandler := handlers.NewUnderwritingHandler(underwritingService)
	underwritingHandler.Register(app)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "port", cfg.Port)
		if err := app.Listen(fmt.Sprintf("0.0.0.0:%s", cfg.Port)); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
	}()

	<-shutdownChan
	slog.Info("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("error during server shutdown", "error", err)
	}

	// drain queued ledger events before connections close
	cancel()
	poolWg.Wait()
	slog.Info("underwriting service stopped")
}
