package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-arena/internal/anticheat"
	"github.com/noah-isme/gema-arena/internal/config"
	"github.com/noah-isme/gema-arena/internal/database"
	"github.com/noah-isme/gema-arena/internal/game"
	"github.com/noah-isme/gema-arena/internal/handler"
	"github.com/noah-isme/gema-arena/internal/middleware"
	"github.com/noah-isme/gema-arena/internal/observability"
	"github.com/noah-isme/gema-arena/internal/repository"
	"github.com/noah-isme/gema-arena/internal/router"
	"github.com/noah-isme/gema-arena/internal/service"
	"github.com/noah-isme/gema-arena/internal/store"
	"github.com/noah-isme/gema-arena/pkg/ai"
	dockerexec "github.com/noah-isme/gema-arena/pkg/docker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level := zerolog.InfoLevel
	if cfg.AppEnv == "development" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	sessionStore, err := buildStore(ctx, cfg, redisClient)
	if err != nil {
		log.Fatalf("failed to configure session store: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	problemRepo := repository.NewProblemRepository(db)
	solutionRepo := repository.NewSolutionRepository(db)
	securityRepo := repository.NewSecurityEventRepository(db)
	gameRecordRepo := repository.NewGameRecordRepository(db)

	var auditWriter service.MessageWriter
	if len(cfg.KafkaBrokers) > 0 {
		auditWriter = service.NewKafkaAuditWriter(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
	}
	auditService := service.NewAuditService(securityRepo, auditWriter, cfg.AuditBuffer, logger)
	auditService.Start(ctx)

	notificationService := service.NewNotificationService(redisClient, cfg.ChannelBase, natsConn, logger)
	notificationService.Start(ctx)

	problemService := service.NewProblemService(problemRepo, validate, logger)
	archiveService := service.NewArchiveService(gameRecordRepo, logger)

	var integrity *anticheat.IntegrityMonitor
	if redisClient != nil {
		integrity = anticheat.NewIntegrityMonitor(redisClient, anticheat.IntegrityConfig{
			TTL:          cfg.IntegrityTTL,
			MinThinkTime: cfg.MinThinkTime,
			MaxPerWindow: cfg.MaxPerMinute,
		})
	}
	similarityCfg := anticheat.DefaultSimilarityConfig()
	similarityCfg.Window = cfg.SimilarityWindow
	similarity := anticheat.NewSimilarityIndex(solutionRepo, similarityCfg)
	engine := anticheat.NewEngine(anticheat.NewCodeAnalyzer(), similarity, integrity, auditService, logger)

	gradingService := service.NewGradingService(buildGrader(cfg, logger), buildRunner(cfg, logger), problemService, logger)

	registry := game.NewRegistry(game.RegistryConfig{
		Defaults: game.SessionConfig{
			Mode:             cfg.DefaultMode,
			MaxPlayers:       cfg.DefaultMaxPlayers,
			MaxRounds:        cfg.DefaultMaxRounds,
			SessionTimeLimit: cfg.DefaultSessionTimeLimit,
			RoundTimeLimit:   cfg.DefaultRoundTimeLimit,
			Language:         cfg.DefaultLanguage,
			Difficulty:       cfg.DefaultDifficulty,
			AllowSpectators:  true,
		},
		SweepInterval:      cfg.SweepInterval,
		WaitingIdle:        cfg.WaitingIdle,
		CompletedRetention: cfg.CompletedRetention,
		CancelledRetention: cfg.CancelledRetention,
		QueueTimeout:       cfg.QueueTimeout,
	}, game.Dependencies{
		Problems:       problemService,
		Grader:         gradingService,
		Screener:       engine,
		Store:          sessionStore,
		Notifier:       notificationService,
		Archiver:       archiveService,
		GradingTimeout: cfg.GradingTimeout,
		StoreTTL:       cfg.StoreTTL,
		Logger:         logger,
	}, validate)
	go registry.Run(ctx)
	go purgeSolutions(ctx, solutionRepo, cfg.SimilarityWindow, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		ArenaHandler:   handler.NewArenaHandler(registry, validate, logger),
		StreamHandler:  handler.NewSessionStreamHandler(registry, notificationService, validate, logger, cfg.StreamKeepAlive),
		HistoryHandler: handler.NewHistoryHandler(archiveService, logger),
		AdminHandler:   handler.NewArenaAdminHandler(problemService, auditService, validate, logger),
		SeedHandler:    handler.NewSeedHandler(service.NewSeedService(problemRepo, validate, cfg.SeedEnabled, cfg.SeedToken, logger), logger),
		Sessions:       registry,
		JWTMiddleware:  middleware.JWTProtected(cfg.JWTSecret),
		SubmitLimiter:  middleware.RateLimit("arena-submit", cfg.SubmitRateLimit, time.Minute),
		MetricsHandler: observability.MetricsHandler(cfg.MetricsToken),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdown(app, registry, auditService, cfg.ShutdownDeadline, logger)
}

func buildStore(ctx context.Context, cfg config.Config, redisClient *redis.Client) (game.Store, error) {
	if cfg.StoreBackend == config.StoreDynamoDB {
		client, err := store.ConnectDynamo(ctx, cfg.DynamoRegion, cfg.DynamoURL)
		if err != nil {
			return nil, err
		}
		return store.NewDynamoStore(client, cfg.DynamoTable), nil
	}
	return store.NewRedisStore(redisClient, cfg.ChannelBase+":session:"), nil
}

func buildGrader(cfg config.Config, logger zerolog.Logger) ai.Grader {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn().Msg("openai api key not set, rounds use fallback grading")
		return nil
	}
	grader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Logger:  logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("openai grader disabled")
		return nil
	}
	return grader
}

func buildRunner(cfg config.Config, logger zerolog.Logger) service.SourceRunner {
	if !cfg.SandboxEnabled {
		return nil
	}
	executor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.SandboxTimeout,
		MemoryLimitMB: int64(cfg.SandboxMemoryMB),
		CPUShares:     int64(cfg.SandboxCPUShares),
		Logger:        logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("sandbox disabled")
		return nil
	}
	return dockerexec.NewSandbox(executor, dockerexec.SandboxConfig{
		Timeout:       cfg.SandboxTimeout,
		MemoryLimitMB: int64(cfg.SandboxMemoryMB),
		CPUShares:     int64(cfg.SandboxCPUShares),
	})
}

func purgeSolutions(ctx context.Context, repo *repository.SolutionRepository, window time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := repo.PurgeBefore(ctx, time.Now().UTC().Add(-window))
			if err != nil {
				logger.Warn().Err(err).Msg("failed to purge accepted solutions")
				continue
			}
			if purged > 0 {
				logger.Info().Int64("purged", purged).Msg("accepted solutions purged")
			}
		}
	}
}

func shutdown(app *fiber.App, registry *game.Registry, audit service.AuditService, deadline time.Duration, logger zerolog.Logger) {
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := registry.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("sessions did not drain before the deadline")
	}
	if err := audit.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close audit sink")
	}

	logger.Info().Msg("server stopped")
}
