package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainer-chat/auth"
	"trainer-chat/contract"
	"trainer-chat/infrastructure/api"
	"trainer-chat/infrastructure/grpc/server"
	"trainer-chat/infrastructure/postgres"
	"trainer-chat/infrastructure/redisdir"
	"trainer-chat/infrastructure/storage"
	"trainer-chat/internal"
	"trainer-chat/moderation"
	"trainer-chat/runtime"
	"trainer-chat/runtime/workers"
	"trainer-chat/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until SIGINT or SIGTERM.
// Returning instead of exiting lets the deferred closes run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		if err := db.Close(); err != nil {
			logger.Error("BadgerDB close failed", "error", err)
		}
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		logger.Info("Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		database.StartDebugServer(db, config.DebugPort, "/inspect", recordMapper)
	}

	// 3. Trainer directories, Badger prefixes first then Redis sets
	var directories []contract.TrainerDirectory
	for _, prefix := range config.TrainerPrefixes() {
		directories = append(directories, storage.NewTrainerDirectory(db, prefix))
	}
	if config.RedisURL != "" {
		client, err := redisdir.Connect(ctx, config.RedisURL)
		if err != nil {
			return exitRuntime, fmt.Errorf("redis connection failed: %w", err)
		}
		defer func() { _ = client.Close() }()
		for _, set := range internal.SplitList(config.RedisTrainerSets) {
			directories = append(directories, redisdir.NewDirectory(client, set))
		}
	}

	// 4. Profiles, Postgres when configured
	var profiles contract.ProfileResolver = storage.NewProfileRepository(db)
	if config.PostgresURL != "" {
		pool, err := postgres.Connect(ctx, config.PostgresURL)
		if err != nil {
			return exitRuntime, fmt.Errorf("postgres connection failed: %w", err)
		}
		defer pool.Close()
		profiles = postgres.NewProfileResolver(pool)
	}

	moderator, err := moderation.NewModerator(internal.SplitList(config.CensoredWords), charReplacement, logger)
	if err != nil {
		return exitConfig, fmt.Errorf("moderation setup failed: %w", err)
	}

	// 5. Services
	store := storage.NewMessageStore(db, logger,
		storage.WithMaxTextLength(config.MaxTextLength),
		storage.WithMaxConflictRetries(config.MaxConflictRetries))
	feed := storage.NewFeed(db, store, logger, storage.DefaultResyncDelay)
	roles := services.NewRoleResolver(logger, directories...)
	messaging := services.NewMessagingService(logger, roles, store, moderator)
	chatList := services.NewChatListAggregator(logger, store, profiles, config.ProfileLookupConcurrency)
	syncChannel := runtime.NewSyncChannel(feed, logger, config.ResubscribeDelay)
	validator := auth.NewTokenValidator(config.JWTSecret)

	handler := api.NewHandler(logger, messaging, chatList, syncChannel, runtime.NewRegistry(), config.ConnectionBufferSize)
	httpServer := &http.Server{
		Addr:              config.HTTPAddress(),
		Handler:           api.NewRouter(logger, handler, validator),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Supervision
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(
		workers.NewHTTPServerWorker(httpServer, logger),
		server.NewHealthServer(logger, config.GRPCAddress(), db, validator, config.HealthProbeInterval),
		workers.NewValueLogGCWorker(db, logger, config.GCInterval),
	)

	logger.Info("Trainer chat started",
		"http", config.HTTPAddress(),
		"grpc", config.GRPCAddress(),
		"trainer_directories", len(directories))

	supervisor.Run(ctx)

	// 7. Sockets hold store subscriptions, they go before Badger
	logger.Info("Shutting down gracefully...")
	handler.CloseStreams()
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

func recordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	row.Type, row.Detail = storage.Describe(key, val)
	return row
}
