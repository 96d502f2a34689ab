package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartsolve/auth"
	grpcserver "smartsolve/infrastructure/grpc/server"
	"smartsolve/infrastructure/web"
	"smartsolve/internal"
	"smartsolve/moderation"
	"smartsolve/repositories"
	"smartsolve/runtime"
	"smartsolve/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run keeps every defer (database close first) on the exit path.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment may be set by the service manager.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := config.CharacterRune()
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	messageRepository := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	notificationRepository := repositories.NewNotificationRepository(db, logger)
	userRepository := repositories.NewUserRepository(db)

	// 3. Content review
	reviewer, err := buildReviewer(config, charReplacement, logger)
	if err != nil {
		return exitConfig, err
	}

	// 4. Orchestration
	orchestrator := runtime.NewOrchestrator(logger, notificationRepository, runtime.OrchestratorConfig{
		Registry: runtime.RegistryConfig{
			Shards:         config.RegistryShards,
			MaxConnections: config.MaxConnections,
			MaxPerUser:     config.MaxConnectionsPerUser,
		},
		PushTimeout:          config.PushTimeout,
		NumberOfWorkers:      config.NumberOfWorkers,
		BufferSize:           config.BufferSize,
		MetricInterval:       config.MetricInterval,
		RestartInterval:      config.RestartInterval,
		LowCapacityThreshold: config.LowCapacityThreshold,
	})

	gate := auth.NewGate(auth.NewJWTVerifier(config.JWTSecret, config.JWTIssuer), userRepository, logger)
	monitoring := orchestrator.Monitoring()
	messaging := services.NewMessagingService(messageRepository, orchestrator.Router(), reviewer, monitoring, logger, config.MaxContentLength)
	sessions := services.NewSessionService(gate, orchestrator.Registry(), monitoring, logger)
	notifications := services.NewNotificationService(orchestrator.Fanout(), notificationRepository)

	storeHealth := func(context.Context) error {
		if db.IsClosed() {
			return badger.ErrDBClosed
		}
		return nil
	}

	healthServer := grpcserver.NewHealthServer(logger, storeHealth, config.MetricInterval)
	orchestrator.Supervise(healthServer)

	errChan := make(chan error, 3)
	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)
		orchestrator.Start(ctx)
	}()

	// 5. HTTP & live connections
	webServer := web.NewServer(logger, gate, messaging, notifications, sessions, storeHealth, web.Config{
		ConnectionBufferSize: config.ConnectionBufferSize,
		WriteTimeout:         config.WriteTimeout,
		PongTimeout:          config.PongTimeout,
		AllowedOrigins:       config.Origins(),
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           webServer,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 6. gRPC health
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := grpcserver.NewGRPCServer(logger, gate, healthServer)
	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. Debug inspector
	var debugServer *http.Server
	if config.DebugPort > 0 {
		debugServer = &http.Server{
			Addr: fmt.Sprintf("localhost:%d", config.DebugPort),
			Handler: internal.NewDebugHandler(db,
				func() any { return orchestrator.Stats() },
				orchestrator.Registry().Connections),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Debug inspector available", "url", fmt.Sprintf("http://%s/debug/inspect", debugServer.Addr))
			if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("debug server error: %w", err)
			}
		}()
	}

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful shutdown: stop accepting, close the hijacked websockets, then
	// drain the workers before the database closes.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if err := webServer.CloseLive(shutdownCtx); err != nil {
		logger.Warn("Live connections still open at shutdown", "error", err)
	}
	if debugServer != nil {
		_ = debugServer.Shutdown(shutdownCtx)
	}
	grpcServer.GracefulStop()
	orchestrator.Stop()
	<-orchestratorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

// buildReviewer masks dictionary words when moderation is enabled.
// Language detection runs either way.
func buildReviewer(config internal.Config, charReplacement rune, logger *slog.Logger) (moderation.Reviewer, error) {
	if !config.EnableModeration {
		return moderation.LanguageDetector{}, nil
	}
	data, err := moderation.DefaultLoader().LoadAll("censored")
	if err != nil {
		return nil, fmt.Errorf("unable to load censored words: %w", err)
	}
	moderator, err := moderation.NewModerator(data.Words, charReplacement)
	if err != nil {
		return nil, err
	}
	logger.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	return moderator, nil
}
