package main

import (
	"context"
	"dm-lab/auth"
	"dm-lab/errors"
	"dm-lab/internal"
	"dm-lab/moderation"
	"dm-lab/observability"
	"dm-lab/permission"
	"dm-lab/repositories"
	"dm-lab/runtime/workers"
	"dm-lab/server"
	"dm-lab/services"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a server failure.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig(".env")
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = writer.Close()
	}()

	messages := repositories.NewMessageRepository(db, log)
	stores := services.Stores{
		Conversations: repositories.NewConversationRepository(db, log, messages),
		Messages:      messages,
		Index:         repositories.NewMessageIndex(writer, log),
		Profiles:      repositories.NewProfileRepository(db),
		Relationships: repositories.NewRelationshipRepository(db),
		Notifications: repositories.NewNotificationRepository(db),
	}

	// 3. Moderation
	blocklist, err := moderation.DefaultBlocklist()
	if err != nil {
		return fmt.Errorf("blocklist loading failed: %w", err)
	}
	classifier, err := moderation.NewBlocklistClassifier(blocklist, log)
	if err != nil {
		return fmt.Errorf("classifier init failed: %w", err)
	}
	log.Info("Moderation ready", "categories", blocklist.Categories(), "timeout", config.ModerationTimeout)

	// 4. Supervised background workers
	dispatcher := workers.NewNotificationDispatcher(config.NotificationBufferSize, log)
	queue := dispatcher.Queue()
	monitoring := observability.NewMonitoringManager(log, config.MetricInterval, func() (int, int) {
		return len(queue), cap(queue)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthServer := health.NewServer()
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewNotificationWorker(queue, stores.Notifications, log),
		workers.NewQueueMonitorWorker(log, []workers.NamedChannel{
			{Name: "notifications", Channel: queue},
		}, config.MetricInterval),
		workers.NewHealthMonitoringWorker(log, healthServer, func() error { return repositories.Ping(db) }, config.MetricInterval),
		monitoring,
	)
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 5. Facade & HTTP
	service := services.NewMessagingService(
		stores,
		permission.NewGate(stores.Conversations, stores.Relationships, log),
		moderation.NewGate(classifier, config.ModerationTimeout, log),
		dispatcher,
		services.Limits{MaxContentLength: config.MaxContentLength, DefaultPageSize: config.DefaultPageSize},
		log,
	)
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)

	if !log.Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              config.HTTPAddress(),
		Handler:           server.NewServer(service, tokens, monitoring, server.Options{
			CORSOrigins: config.CORSOrigins(),
			DebugStats:  config.DebugStats,
		}, log).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 6. gRPC health
	listener, err := net.Listen("tcp", config.GRPCAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.GRPCAddress(), err)
	}
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		log.Info("Starting gRPC health server", "address", config.GRPCAddress())
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		log.Error("Server failed, shutting down", "error", runErr)
	}

	// 8. Final Cleanup
	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()
	stop()
	sup.Stop()
	// Workers still write to the stores until they return
	<-supervisorDone
	log.Info("Program stopped cleanly")
	return runErr
}
