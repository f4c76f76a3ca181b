package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/grpc"

	api "nft-rental-escrow/internal/api/grpc"
	"nft-rental-escrow/internal/api/grpc/interceptor"
	httpapi "nft-rental-escrow/internal/api/http"
	"nft-rental-escrow/internal/app"
	"nft-rental-escrow/internal/config"
	"nft-rental-escrow/internal/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting rental escrow server...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// Set up gRPC server
	lis, err := net.Listen("tcp", cfg.GetServerAddress())
	if err != nil {
		logger.Error("Failed to listen", "error", err, "address", cfg.GetServerAddress())
		log.Fatalf("Failed to listen: %v", err)
	}
	s := grpc.NewServer(grpc.UnaryInterceptor(interceptor.Unary()))
	api.RegisterEscrowServiceServer(s, api.NewEscrowHandler(a.Submitter, a.Program, a.Bridge, a.Custodian))

	// Set up HTTP server for health, metrics and read queries
	router := mux.NewRouter()
	queries := httpapi.NewQueryHandler(a.Store, a.Custodian, a.Queue, map[string]httpapi.HealthCheck{
		"database": a.DB.PingContext,
		"redis":    func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
	})
	httpapi.RegisterRoutes(router, queries, a.Metrics)
	httpServer := &http.Server{
		Addr:              cfg.GetHTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		logger.Info("gRPC server listening", "address", cfg.GetServerAddress())
		if err := s.Serve(lis); err != nil {
			logger.Error("Failed to serve gRPC", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}
	s.GracefulStop()
	logger.Info("Server stopped")
}
