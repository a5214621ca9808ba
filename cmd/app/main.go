package main

import (
	"ProctorGolang/internal/config"
	"ProctorGolang/pkg/cascade"
	"ProctorGolang/pkg/log"
	"ProctorGolang/pkg/proctor"
	"ProctorGolang/pkg/redis"
	"context"
	"github.com/joho/godotenv"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	logger := log.NewLogger()
	if err := godotenv.Load(); err != nil {
		logger.Warnf("No .env file loaded: %v", err)
	}

	validator := config.NewValidator()

	proctoringConfig, err := config.LoadProctoringConfig(validator)
	if err != nil {
		logger.Fatalf("Invalid proctoring configuration: %v", err)
	}

	pools, err := cascade.LoadFacePools(proctoringConfig.CascadeDir, proctoringConfig.Workers, cascade.DefaultParams())
	if err != nil {
		logger.Fatalf("Failed to load cascade classifiers: %v", err)
	}
	defer func() {
		if err := pools.Close(); err != nil {
			logger.Errorf("Error releasing cascade classifiers: %v", err)
		}
	}()

	analyzer, err := proctor.New(pools.Frontal, pools.Profile, config.AnalyzerOptions(proctoringConfig)...)
	if err != nil {
		logger.Fatalf("Failed to create analyzer: %v", err)
	}

	fiberApp := config.NewFiber(logger)

	options := []config.ServerOption{
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithDatabase(),
		config.WithMiddleware(),
		config.WithS3Client(),
		config.WithUtils(),
		config.WithProctoring(analyzer, proctoringConfig),
	}
	if os.Getenv("REDIS_ADDRESS") != "" {
		options = append(options, config.WithRedisServer(redis.New(logger)))
	} else {
		logger.Warn("REDIS_ADDRESS not set, live snapshots and violation feed disabled")
	}

	server, err := config.NewServer(options...)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.WithField("workers", proctoringConfig.Workers).Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}
