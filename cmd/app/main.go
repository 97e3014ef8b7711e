package main

import (
	"ProctorGolang/internal/config"
	"ProctorGolang/pkg/log"
	"ProctorGolang/pkg/metrics"
	"ProctorGolang/pkg/redis"
	websocketPkg "ProctorGolang/pkg/websocket"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	logger := log.NewLogger()
	if envErr != nil {
		logger.Warn("No .env file found, using system environment variables")
	}

	proctorConfig, err := config.LoadProctorConfig(logger)
	if err != nil {
		logger.Fatalf("Invalid proctor configuration: %v", err)
	}

	engine, err := config.NewProctorEngine(proctorConfig, logger)
	if err != nil {
		logger.Fatal(err)
	}

	fiberApp := config.NewFiber(logger)
	validator := config.NewValidator()
	redisServer := redis.New(logger)
	websocket := websocketPkg.NewAIWebSocketClient(proctorConfig.Endpoints, logger)

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithProctorConfig(proctorConfig),
		config.WithValidator(validator),
		config.WithProctorEngine(engine),
		config.WithRedisServer(redisServer),
		config.WithWebSocket(websocket),
		config.WithMiddleware(),
		config.WithS3Client(),
		config.WithMetrics(metrics.New()),
		config.WithUtils(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()
	server.StartJanitor()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}
