package config

import (
	proctoringHandler "ProctorGolang/internal/api/proctoring/handler"
	proctoringService "ProctorGolang/internal/api/proctoring/service"
	"ProctorGolang/internal/middleware"
	"ProctorGolang/pkg/metrics"
	"ProctorGolang/pkg/proctor"
	"ProctorGolang/pkg/redis"
	"ProctorGolang/pkg/s3"
	"ProctorGolang/pkg/utils"
	websocketPkg "ProctorGolang/pkg/websocket"
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	redisServer redis.IRedis
	aiWebsocket websocketPkg.IWebsocket
	s3Client    s3.ItfS3
	metrics     *metrics.Metrics
	proctor     *proctor.Engine
	proctorCfg  ProctorConfig
	proctoring  proctoringService.IProctoringService
	stopJanitor context.CancelFunc
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.proctor == nil {
		return nil, fmt.Errorf("proctor engine is required")
	}
	if server.aiWebsocket == nil {
		return nil, fmt.Errorf("perception client is required")
	}
	if server.middleware == nil {
		return nil, fmt.Errorf("middleware is required")
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New()
	}
	if server.metrics == nil {
		server.metrics = metrics.New()
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithProctorConfig(cfg ProctorConfig) ServerOption {
	return func(s *Server) error {
		s.proctorCfg = cfg
		return nil
	}
}

func WithProctorEngine(engine *proctor.Engine) ServerOption {
	return func(s *Server) error {
		s.proctor = engine
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithWebSocket(webSocket websocketPkg.IWebsocket) ServerOption {
	return func(s *Server) error {
		s.aiWebsocket = webSocket
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log, s.proctorCfg.RateLimit, s.proctorCfg.RateBurst)
		return nil
	}
}

// WithS3Client connects the evidence bucket. It is a no-op while evidence capture is disabled.
func WithS3Client() ServerOption {
	return func(s *Server) error {
		if !s.proctorCfg.Service.EvidenceEnabled {
			return nil
		}
		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) error {
		s.metrics = m
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	// Proctoring Domain
	s.proctoring = proctoringService.NewProctoringService(s.log, s.proctorCfg.Service, s.proctor, s.aiWebsocket, s.redisServer, s.s3Client, s.metrics, s.utils)
	proctoringHandlers := proctoringHandler.New(s.log, s.validator, s.middleware, s.proctoring, s.utils)

	s.setupHealthCheck()
	s.engine.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	proctoringHandlers.StartLegacy(s.engine)

	s.handlers = append(s.handlers, proctoringHandlers)

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}
}

// StartJanitor evicts idle sessions in the background until Shutdown.
func (s *Server) StartJanitor() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopJanitor = cancel
	go s.proctoring.RunJanitor(ctx)
}

func (s *Server) Run() error {
	port := s.proctorCfg.Port
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown stops accepting frames, then drains evidence uploads and closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopJanitor != nil {
		s.stopJanitor()
	}

	err := s.engine.ShutdownWithContext(ctx)

	if s.proctoring != nil {
		s.proctoring.Wait()
	}
	s.aiWebsocket.CloseConnections()
	if s.redisServer != nil {
		if closeErr := s.redisServer.Close(); closeErr != nil {
			s.log.Warnf("Error closing Redis client: %v", closeErr)
		}
	}

	return err
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		perception := fiber.Map{}
		for _, kind := range websocketPkg.Kinds {
			if !s.aiWebsocket.Enabled(kind) {
				perception[kind.Name()] = "disabled"
				continue
			}
			if s.aiWebsocket.IsConnected(kind) {
				perception[kind.Name()] = "connected"
			} else {
				perception[kind.Name()] = "disconnected"
			}
		}

		return ctx.JSON(fiber.Map{
			"message":    "Server is Healthy!",
			"perception": perception,
		})
	})
}
