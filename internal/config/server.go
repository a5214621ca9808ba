package config

import (
	"ProctorGolang/database/postgres"
	"ProctorGolang/internal/api/proctoring"
	proctoringHandler "ProctorGolang/internal/api/proctoring/handler"
	proctoringRepository "ProctorGolang/internal/api/proctoring/repository"
	proctoringService "ProctorGolang/internal/api/proctoring/service"
	"ProctorGolang/internal/middleware"
	"ProctorGolang/pkg/proctor"
	"ProctorGolang/pkg/redis"
	"ProctorGolang/pkg/s3"
	"ProctorGolang/pkg/utils"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"os"
)

type ServerOption func(*Server) error

type Server struct {
	engine            *fiber.App
	db                *sqlx.DB
	log               *logrus.Logger
	middleware        middleware.Middleware
	validator         *validator.Validate
	utils             utils.IUtils
	handlers          []handler
	redisServer       redis.IRedis
	s3Client          s3.ItfS3
	analyzer          *proctor.Analyzer
	proctoringConfig  ProctoringConfig
	proctoringService proctoringService.IProctoringService
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{proctoringConfig: DefaultProctoringConfig()}

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
	if server.analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
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

func WithDatabase() ServerOption {
	return func(s *Server) error {
		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

// WithS3Client enables evidence capture. A missing bucket only disables it.
func WithS3Client() ServerOption {
	return func(s *Server) error {
		client, err := s3.New()
		if errors.Is(err, s3.ErrBucketNotConfigured) {
			if s.log != nil {
				s.log.Warn("AWS_BUCKET_NAME not set, violation evidence disabled")
			}
			return nil
		}
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

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func WithProctoring(analyzer *proctor.Analyzer, cfg ProctoringConfig) ServerOption {
	return func(s *Server) error {
		s.analyzer = analyzer
		s.proctoringConfig = cfg
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Proctoring Domain
	proctoringRepo := proctoringRepository.New(s.db, s.log)
	s.proctoringService = proctoringService.New(s.log, s.analyzer, proctoringRepo, s.redisServer, s.s3Client, s.utils, s.proctoringConfig.Service)
	proctoringHandlers := proctoringHandler.New(s.log, s.validator, s.middleware, s.proctoringService, s.utils, s.proctoringConfig.Stream)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, proctoringHandlers)
}

func (s *Server) Run() error {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	router := s.engine.Group("/api/v1")

	for _, h := range s.handlers {
		h.Start(router)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown stops accepting connections, then finalizes every live session so
// its summary is persisted.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.engine.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	if s.proctoringService != nil {
		if err := s.proctoringService.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown proctoring: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		count := 0
		if s.proctoringService != nil {
			count = s.proctoringService.ActiveCount()
		}
		return ctx.JSON(proctoring.HealthResponse{
			Message:          "Proctoring API Running",
			DetectionMethods: proctoring.DetectionMethods,
			ActiveSessions:   count,
		})
	})
}
