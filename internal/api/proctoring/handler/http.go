package proctoringHandler

import (
	"ProctorGolang/internal/api/proctoring"
	proctoringService "ProctorGolang/internal/api/proctoring/service"
	"ProctorGolang/internal/middleware"
	"ProctorGolang/pkg/handlerUtil"
	"ProctorGolang/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const startRequestLocal = "proctoring_start_request"

type ProctoringHandler struct {
	log               *logrus.Logger
	validator         *validator.Validate
	middleware        middleware.Middleware
	proctoringService proctoringService.IProctoringService
	utils             utils.IUtils
	stream            StreamConfig
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ps proctoringService.IProctoringService,
	utils utils.IUtils,
	stream StreamConfig,
) *ProctoringHandler {
	return &ProctoringHandler{
		proctoringService: ps,
		log:               log,
		validator:         validator,
		middleware:        middleware,
		utils:             utils,
		stream:            stream.withDefaults(),
	}
}

func (h *ProctoringHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	proctor := srv.Group("/proctoring")

	proctor.Use("/ws", wsMiddleware, h.validateStart)
	proctor.Get("/ws", websocket.New(h.handleStream, websocket.Config{
		ReadBufferSize:  h.stream.ReadBufferSize,
		WriteBufferSize: h.stream.WriteBufferSize,
	}))

	proctor.Get("/sessions", h.middleware.NewRateLimiter, h.middleware.NewTokenMiddleware, h.ListActiveSessions)
	proctor.Get("/sessions/:id/live", h.middleware.NewRateLimiter, h.middleware.NewTokenMiddleware, h.GetLiveSnapshot)
	proctor.Get("/sessions/:id/summary", h.middleware.NewRateLimiter, h.middleware.NewTokenMiddleware, h.GetSummary)
	proctor.Get("/sessions/:id/evidence", h.middleware.NewRateLimiter, h.middleware.NewTokenMiddleware, h.ListEvidence)
	proctor.Get("/interviews/:interview_id/summaries", h.middleware.NewRateLimiter, h.middleware.NewTokenMiddleware, h.ListSummaries)

	proctor.Use("/interviews/:interview_id/violations/ws", wsMiddleware, h.middleware.NewTokenMiddleware)
	proctor.Get("/interviews/:interview_id/violations/ws", websocket.New(h.handleViolationFeed))
}

// validateStart rejects a stream before the upgrade when its query is
// incomplete, so the client gets a plain HTTP 400.
func (h *ProctoringHandler) validateStart(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	var req proctoring.StartSessionRequest
	if err := ctx.QueryParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	ctx.Locals(startRequestLocal, req)
	return ctx.Next()
}
