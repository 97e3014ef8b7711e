package proctoringHandler

import (
	proctoringService "ProctorGolang/internal/api/proctoring/service"
	"ProctorGolang/internal/middleware"
	"ProctorGolang/pkg/utils"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	requestTimeout = 10 * time.Second
	streamIdle     = 60 * time.Second
)

type ProctoringHandler struct {
	log               *logrus.Logger
	validator         *validator.Validate
	middleware        middleware.Middleware
	proctoringService proctoringService.IProctoringService
	utils             utils.IUtils
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ps proctoringService.IProctoringService,
	utils utils.IUtils,
) *ProctoringHandler {
	return &ProctoringHandler{
		proctoringService: ps,
		log:               log,
		validator:         validator,
		middleware:        middleware,
		utils:             utils,
	}
}

func (h *ProctoringHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals(streamRequestIDKey, h.middleware.GetRequestID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	proctoring := srv.Group("/proctoring")
	proctoring.Post("/process-ml", h.middleware.NewRateLimiter, h.ProcessML)

	proctoring.Use("/ws", wsMiddleware)
	proctoring.Get("/ws", websocket.New(h.handleStream))

	sessions := proctoring.Group("/sessions", h.middleware.NewTokenMiddleware)
	sessions.Post("", h.StartSession)
	sessions.Get("/:id", h.GetSession)
	sessions.Delete("/:id", h.EndSession)
}

// StartLegacy mounts the unversioned frame endpoint browsers already post to.
func (h *ProctoringHandler) StartLegacy(srv fiber.Router) {
	srv.Post("/process-ml", h.middleware.NewRateLimiter, h.ProcessML)
}
