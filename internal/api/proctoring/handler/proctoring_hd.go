package proctoringHandler

import (
	"ProctorGolang/internal/api/proctoring"
	contextPkg "ProctorGolang/pkg/context"
	"ProctorGolang/pkg/handlerUtil"
	jwtPkg "ProctorGolang/pkg/jwt"
	"ProctorGolang/pkg/log"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *ProctoringHandler) ProcessML(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var (
		frame     []byte
		sessionID string
	)

	file, err := ctx.FormFile("image")
	if err == nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"file_name":  file.Filename,
			"file_size":  file.Size,
		}).Debug("Processing frame upload")

		frame, err = h.utils.ReadImageFile(file)
		if err != nil {
			return errHandler.Handle(ctx, requestID, fmt.Errorf("%w: %v", proctoring.ErrInvalidImage, err), ctx.Path(), "read_image_file")
		}

		sessionID = ctx.FormValue("sessionId")
		if err := h.validator.Var(sessionID, "omitempty,max=128,printascii"); err != nil {
			return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
		}
	} else {
		var req proctoring.ProcessFrameRequest
		if err := ctx.BodyParser(&req); err != nil {
			return errHandler.Handle(ctx, requestID, fmt.Errorf("%w: %v", proctoring.ErrBadRequest, err), ctx.Path(), "parse_request_body")
		}

		if err := h.validator.Struct(req); err != nil {
			return errHandler.Handle(ctx, requestID, fmt.Errorf("%w: %v", proctoring.ErrInvalidImage, err), ctx.Path(), "validate_request")
		}

		frame, err = h.utils.DecodeBase64Frame(req.Image)
		if err != nil {
			return errHandler.Handle(ctx, requestID, fmt.Errorf("%w: %v", proctoring.ErrInvalidImage, err), ctx.Path(), "decode_image")
		}
		sessionID = req.SessionID
	}

	result, err := h.proctoringService.ProcessFrame(c, sessionID, frame)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "process_frame")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"session_id": sessionID,
			"violations": result.Violations,
		}).Debug("Frame processed")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

func (h *ProctoringHandler) StartSession(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	principal, err := jwtPkg.GetPrincipal(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, err.Error())
	}

	var req proctoring.StartSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, fmt.Errorf("%w: %v", proctoring.ErrBadRequest, err), ctx.Path(), "parse_request_body")
	}

	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	summary, err := h.proctoringService.StartSession(c, req, principal.ID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "start_session")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"session_id": summary.SessionID,
			"exam_id":    summary.ExamID,
			"created_by": principal.ID,
		}).Info("Proctoring session started")
		return errHandler.HandleSuccess(ctx, fiber.StatusCreated, proctoring.SessionResponse{
			Data: summary,
		})
	}
}

func (h *ProctoringHandler) GetSession(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	summary, err := h.proctoringService.GetSession(c, ctx.Params("id"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_session")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, proctoring.SessionResponse{
			Data: summary,
		})
	}
}

func (h *ProctoringHandler) EndSession(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	summary, err := h.proctoringService.EndSession(c, ctx.Params("id"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "end_session")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id":       requestID,
			"session_id":       summary.SessionID,
			"total_violations": summary.TotalViolations,
			"end_exam":         summary.EndExam,
		}).Info("Proctoring session ended")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, proctoring.SessionResponse{
			Data: summary,
		})
	}
}
