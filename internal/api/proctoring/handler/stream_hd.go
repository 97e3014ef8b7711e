package proctoringHandler

import (
	"ProctorGolang/internal/api/proctoring"
	contextPkg "ProctorGolang/pkg/context"
	"ProctorGolang/pkg/log"
	"ProctorGolang/pkg/response"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
)

const streamRequestIDKey = "stream_request_id"

// handleStream evaluates every frame received on the socket against one session. A session the
// stream created ends when the socket closes; one started through the sessions API is left
// running and must be ended there.
func (h *ProctoringHandler) handleStream(c *websocket.Conn) {
	requestID, _ := c.Locals(streamRequestIDKey).(string)
	ctx := contextPkg.WithRequestID(context.Background(), requestID)

	sessionID, owned, err := h.proctoringService.OpenStream(ctx, c.Query("session_id"))
	if err != nil {
		log.WithRequestID(ctx).WithField("error", err.Error()).Error("Failed to open proctoring stream")
		_ = c.WriteJSON(streamError(err))
		return
	}

	logger := log.WithSession(ctx, sessionID)
	logger.Info("Proctoring stream connected")

	defer func() {
		if owned {
			endCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			if _, err := h.proctoringService.EndSession(endCtx, sessionID); err != nil {
				logger.WithField("error", err.Error()).Warn("Failed to end session after stream closed")
			}
		}
		logger.WithField("session_ended", owned).Info("Proctoring stream disconnected")
	}()

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			logger.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	if err := h.writeStream(c, proctoring.StreamOpened{SessionID: sessionID}); err != nil {
		logger.Errorf("Error writing stream greeting: %v", err)
		return
	}

	for {
		if err := c.SetReadDeadline(time.Now().Add(streamIdle)); err != nil {
			logger.Errorf("Error setting read deadline: %v", err)
			return
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("Proctoring stream error: %v", err)
			}
			return
		}

		var frame []byte
		switch messageType {
		case websocket.BinaryMessage:
			frame = message
		case websocket.TextMessage:
			frame, err = h.utils.DecodeBase64Frame(string(message))
			if err != nil {
				if writeErr := h.writeStream(c, streamError(fmt.Errorf("%w: %v", proctoring.ErrInvalidImage, err))); writeErr != nil {
					return
				}
				continue
			}
		default:
			logger.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		frameCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		result, err := h.proctoringService.ProcessFrame(frameCtx, sessionID, frame)
		cancel()

		var reply interface{} = result
		if err != nil {
			logger.WithField("error", err.Error()).Debug("Frame rejected on stream")
			reply = streamError(err)
		}

		if err := h.writeStream(c, reply); err != nil {
			logger.Errorf("Error writing stream reply: %v", err)
			return
		}
	}
}

func (h *ProctoringHandler) writeStream(c *websocket.Conn, v interface{}) error {
	if err := c.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	if err := c.WriteJSON(v); err != nil {
		return err
	}
	return c.SetWriteDeadline(time.Time{})
}

func streamError(err error) proctoring.StreamError {
	var respErr *response.Error
	if errors.As(err, &respErr) {
		if respErr.Code >= 500 {
			return proctoring.StreamError{Error: respErr.Err.Error(), Code: respErr.Slug}
		}
		return proctoring.StreamError{Error: err.Error(), Code: respErr.Slug}
	}
	return proctoring.StreamError{Error: "An unexpected error occurred", Code: "INTERNAL_SERVER_ERROR"}
}
