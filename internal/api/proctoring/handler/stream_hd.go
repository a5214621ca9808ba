package proctoringHandler

import (
	"ProctorGolang/internal/api/proctoring"
	"ProctorGolang/internal/middleware"
	contextPkg "ProctorGolang/pkg/context"
	"ProctorGolang/pkg/log"
	"ProctorGolang/pkg/response"
	"bytes"
	"errors"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"sync"
	"time"
)

type StreamConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	EndTimeout      time.Duration
	MaxFrameBytes   int64
	ReadBufferSize  int
	WriteBufferSize int
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		EndTimeout:      10 * time.Second,
		MaxFrameBytes:   8 << 20,
		ReadBufferSize:  64 << 10,
		WriteBufferSize: 64 << 10,
	}
}

func (c StreamConfig) withDefaults() StreamConfig {
	d := DefaultStreamConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.EndTimeout <= 0 {
		c.EndTimeout = d.EndTimeout
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	return c
}

// streamWriter serializes writes from the processing goroutine and the
// reader's error replies.
type streamWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (w *streamWriter) writeJSON(v interface{}) error {
	data, err := jsoniter.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	return w.conn.SetWriteDeadline(time.Time{})
}

// handleStream runs one monitored session for the lifetime of the connection.
// A reader goroutine keeps only the newest unprocessed frame so a slow
// analyzer drops stale frames instead of queueing them.
func (h *ProctoringHandler) handleStream(c *websocket.Conn) {
	req, _ := c.Locals(startRequestLocal).(proctoring.StartSessionRequest)
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)

	ctx, cancel := context.WithCancel(contextPkg.WithRequestID(context.Background(), requestID))
	defer cancel()

	writer := &streamWriter{conn: c, timeout: h.stream.WriteTimeout}

	active, err := h.proctoringService.StartSession(ctx, req)
	if err != nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to start proctoring session")
		_ = writer.writeJSON(proctoring.ErrorMessage{Error: proctoring.ErrInternalServerError.Error()})
		return
	}

	logger := h.log.WithFields(log.Fields{
		"request_id":   requestID,
		"session_id":   active.ID,
		"interview_id": active.InterviewID,
	})
	logger.Info("Proctoring stream connected")

	c.SetReadLimit(h.stream.MaxFrameBytes)
	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			logger.Errorf("Error sending pong: %v", err)
		}
		return c.SetReadDeadline(time.Now().Add(h.stream.ReadTimeout))
	})

	frames := make(chan []byte, 1)
	processed := make(chan struct{})
	go func() {
		defer close(processed)
		h.processFrames(ctx, c, writer, active.ID, frames, logger)
	}()

	dropped := h.readFrames(c, frames, logger)
	close(frames)
	<-processed

	endCtx, endCancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), requestID), h.stream.EndTimeout)
	defer endCancel()

	summary, err := h.proctoringService.EndSession(endCtx, active.ID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Error("Failed to finalize proctoring session")
	}
	if summary != nil {
		logger.WithFields(logrus.Fields{
			"total_frames":     summary.TotalFrames,
			"dropped_frames":   dropped,
			"total_violations": summary.TotalViolations,
		}).Info("Proctoring stream closed")
	}
}

// readFrames pumps frames into the one-slot buffer until the connection
// fails. It returns how many frames were replaced before being processed.
func (h *ProctoringHandler) readFrames(c *websocket.Conn, frames chan []byte, logger *logrus.Entry) int {
	dropped := 0
	for {
		if err := c.SetReadDeadline(time.Now().Add(h.stream.ReadTimeout)); err != nil {
			logger.Errorf("Error setting read deadline: %v", err)
			return dropped
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Errorf("Proctoring WebSocket error: %v", err)
			} else {
				logger.Info("Proctoring WebSocket connection closed")
			}
			return dropped
		}

		var frame []byte
		switch messageType {
		case websocket.BinaryMessage:
			frame = message
		case websocket.TextMessage:
			frame, err = h.decodeTextFrame(message)
			if err != nil {
				// forwarded empty so the service counts it as a skipped frame
				frame = []byte{}
			}
		default:
			logger.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		select {
		case frames <- frame:
			continue
		default:
		}
		select {
		case <-frames:
			dropped++
		default:
		}
		frames <- frame
	}
}

func (h *ProctoringHandler) decodeTextFrame(message []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var msg proctoring.FrameMessage
		if err := jsoniter.Unmarshal(trimmed, &msg); err != nil {
			return nil, err
		}
		return h.utils.DecodeFramePayload(msg.Frame)
	}
	return h.utils.DecodeFramePayload(string(trimmed))
}

func (h *ProctoringHandler) processFrames(ctx context.Context, c *websocket.Conn, writer *streamWriter, sessionID string, frames <-chan []byte, logger *logrus.Entry) {
	for frame := range frames {
		result, err := h.proctoringService.ProcessFrame(ctx, sessionID, frame)
		if err != nil {
			if writeErr := writer.writeJSON(proctoring.ErrorMessage{SessionID: sessionID, Error: clientMessage(err)}); writeErr != nil {
				logger.Errorf("Error sending error response: %v", writeErr)
				_ = c.Close()
				drain(frames)
				return
			}
			continue
		}

		if err := writer.writeJSON(result); err != nil {
			logger.Errorf("Error writing JSON response: %v", err)
			_ = c.Close()
			drain(frames)
			return
		}
	}
}

func drain(frames <-chan []byte) {
	for range frames {
	}
}

func clientMessage(err error) string {
	var respErr *response.Error
	if errors.As(err, &respErr) {
		return respErr.Err.Error()
	}
	return proctoring.ErrInternalServerError.Error()
}

// handleViolationFeed relays violation events of one interview until the
// reviewer disconnects.
func (h *ProctoringHandler) handleViolationFeed(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	interviewID := c.Params("interview_id")

	ctx, cancel := context.WithCancel(contextPkg.WithRequestID(context.Background(), requestID))
	defer cancel()

	writer := &streamWriter{conn: c, timeout: h.stream.WriteTimeout}
	logger := h.log.WithFields(log.Fields{
		"request_id":   requestID,
		"interview_id": interviewID,
	})

	events, closeFeed, err := h.proctoringService.SubscribeViolations(ctx, interviewID)
	if err != nil {
		logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("Violation feed unavailable")
		_ = writer.writeJSON(proctoring.ErrorMessage{Error: clientMessage(err)})
		return
	}
	defer func() {
		if err := closeFeed(); err != nil {
			logger.Errorf("Error closing violation feed: %v", err)
		}
	}()
	logger.Info("Violation feed connected")
	defer logger.Info("Violation feed disconnected")

	// the reader only notices the close frame; reviewers send nothing else
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writer.writeJSON(event); err != nil {
				logger.Errorf("Error writing violation event: %v", err)
				return
			}
		}
	}
}
