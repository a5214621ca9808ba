package websocketPkg

import (
	"ProctorGolang/pkg/proctor"
	"context"
	"errors"
	"fmt"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"net/http"
	"sync"
	"time"
)

var ErrNotConnected = errors.New("not connected to proctoring service")

// FrameReply is one server message: either an analyzed frame or an error for a
// frame that was skipped.
type FrameReply struct {
	SessionID string               `json:"session_id,omitempty"`
	Frame     string               `json:"frame,omitempty"`
	Metrics   proctor.FrameMetrics `json:"metrics"`
	Error     string               `json:"error,omitempty"`
}

type IWebsocket interface {
	SendFrame(ctx context.Context, frame []byte) (*FrameReply, error)
	IsConnected() bool
	Close() error
}

type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Header       http.Header
}

func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

type webSocketClient struct {
	conn *websocket.Conn
	log  *logrus.Logger
	opts Options

	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

// Dial opens a proctoring stream. Frames are sent one at a time and each call
// waits for its reply, which keeps the server's latest-frame buffer from
// dropping any of them.
func Dial(ctx context.Context, url string, log *logrus.Logger, opts Options) (IWebsocket, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	log.Infof("Connecting to proctoring stream at %s", url)

	conn, _, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &webSocketClient{
		conn: conn,
		log:  log,
		opts: opts,
		done: make(chan struct{}),
	}

	conn.SetPingHandler(func(appData string) error {
		if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteTimeout)); err != nil {
			c.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	if opts.PingInterval > 0 {
		go c.keepAlive()
	}

	return c, nil
}

func (c *webSocketClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *webSocketClient) SendFrame(ctx context.Context, frame []byte) (*FrameReply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("error sending frame: %w", err)
	}

	deadline = time.Now().Add(c.opts.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	_, message, err := c.conn.ReadMessage()
	if err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("error reading reply: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})
	c.conn.SetWriteDeadline(time.Time{})

	var reply FrameReply
	if err := jsoniter.Unmarshal(message, &reply); err != nil {
		return nil, fmt.Errorf("error unmarshaling reply: %w", err)
	}

	return &reply, nil
}

func (c *webSocketClient) Close() error {
	c.once.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteTimeout),
	)
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *webSocketClient) keepAlive() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.conn == nil {
			c.mu.Unlock()
			return
		}

		err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.opts.WriteTimeout))
		if err != nil {
			c.log.Errorf("Ping failed, marking connection as dead: %v", err)
			c.dropLocked()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

func (c *webSocketClient) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
