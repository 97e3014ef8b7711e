package websocketPkg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Kind names one perception service.
type Kind string

const (
	ObjectDetection    Kind = "OBJECT"
	FaceDetection      Kind = "FACE"
	GazeEstimation     Kind = "GAZE"
	HeadPoseEstimation Kind = "HEAD_POSE"
)

var Kinds = []Kind{ObjectDetection, FaceDetection, GazeEstimation, HeadPoseEstimation}

var ErrDisabled = errors.New("perception service disabled")

type IWebsocket interface {
	ObjectDetector
	FaceDetector
	GazeEstimator
	HeadPoseEstimator
	Enabled(kind Kind) bool
	IsConnected(kind Kind) bool
	Reconnect(kind Kind) error
	CloseConnections()
}

// Endpoints holds one websocket URL per perception service. An empty URL disables the service.
type Endpoints map[Kind]string

// EndpointsFromEnv reads the AI_* variables. Head pose has no default and stays disabled
// unless configured.
func EndpointsFromEnv() Endpoints {
	return Endpoints{
		ObjectDetection:    getWebSocketURL("AI_OBJECT_DETECTION_URL", "ws://localhost:8000/api/v1/objects/ws"),
		FaceDetection:      getWebSocketURL("AI_FACE_DETECTION_URL", "ws://localhost:8000/api/v1/face/ws"),
		GazeEstimation:     getWebSocketURL("AI_GAZE_ESTIMATION_URL", "ws://localhost:8000/api/v1/gaze/ws"),
		HeadPoseEstimation: getWebSocketURL("AI_HEAD_POSE_URL", ""),
	}
}

func getWebSocketURL(key, fallback string) string {
	if url := os.Getenv(key); url != "" {
		return url
	}
	return fallback
}

type serviceConn struct {
	kind Kind
	url  string

	// mu is held for a whole request/response exchange so replies can never be paired with
	// another caller's frame.
	mu   sync.Mutex
	conn *websocket.Conn
}

type webSocketClient struct {
	conns        map[Kind]*serviceConn
	log          *logrus.Logger
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

type Option func(*webSocketClient)

func WithTimeouts(read, write time.Duration) Option {
	return func(c *webSocketClient) {
		c.readTimeout = read
		c.writeTimeout = write
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *webSocketClient) {
		c.pingInterval = d
	}
}

func NewAIWebSocketClient(endpoints Endpoints, log *logrus.Logger, opts ...Option) IWebsocket {
	client := &webSocketClient{
		conns:        make(map[Kind]*serviceConn, len(Kinds)),
		log:          log,
		pingInterval: 30 * time.Second,
		readTimeout:  10 * time.Second,
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}

	for _, kind := range Kinds {
		url := endpoints[kind]
		if url == "" {
			log.WithField("service", kind.Name()).Warn("Perception service disabled, no URL configured")
			continue
		}
		client.conns[kind] = &serviceConn{kind: kind, url: url}
	}

	for kind := range client.conns {
		go client.connectInBackground(kind)
	}

	return client
}

func (k Kind) Name() string {
	switch k {
	case ObjectDetection:
		return "Object Detection"
	case FaceDetection:
		return "Face Detection"
	case GazeEstimation:
		return "Gaze Estimation"
	case HeadPoseEstimation:
		return "Head Pose Estimation"
	default:
		return "Unknown Service"
	}
}

func (c *webSocketClient) connectInBackground(kind Kind) {
	if err := c.Reconnect(kind); err != nil {
		c.log.Warnf("Initial connection to %s failed: %v. Will retry on demand.", kind.Name(), err)
		return
	}
	c.log.Infof("Successfully connected to %s service", kind.Name())
}

func (c *webSocketClient) Enabled(kind Kind) bool {
	return c.conns[kind] != nil
}

func (c *webSocketClient) IsConnected(kind Kind) bool {
	sc := c.conns[kind]
	if sc == nil {
		return false
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn != nil
}

func (c *webSocketClient) Reconnect(kind Kind) error {
	sc := c.conns[kind]
	if sc == nil {
		return fmt.Errorf("%s: %w", kind.Name(), ErrDisabled)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	c.dropLocked(sc)
	return c.dialLocked(context.Background(), sc)
}

func (c *webSocketClient) CloseConnections() {
	for _, sc := range c.conns {
		sc.mu.Lock()
		c.dropLocked(sc)
		sc.mu.Unlock()
	}
}

func (c *webSocketClient) dialLocked(ctx context.Context, sc *serviceConn) error {
	c.log.Debugf("Connecting to %s at %s", sc.kind.Name(), sc.url)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, sc.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", sc.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Warnf("Error sending pong to %s: %v", sc.kind.Name(), err)
		}
		return nil
	})

	sc.conn = conn
	go c.keepAlive(sc, conn)

	return nil
}

func (c *webSocketClient) dropLocked(sc *serviceConn) {
	if sc.conn != nil {
		sc.conn.Close()
		sc.conn = nil
	}
}

// keepAlive pings an idle connection until it is replaced or dies. A busy connection is skipped;
// the in-flight exchange proves it alive.
func (c *webSocketClient) keepAlive(sc *serviceConn, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if !sc.mu.TryLock() {
			continue
		}
		if sc.conn != conn {
			sc.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Warnf("Ping failed for %s, marking connection as dead: %v", sc.kind.Name(), err)
			c.dropLocked(sc)
			sc.mu.Unlock()
			return
		}
		sc.mu.Unlock()
	}
}

// roundTrip sends one binary frame and waits for the service's single JSON reply.
func (c *webSocketClient) roundTrip(ctx context.Context, kind Kind, frame []byte) ([]byte, error) {
	sc := c.conns[kind]
	if sc == nil {
		return nil, fmt.Errorf("%s: %w", kind.Name(), ErrDisabled)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.conn == nil {
		if err := c.dialLocked(ctx, sc); err != nil {
			return nil, fmt.Errorf("cannot connect to %s service: %w", kind.Name(), err)
		}
	}
	conn := sc.conn

	// Unblock the read as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	conn.SetWriteDeadline(c.deadline(ctx, c.writeTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.dropLocked(sc)
		return nil, fmt.Errorf("error sending frame to %s: %w", kind.Name(), err)
	}

	conn.SetReadDeadline(c.deadline(ctx, c.readTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.dropLocked(sc)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", kind.Name(), ctxErr)
		}
		return nil, fmt.Errorf("error reading %s reply: %w", kind.Name(), err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	return message, nil
}

func (c *webSocketClient) deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}
