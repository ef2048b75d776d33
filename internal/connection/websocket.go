package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport opens gorilla websocket connections.
type WebSocketTransport struct {
	cfg    Config
	logger *slog.Logger
	header http.Header
}

// NewWebSocketTransport creates a websocket transport using the timeouts in cfg.
func NewWebSocketTransport(cfg Config, logger *slog.Logger) *WebSocketTransport {
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	header.Set("Accept", "application/json")

	return &WebSocketTransport{
		cfg:    cfg,
		logger: logger,
		header: header,
	}
}

// Open starts dialing target and returns immediately.
func (t *WebSocketTransport) Open(target string, l Listener) (Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		cfg:      t.cfg,
		logger:   t.logger,
		target:   target,
		listener: l,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run(ctx, t.header.Clone())
	return c, nil
}

// wsConn is one websocket connection.
type wsConn struct {
	cfg      Config
	logger   *slog.Logger
	target   string
	listener Listener
	cancel   context.CancelFunc

	done      chan struct{}
	terminate sync.Once
	stopOnce  sync.Once
	loops     sync.WaitGroup // heartbeat

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	conn       *websocket.Conn
	lastPongAt time.Time
	closed     bool
}

func (c *wsConn) run(ctx context.Context, header http.Header) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
	}
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}

	conn, _, err := dialer.DialContext(ctx, c.target, header)
	if err != nil {
		c.fail(err, CloseAbnormal, "dial failed")
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.lastPongAt = time.Now()
	c.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	c.logger.Debug("websocket connected", "host", c.cfg.Host)
	c.listener.OnOpen()

	if c.cfg.PingInterval > 0 {
		c.loops.Add(1)
		go c.heartbeatLoop(conn)
	}
	c.readLoop(conn)
}

// Send writes one text frame.
func (c *wsConn) Send(data []byte) error {
	c.mu.RLock()
	conn, closed := c.conn, c.closed
	c.mu.RUnlock()

	if closed {
		return ErrAlreadyClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears the connection down. Safe to call
// more than once and while the dial is still in flight.
func (c *wsConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.stop()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *wsConn) touch() {
	c.mu.Lock()
	c.lastPongAt = time.Now()
	c.mu.Unlock()
}

func (c *wsConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// stop cancels the dial and ends the heartbeat. Shared by Close and fail.
func (c *wsConn) stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
}

// fail reports the first terminal condition of the connection exactly once
// and releases the socket. Nothing is reported after Close.
func (c *wsConn) fail(err error, code int, reason string) {
	c.terminate.Do(func() {
		if c.isClosed() {
			return
		}
		if err != nil {
			c.listener.OnError(err)
		}
		c.listener.OnClose(code, reason)
	})

	c.stop()
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		conn.Close()
	}
}

// readLoop forwards frames to the listener until the connection ends.
func (c *wsConn) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.fail(nil, ce.Code, ce.Text)
			} else {
				c.fail(err, CloseAbnormal, err.Error())
			}
			return
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if c.isClosed() {
			return
		}
		c.listener.OnMessage(data)
	}
}

// heartbeatLoop pings the server and detects stale connections.
func (c *wsConn) heartbeatLoop(conn *websocket.Conn) {
	defer c.loops.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.RLock()
			lastPong := c.lastPongAt
			c.mu.RUnlock()

			if c.cfg.PongTimeout > 0 && time.Since(lastPong) > c.cfg.PongTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", c.cfg.PongTimeout,
				)
				c.fail(ErrStaleConnection, CloseAbnormal, "stale")
				return
			}
		}
	}
}
