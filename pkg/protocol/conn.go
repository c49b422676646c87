// ABOUTME: WebSocket connection to a Play game or lobby server
// ABOUTME: Correlates requests with responses and delivers notifications in order
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/play-go/internal/version"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// GameKeepAlive is the ping interval used for room connections
	GameKeepAlive = 5 * time.Second
	// LobbyKeepAlive is the ping interval used for lobby connections
	LobbyKeepAlive = 20 * time.Second

	writeWait = 5 * time.Second
)

// Config holds connection configuration
type Config struct {
	URL          string
	AppID        string
	UserID       string
	GameVersion  string
	SessionToken string

	// KeepAlive is the ping interval. Zero disables pings and read deadlines.
	KeepAlive time.Duration
	Dialer    *websocket.Dialer
	Logger    *zap.Logger
}

// Conn is a session on a Play server. Responses are routed to the waiting
// Request call; every other command goes to the notification handler, one at
// a time and in arrival order.
type Conn struct {
	config Config
	log    *zap.Logger

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	closing   bool

	nextID    atomic.Int32
	pendingMu sync.Mutex
	pending   map[int32]chan *Command

	handlerMu      sync.RWMutex
	onNotification func(*Command)
	onDisconnect   func()

	queueMu sync.Mutex
	queue   []*Command
	paused  bool
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewConn creates an unconnected Conn
func NewConn(config Config) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Conn{
		config:  config,
		log:     logger.With(zap.String("url", config.URL)),
		pending: make(map[int32]chan *Command),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect dials the server and opens the session
func (c *Conn) Connect(ctx context.Context) error {
	dialer := c.config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	c.log.Debug("connecting")
	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		c.cancel()
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if c.config.KeepAlive > 0 {
		c.extendDeadline(conn)
		conn.SetPongHandler(func(string) error {
			c.extendDeadline(conn)
			return nil
		})
		go c.keepAlive(conn)
	}

	go c.readMessages(conn)
	go c.dispatchLoop()

	if err := c.openSession(ctx); err != nil {
		c.Close()
		return fmt.Errorf("session open failed: %w", err)
	}

	c.log.Debug("session opened")
	return nil
}

func (c *Conn) openSession(ctx context.Context) error {
	_, err := c.Request(ctx, CmdSession, OpOpen, &Request{
		SessionOpen: &SessionOpenRequest{
			AppID:           c.config.AppID,
			PeerID:          c.config.UserID,
			GameVersion:     c.config.GameVersion,
			SessionToken:    c.config.SessionToken,
			ProtocolVersion: version.ProtocolVersion,
			SDKVersion:      version.SDKVersion(),
		},
	})
	return err
}

// OnNotification sets the handler for every non-response command.
func (c *Conn) OnNotification(fn func(*Command)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onNotification = fn
}

// OnDisconnect sets the handler invoked when the server side goes away.
// It is not invoked after Close.
func (c *Conn) OnDisconnect(fn func()) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onDisconnect = fn
}

// Request sends req and waits for the response with the same id.
// A response carrying errorInfo is returned as *Error.
func (c *Conn) Request(ctx context.Context, cmd CommandType, op OpType, req *Request) (*Response, error) {
	if req == nil {
		req = &Request{}
	}
	req.I = c.nextID.Add(1)

	ch := make(chan *Command, 1)
	c.pendingMu.Lock()
	c.pending[req.I] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.I)
		c.pendingMu.Unlock()
	}()

	if err := c.write(&Command{Cmd: cmd, Op: op, Body: &Body{Request: req}}); err != nil {
		return nil, err
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		resp := res.Body.Response
		if resp.ErrorInfo != nil {
			return nil, &Error{Code: int(resp.ErrorInfo.ReasonCode), Detail: resp.ErrorInfo.Detail}
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send writes a command without waiting for an answer
func (c *Conn) Send(cmd CommandType, op OpType, body *Body) error {
	return c.write(&Command{Cmd: cmd, Op: op, Body: body})
}

// Pause holds back notifications until Resume. Responses are still delivered.
func (c *Conn) Pause() {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	c.paused = true
}

// Resume delivers held notifications in arrival order
func (c *Conn) Resume() {
	c.queueMu.Lock()
	c.paused = false
	c.queueMu.Unlock()
	c.signal()
}

// Close shuts the connection down without firing the disconnect handler
func (c *Conn) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		c.cancel()
		return nil
	}
	c.connected = false
	c.closing = true
	conn := c.conn
	c.mu.Unlock()

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))

	c.cancel()
	err := conn.Close()
	c.failPending()
	c.log.Debug("connection closed")
	return err
}

// Disconnect drops the socket as if the network failed. The disconnect handler fires.
func (c *Conn) Disconnect() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// IsConnected returns connection status
func (c *Conn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Conn) write(cmd *Command) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// readMessages reads and routes incoming messages until the socket fails
func (c *Conn) readMessages(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if c.config.KeepAlive > 0 {
			c.extendDeadline(conn)
		}
		c.handleMessage(data)
	}
}

func (c *Conn) handleReadError(err error) {
	c.mu.Lock()
	local := c.closing
	c.connected = false
	c.mu.Unlock()

	c.failPending()

	if local {
		return
	}

	c.log.Warn("connection lost", zap.Error(err))
	c.handlerMu.RLock()
	fn := c.onDisconnect
	c.handlerMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Conn) handleMessage(data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.log.Warn("failed to parse command", zap.Error(err))
		return
	}

	if cmd.Body != nil && cmd.Body.Response != nil {
		c.resolve(&cmd)
		return
	}

	switch cmd.Cmd {
	case CmdEcho:
		return
	case CmdConn:
		if cmd.Op == OpClosed {
			c.log.Info("server closed the session")
		}
		return
	}

	c.queueMu.Lock()
	c.queue = append(c.queue, &cmd)
	c.queueMu.Unlock()
	c.signal()
}

func (c *Conn) resolve(cmd *Command) {
	id := cmd.Body.Response.I

	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()

	if !ok {
		c.log.Debug("response without pending request", zap.Int32("i", id))
		return
	}
	ch <- cmd
}

func (c *Conn) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Conn) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop delivers queued notifications on a single goroutine
func (c *Conn) dispatchLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}

		for {
			cmd := c.nextQueued()
			if cmd == nil {
				break
			}

			c.handlerMu.RLock()
			fn := c.onNotification
			c.handlerMu.RUnlock()

			if fn == nil {
				c.log.Debug("dropping notification without handler",
					zap.String("cmd", string(cmd.Cmd)), zap.String("op", string(cmd.Op)))
				continue
			}
			fn(cmd)
		}
	}
}

func (c *Conn) nextQueued() *Command {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if c.paused || len(c.queue) == 0 {
		return nil
	}
	cmd := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return cmd
}

func (c *Conn) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Conn) extendDeadline(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(3 * c.config.KeepAlive))
}
