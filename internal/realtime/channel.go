package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/metrics"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

var (
	ErrClosed         = errors.New("realtime: channel closed")
	ErrNotConnected   = errors.New("realtime: not connected")
	ErrSendBufferFull = errors.New("realtime: send buffer full")
)

const maxMessageSize = 64 * 1024

// Config 实时通道配置
type Config struct {
	URL          string
	Token        string
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
	CloseTimeout time.Duration
	SendBuffer   int
}

func (c *Config) applyDefaults() {
	if c.MinBackoff <= 0 {
		c.MinBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 54 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 2 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
}

// Identity 决定连接后加入的角色房间
type Identity struct {
	UserID string
	Role   models.Role
}

// Handler receives one inbound event. Handlers run on the read goroutine and
// must not call Close.
type Handler func(Message)

type subscription struct {
	id uint64
	fn Handler
}

// Channel is the single realtime connection of one authenticated identity.
// It multiplexes every joined chat room and re-announces room membership on
// each (re)connect.
type Channel struct {
	cfg      Config
	identity Identity
	logger   *logrus.Logger
	dialer   *websocket.Dialer

	mu        sync.Mutex
	handlers  map[string][]subscription
	nextSubID uint64
	rooms     map[string]struct{}
	send      chan Message
	connects  int
	started   bool
	closed    bool
	cancel    context.CancelFunc

	wg sync.WaitGroup
}

// NewChannel 创建实时通道，调用 Start 后才会建立连接
func NewChannel(cfg Config, identity Identity, logger *logrus.Logger) *Channel {
	cfg.applyDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Channel{
		cfg:      cfg,
		identity: identity,
		logger:   logger,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		handlers: make(map[string][]subscription),
		rooms:    make(map[string]struct{}),
	}
}

// Start launches the connect loop. It returns immediately; connection
// failures are retried with exponential backoff until ctx ends or Close.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Close unsubscribes every handler, leaves every joined chat room, closes the
// connection and waits for the pumps to exit. No handler runs after Close
// returns.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = make(map[string][]subscription)
	if c.send != nil {
		for room := range c.rooms {
			if msg, err := NewMessage(models.EventLeaveChatRoom, models.ChatRoomPayload{SessionID: room}); err == nil {
				c.enqueueLocked(msg)
			}
		}
		close(c.send)
		c.send = nil
	}
	c.rooms = make(map[string]struct{})
	cancel := c.cancel
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.cfg.CloseTimeout):
		c.logger.Warn("Realtime channel close timed out, forcing shutdown")
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// On subscribes h to eventType and returns the unsubscribe function.
func (c *Channel) On(eventType string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	c.nextSubID++
	id := c.nextSubID
	c.handlers[eventType] = append(c.handlers[eventType], subscription{id: id, fn: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			subs := c.handlers[eventType]
			for i, s := range subs {
				if s.id == id {
					c.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(c.handlers[eventType]) == 0 {
				delete(c.handlers, eventType)
			}
		})
	}
}

// Emit sends an event on the current connection.
func (c *Channel) Emit(eventType string, payload interface{}) error {
	msg, err := NewMessage(eventType, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.send == nil {
		return ErrNotConnected
	}
	if !c.enqueueLocked(msg) {
		return ErrSendBufferFull
	}
	return nil
}

// JoinChatRoom records membership and announces it when connected. While
// disconnected the join is deferred to the next connect.
func (c *Channel) JoinChatRoom(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.rooms[sessionID] = struct{}{}
	if c.send != nil {
		msg, err := NewMessage(models.EventJoinChatRoom, models.ChatRoomPayload{SessionID: sessionID})
		if err != nil {
			return err
		}
		c.enqueueLocked(msg)
	}
	return nil
}

func (c *Channel) LeaveChatRoom(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.rooms[sessionID]; !ok {
		return nil
	}
	delete(c.rooms, sessionID)
	if c.send != nil {
		msg, err := NewMessage(models.EventLeaveChatRoom, models.ChatRoomPayload{SessionID: sessionID})
		if err != nil {
			return err
		}
		c.enqueueLocked(msg)
	}
	return nil
}

// Rooms 当前加入的聊天房间
func (c *Channel) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send != nil
}

func (c *Channel) enqueueLocked(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.WithField("type", msg.Type).Warn("Realtime send buffer full, dropping event")
		return false
	}
}

func (c *Channel) run(ctx context.Context) {
	defer c.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.MinBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.MaxElapsedTime = 0

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil || c.isClosed() {
				return
			}
			wait := bo.NextBackOff()
			c.logger.WithError(err).WithField("retry_in", wait).Warn("Realtime connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		c.serve(ctx, conn)
		if ctx.Err() != nil || c.isClosed() {
			return
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	return conn, nil
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// serve owns one live connection until it drops.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	send := make(chan Message, c.cfg.SendBuffer)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.send = send
	c.connects++
	reconnect := c.connects > 1
	c.announceLocked()
	c.mu.Unlock()

	metrics.SetRealtimeConnected(true)
	if reconnect {
		metrics.RealtimeReconnected()
	}
	c.logger.WithFields(logrus.Fields{
		"user_id":   c.identity.UserID,
		"role":      c.identity.Role,
		"reconnect": reconnect,
	}).Info("Realtime channel connected")

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writePump(conn, send)
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-writeDone:
		}
	}()

	c.dispatch(Message{Type: models.EventConnect, Timestamp: time.Now()})
	c.readPump(conn)

	c.mu.Lock()
	if c.send == send {
		close(send)
		c.send = nil
	}
	c.mu.Unlock()
	<-writeDone

	metrics.SetRealtimeConnected(false)
	c.dispatch(Message{Type: models.EventDisconnect, Timestamp: time.Now()})
	c.logger.WithField("user_id", c.identity.UserID).Info("Realtime channel disconnected")
}

// announceLocked queues the role room join followed by every chat room.
func (c *Channel) announceLocked() {
	var (
		msg Message
		err error
	)
	switch c.identity.Role {
	case models.RoleDoctor:
		msg, err = NewMessage(models.EventJoinDoctorRoom, models.DoctorRoomPayload{DoctorID: c.identity.UserID})
	default:
		msg, err = NewMessage(models.EventJoinPatientRoom, models.PatientRoomPayload{PatientID: c.identity.UserID})
	}
	if err == nil {
		c.enqueueLocked(msg)
	}
	for room := range c.rooms {
		if msg, err := NewMessage(models.EventJoinChatRoom, models.ChatRoomPayload{SessionID: room}); err == nil {
			c.enqueueLocked(msg)
		}
	}
}

func (c *Channel) readPump(conn *websocket.Conn) {
	pongWait := c.cfg.PingInterval * 10 / 9
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("Realtime read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.WithError(err).Warn("Invalid realtime message format")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Channel) writePump(conn *websocket.Conn, send <-chan Message) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				c.logger.WithError(err).Warn("Realtime write error")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Channel) dispatch(msg Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	subs := make([]Handler, 0, len(c.handlers[msg.Type]))
	for _, s := range c.handlers[msg.Type] {
		subs = append(subs, s.fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
}
