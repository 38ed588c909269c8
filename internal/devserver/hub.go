package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/metrics"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// 房间命名
func DoctorRoom(id string) string  { return "doctor:" + id }
func PatientRoom(id string) string { return "patient:" + id }
func ChatRoom(id string) string    { return "chat:" + id }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 开发后端，不校验来源
	},
}

type hubClient struct {
	id    string
	user  models.SafeUser
	conn  *websocket.Conn
	send  chan realtime.Message
	hub   *Hub
	rooms map[string]struct{}
}

type outbound struct {
	room    string
	exclude string
	msg     realtime.Message
}

// Hub 维护连接与房间，按房间广播事件
type Hub struct {
	clients    map[string]*hubClient
	rooms      map[string]map[string]*hubClient
	broadcast  chan outbound
	register   chan *hubClient
	unregister chan *hubClient
	done       chan struct{}
	mutex      sync.RWMutex

	dir    *Directory
	store  Store
	logger *logrus.Logger
}

func NewHub(dir *Directory, store Store, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[string]*hubClient),
		rooms:      make(map[string]map[string]*hubClient),
		broadcast:  make(chan outbound, sendBuffer),
		register:   make(chan *hubClient),
		unregister: make(chan *hubClient),
		done:       make(chan struct{}),
		dir:        dir,
		store:      store,
		logger:     logger,
	}
}

// Run 事件循环，ctx 结束时断开所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for _, c := range h.clients {
				h.dropLocked(c)
			}
			h.mutex.Unlock()
			metrics.SetHubClients(0)
			return

		case c := <-h.register:
			h.mutex.Lock()
			h.clients[c.id] = c
			n := len(h.clients)
			h.mutex.Unlock()
			metrics.SetHubClients(n)
			h.logger.WithFields(logrus.Fields{"client_id": c.id, "user_id": c.user.ID}).Info("Realtime client connected")

		case c := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[c.id]; ok {
				h.dropLocked(c)
				h.logger.WithFields(logrus.Fields{"client_id": c.id, "user_id": c.user.ID}).Info("Realtime client disconnected")
			}
			n := len(h.clients)
			h.mutex.Unlock()
			metrics.SetHubClients(n)

		case out := <-h.broadcast:
			h.mutex.Lock()
			for id, c := range h.rooms[out.room] {
				if id == out.exclude {
					continue
				}
				select {
				case c.send <- out.msg:
				default:
					h.logger.WithField("client_id", id).Warn("Realtime client too slow, dropping")
					h.dropLocked(c)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// dropLocked removes c from every room and closes its send queue.
func (h *Hub) dropLocked(c *hubClient) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
}

func (h *Hub) leaveLocked(c *hubClient, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) join(c *hubClient, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*hubClient)
	}
	h.rooms[room][c.id] = c
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *hubClient, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) inRoom(c *hubClient, room string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Publish 向房间广播事件
func (h *Hub) Publish(room, eventType string, payload interface{}) {
	h.publish(room, "", eventType, payload)
}

func (h *Hub) publish(room, exclude, eventType string, payload interface{}) {
	msg, err := realtime.NewMessage(eventType, payload)
	if err != nil {
		h.logger.WithError(err).WithField("type", eventType).Error("Failed to encode realtime event")
		return
	}
	select {
	case h.broadcast <- outbound{room: room, exclude: exclude, msg: msg}:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RoomSize 房间内连接数
func (h *Hub) RoomSize(room string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[room])
}

// HandleWebSocket 升级连接；令牌取自 Authorization 头或 token 参数
func (h *Hub) HandleWebSocket(c *gin.Context) {
	user, ok := h.dir.ByToken(bearerToken(c.Request))
	if !ok {
		fail(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	client := &hubClient{
		id:    uuid.NewString(),
		user:  user,
		conn:  conn,
		send:  make(chan realtime.Message, sendBuffer),
		hub:   h,
		rooms: make(map[string]struct{}),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *hubClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		var msg realtime.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.logger.WithError(err).Warn("Invalid message format")
			continue
		}

		switch msg.Type {
		case models.EventJoinDoctorRoom:
			c.handleJoinDoctor(msg)
		case models.EventJoinPatientRoom:
			c.handleJoinPatient(msg)
		case models.EventJoinChatRoom:
			c.handleJoinChat(msg)
		case models.EventLeaveChatRoom:
			c.handleLeaveChat(msg)
		case models.EventTyping:
			c.handleTyping(msg)
		default:
			c.hub.logger.WithField("type", msg.Type).Debug("Unknown realtime message type")
		}
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.logger.WithError(err).Warn("WriteJSON error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *hubClient) handleJoinDoctor(msg realtime.Message) {
	var p models.DoctorRoomPayload
	if err := msg.Decode(&p); err != nil || c.user.Role != models.RoleDoctor || p.DoctorID != c.user.ID {
		c.hub.logger.WithField("user_id", c.user.ID).Warn("Rejected doctor room join")
		return
	}
	c.hub.join(c, DoctorRoom(p.DoctorID))
}

func (c *hubClient) handleJoinPatient(msg realtime.Message) {
	var p models.PatientRoomPayload
	if err := msg.Decode(&p); err != nil || c.user.Role != models.RolePatient || p.PatientID != c.user.ID {
		c.hub.logger.WithField("user_id", c.user.ID).Warn("Rejected patient room join")
		return
	}
	c.hub.join(c, PatientRoom(p.PatientID))
}

func (c *hubClient) handleJoinChat(msg realtime.Message) {
	var p models.ChatRoomPayload
	if err := msg.Decode(&p); err != nil || p.SessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := c.hub.store.GetSession(ctx, p.SessionID)
	if err != nil || !session.HasParticipant(c.user.ID) {
		c.hub.logger.WithFields(logrus.Fields{"user_id": c.user.ID, "session_id": p.SessionID}).Warn("Rejected chat room join")
		return
	}
	c.hub.join(c, ChatRoom(p.SessionID))
}

func (c *hubClient) handleLeaveChat(msg realtime.Message) {
	var p models.ChatRoomPayload
	if err := msg.Decode(&p); err != nil || p.SessionID == "" {
		return
	}
	c.hub.leave(c, ChatRoom(p.SessionID))
}

// handleTyping relays to the chat room, excluding the sender.
func (c *hubClient) handleTyping(msg realtime.Message) {
	var p models.TypingEvent
	if err := msg.Decode(&p); err != nil || p.SessionID == "" {
		return
	}
	room := ChatRoom(p.SessionID)
	if !c.hub.inRoom(c, room) {
		return
	}
	if p.UserName == "" {
		p.UserName = c.user.Name
	}
	c.hub.publish(room, c.id, models.EventTyping, p)
}
