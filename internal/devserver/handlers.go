package devserver

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/recoverapi"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/utils"
)

const aiSessionTitle = "AI Recovery Assistant"

// ChatHandler 聊天 REST 接口
type ChatHandler struct {
	store   Store
	dir     *Directory
	hub     *Hub
	ai      Responder
	uploads *Uploads
	logger  *logrus.Logger

	aiMu sync.Mutex
}

func NewChatHandler(store Store, dir *Directory, hub *Hub, ai Responder, uploads *Uploads, logger *logrus.Logger) *ChatHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ChatHandler{store: store, dir: dir, hub: hub, ai: ai, uploads: uploads, logger: logger}
}

// RegisterRoutes 注册路由；authed 已带鉴权中间件
func (h *ChatHandler) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.POST("/auth/login", h.Login)
	authed.GET("/auth/me", h.Me)

	chat := authed.Group("/chat")
	{
		chat.GET("/sessions", h.ListSessions)
		chat.POST("/sessions", h.RequestDoctorChat)
		chat.POST("/sessions/ai", h.GetAISession)
		chat.POST("/sessions/:id/accept", h.AcceptSession)
		chat.POST("/sessions/:id/close", h.CloseSession)
		chat.GET("/sessions/:id/messages", h.GetMessages)
		chat.POST("/sessions/:id/messages", h.SendMessage)
		chat.POST("/sessions/:id/voice-message", h.SendVoiceMessage)
		chat.POST("/sessions/:id/image-message", h.SendImageMessage)
		chat.POST("/ai/message", h.SendAIMessage)
	}
	authed.GET("/requests/my-doctors", h.MyDoctors)
}

func (h *ChatHandler) Login(c *gin.Context) {
	var req recoverapi.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failDetail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	token, user, ok := h.dir.Login(req.Email, req.Password)
	if !ok {
		fail(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	success(c, recoverapi.LoginResult{Token: token, User: user})
}

func (h *ChatHandler) Me(c *gin.Context) {
	success(c, currentUser(c))
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	user := currentUser(c)
	sessions, err := h.store.SessionsFor(c.Request.Context(), user.ID)
	if err != nil {
		h.internal(c, "list sessions", err)
		return
	}
	success(c, sessions)
}

// GetAISession returns the patient's AI session, creating it on first use.
func (h *ChatHandler) GetAISession(c *gin.Context) {
	user := currentUser(c)
	if user.Role != models.RolePatient {
		fail(c, http.StatusForbidden, "Only patients have an AI assistant")
		return
	}
	ctx := c.Request.Context()

	h.aiMu.Lock()
	defer h.aiMu.Unlock()

	sessions, err := h.store.SessionsFor(ctx, user.ID)
	if err != nil {
		h.internal(c, "list sessions", err)
		return
	}
	for _, s := range sessions {
		if s.IsAI() && s.PatientID == user.ID {
			success(c, s)
			return
		}
	}

	now := time.Now()
	session := models.ChatSession{
		ID:        utils.NewSessionID(),
		PatientID: user.ID,
		Status:    models.StatusActive,
		Title:     aiSessionTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateSession(ctx, session); err != nil {
		h.internal(c, "create ai session", err)
		return
	}
	h.logger.WithField("patient_id", user.ID).Info("AI session created")
	success(c, session)
}

func (h *ChatHandler) RequestDoctorChat(c *gin.Context) {
	user := currentUser(c)
	if user.Role != models.RolePatient {
		fail(c, http.StatusForbidden, "Only patients can request a chat")
		return
	}
	var req recoverapi.RequestDoctorChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DoctorID == "" {
		fail(c, http.StatusBadRequest, "doctor_id is required")
		return
	}
	doctor, found := h.dir.User(req.DoctorID)
	if !found || doctor.Role != models.RoleDoctor {
		fail(c, http.StatusNotFound, "Doctor not found")
		return
	}
	if !h.linked(user.ID, doctor.ID) {
		fail(c, http.StatusForbidden, "You are not linked to this doctor")
		return
	}

	ctx := c.Request.Context()
	sessions, err := h.store.SessionsFor(ctx, user.ID)
	if err != nil {
		h.internal(c, "list sessions", err)
		return
	}
	for _, s := range sessions {
		if s.DoctorIDOrEmpty() == doctor.ID && s.Status != models.StatusClosed {
			fail(c, http.StatusConflict, "A chat with this doctor already exists")
			return
		}
	}

	now := time.Now()
	doctorID := doctor.ID
	patientName := user.Name
	session := models.ChatSession{
		ID:          utils.NewSessionID(),
		PatientID:   user.ID,
		DoctorID:    &doctorID,
		Status:      models.StatusRequested,
		Title:       "Dr. " + doctor.Name,
		IsRequest:   true,
		PatientName: &patientName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.CreateSession(ctx, session); err != nil {
		h.internal(c, "create session", err)
		return
	}

	h.hub.Publish(DoctorRoom(doctor.ID), models.EventChatRequest, models.ChatRequestEvent{
		SessionID:   session.ID,
		PatientName: user.Name,
		Title:       session.Title,
	})
	created(c, session, "Chat request sent")
}

func (h *ChatHandler) AcceptSession(c *gin.Context) {
	user := currentUser(c)
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	if user.Role != models.RoleDoctor || session.DoctorIDOrEmpty() != user.ID {
		fail(c, http.StatusForbidden, "Only the requested doctor can accept this chat")
		return
	}
	if session.Status != models.StatusRequested {
		fail(c, http.StatusConflict, "Chat is not awaiting acceptance")
		return
	}
	updated, err := h.store.UpdateStatus(c.Request.Context(), session.ID, models.StatusActive)
	if err != nil {
		h.internal(c, "accept session", err)
		return
	}
	h.hub.Publish(PatientRoom(session.PatientID), models.EventChatRequestAccepted, models.ChatRequestAcceptedEvent{
		SessionID:  session.ID,
		DoctorName: user.Name,
	})
	success(c, updated)
}

func (h *ChatHandler) CloseSession(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	if session.IsAI() || session.Status != models.StatusActive {
		fail(c, http.StatusConflict, "Only active doctor chats can be closed")
		return
	}
	updated, err := h.store.UpdateStatus(c.Request.Context(), session.ID, models.StatusClosed)
	if err != nil {
		h.internal(c, "close session", err)
		return
	}
	success(c, updated)
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	session, ok := h.participantSession(c)
	if !ok {
		return
	}
	msgs, err := h.store.Messages(c.Request.Context(), session.ID)
	if err != nil {
		h.internal(c, "list messages", err)
		return
	}
	success(c, msgs)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	session, ok := h.sendableSession(c)
	if !ok {
		return
	}
	var req recoverapi.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || !utils.ValidateMessage(req.Content) {
		fail(c, http.StatusBadRequest, "Message content is empty or too long")
		return
	}
	msg := h.newMessage(c, session.ID, strings.TrimSpace(req.Content))
	msg.IsVoice = req.IsVoice
	h.deliver(c, msg)
}

func (h *ChatHandler) SendVoiceMessage(c *gin.Context) {
	session, ok := h.sendableSession(c)
	if !ok {
		return
	}
	saved, ok := h.receiveUpload(c, session.ID, KindAudio)
	if !ok {
		return
	}
	transcript, err := h.transcribe(c, saved)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Warn("Voice transcription failed")
	}
	msg := h.newMessage(c, session.ID, transcript)
	msg.IsVoice = true
	msg.AudioURL = &saved.URL
	h.deliver(c, msg)
}

func (h *ChatHandler) SendImageMessage(c *gin.Context) {
	session, ok := h.sendableSession(c)
	if !ok {
		return
	}
	saved, ok := h.receiveUpload(c, session.ID, KindPicture)
	if !ok {
		return
	}
	msg := h.newMessage(c, session.ID, "")
	msg.ImageURL = &saved.URL
	h.deliver(c, msg)
}

// SendAIMessage stores the patient's message, generates the reply and
// returns both.
func (h *ChatHandler) SendAIMessage(c *gin.Context) {
	user := currentUser(c)
	var req recoverapi.SendAIMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		fail(c, http.StatusBadRequest, "session_id is required")
		return
	}
	if !utils.ValidateMessage(req.Content) {
		fail(c, http.StatusBadRequest, "Message content is empty or too long")
		return
	}
	ctx := c.Request.Context()
	session, err := h.store.GetSession(ctx, req.SessionID)
	if errors.Is(err, ErrNotFound) {
		fail(c, http.StatusNotFound, "Chat session not found")
		return
	}
	if err != nil {
		h.internal(c, "get session", err)
		return
	}
	if !session.IsAI() || session.PatientID != user.ID {
		fail(c, http.StatusForbidden, "Not your AI session")
		return
	}

	history, err := h.store.Messages(ctx, session.ID)
	if err != nil {
		h.internal(c, "list messages", err)
		return
	}

	content := strings.TrimSpace(req.Content)
	userMsg := h.newMessage(c, session.ID, content)
	userMsg.IsVoice = req.IsVoice
	if err := h.store.AddMessage(ctx, userMsg); err != nil {
		h.internal(c, "store message", err)
		return
	}

	reply, err := h.ai.Reply(ctx, history, content)
	if err != nil {
		failDetail(c, http.StatusBadGateway, "AI assistant is unavailable", err)
		return
	}
	aiMsg := models.ChatMessage{
		ID:        utils.NewMessageID(),
		SessionID: session.ID,
		Content:   reply,
		IsAI:      true,
		CreatedAt: time.Now(),
	}
	if err := h.store.AddMessage(ctx, aiMsg); err != nil {
		h.internal(c, "store ai reply", err)
		return
	}

	h.hub.Publish(ChatRoom(session.ID), models.EventNewMessage, models.NewMessageEvent{SessionID: session.ID, Message: userMsg})
	h.hub.Publish(ChatRoom(session.ID), models.EventNewMessage, models.NewMessageEvent{SessionID: session.ID, Message: aiMsg})
	success(c, models.AIExchange{UserMessage: userMsg, AIReply: aiMsg})
}

func (h *ChatHandler) MyDoctors(c *gin.Context) {
	user := currentUser(c)
	if user.Role != models.RolePatient {
		fail(c, http.StatusForbidden, "Only patients have linked doctors")
		return
	}
	success(c, h.dir.LinksForPatient(user.ID))
}

func (h *ChatHandler) linked(patientID, doctorID string) bool {
	for _, l := range h.dir.LinksForPatient(patientID) {
		if l.DoctorID == doctorID {
			return true
		}
	}
	return false
}

// participantSession loads :id and checks the caller takes part in it.
func (h *ChatHandler) participantSession(c *gin.Context) (models.ChatSession, bool) {
	session, err := h.store.GetSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		fail(c, http.StatusNotFound, "Chat session not found")
		return models.ChatSession{}, false
	}
	if err != nil {
		h.internal(c, "get session", err)
		return models.ChatSession{}, false
	}
	if !session.HasParticipant(currentUser(c).ID) {
		fail(c, http.StatusForbidden, "You are not part of this chat")
		return models.ChatSession{}, false
	}
	return session, true
}

// sendableSession is participantSession restricted to active doctor chats.
func (h *ChatHandler) sendableSession(c *gin.Context) (models.ChatSession, bool) {
	session, ok := h.participantSession(c)
	if !ok {
		return session, false
	}
	if session.IsAI() {
		fail(c, http.StatusBadRequest, "Use the AI message endpoint for the AI assistant")
		return session, false
	}
	if session.Status != models.StatusActive {
		fail(c, http.StatusConflict, "Chat is not active")
		return session, false
	}
	return session, true
}

func (h *ChatHandler) newMessage(c *gin.Context, sessionID, content string) models.ChatMessage {
	user := currentUser(c)
	senderID := user.ID
	senderName := user.Name
	return models.ChatMessage{
		ID:         utils.NewMessageID(),
		SessionID:  sessionID,
		SenderID:   &senderID,
		SenderName: &senderName,
		Content:    content,
		CreatedAt:  time.Now(),
	}
}

// deliver stores msg, broadcasts it to the chat room and answers 201.
func (h *ChatHandler) deliver(c *gin.Context, msg models.ChatMessage) {
	if err := h.store.AddMessage(c.Request.Context(), msg); err != nil {
		h.internal(c, "store message", err)
		return
	}
	h.hub.Publish(ChatRoom(msg.SessionID), models.EventNewMessage, models.NewMessageEvent{SessionID: msg.SessionID, Message: msg})
	created(c, msg, "")
}

func (h *ChatHandler) receiveUpload(c *gin.Context, sessionID string, kind UploadKind) (SavedUpload, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "file is required")
		return SavedUpload{}, false
	}
	saved, err := h.uploads.Save(file, sessionID, kind)
	if err != nil {
		switch {
		case errors.Is(err, ErrUploadTooLarge):
			fail(c, http.StatusRequestEntityTooLarge, "File is too large")
		case errors.Is(err, ErrUploadType):
			fail(c, http.StatusBadRequest, "Unsupported file type")
		default:
			h.internal(c, "save upload", err)
		}
		return SavedUpload{}, false
	}
	return saved, true
}

func (h *ChatHandler) transcribe(c *gin.Context, saved SavedUpload) (string, error) {
	f, err := h.uploads.Open(saved)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.ai.Transcribe(c.Request.Context(), saved.Filename, f)
}

func (h *ChatHandler) internal(c *gin.Context, op string, err error) {
	h.logger.WithError(err).WithField("op", op).Error("Request failed")
	failDetail(c, http.StatusInternalServerError, "Internal server error", err)
}
