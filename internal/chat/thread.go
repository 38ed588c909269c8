package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/metrics"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/realtime"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/recoverapi"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/utils"
)

// Thread is the controller of the currently viewed session: compose, send,
// and the accept/close transitions.
type Thread struct {
	c         *Client
	sessionID string
	isAI      bool
	logger    *logrus.Entry

	mu           sync.Mutex
	draft        string
	dictating    bool
	pending      map[models.MessageKind]bool
	aiPending    bool
	closed       bool
	composing    bool
	composeGen   uint64
	composeTimer *time.Timer
	unsubs       []func()
	limiter      *rate.Limiter
}

func newThread(c *Client, session models.ChatSession) *Thread {
	return &Thread{
		c:         c,
		sessionID: session.ID,
		isAI:      session.IsAI(),
		logger:    c.logger.WithField("session_id", session.ID),
		pending:   make(map[models.MessageKind]bool),
		limiter:   rate.NewLimiter(rate.Every(c.opts.TypingThrottle), 1),
	}
}

// open joins the session room, subscribes to typing, clears unread and
// primes history. A history failure is reported but leaves the thread open.
func (t *Thread) open(ctx context.Context) {
	if !t.isAI {
		if err := t.c.rt.JoinChatRoom(t.sessionID); err != nil {
			t.logger.WithError(err).Warn("Failed to join chat room")
		}
		unsub := t.c.rt.On(models.EventTyping, t.onTyping)
		t.mu.Lock()
		t.unsubs = append(t.unsubs, unsub)
		t.mu.Unlock()
	}
	t.c.reconciler.SetActive(t.sessionID)
	t.c.sessions.MarkRead(t.sessionID)

	if _, err := t.c.messages.Messages(ctx, t.sessionID); err != nil {
		t.c.notifyErr("Could not load messages", t.sessionID, err)
	}
}

// close leaves the room and drops subscriptions. In-flight sends are not
// cancelled and still land in this session's cache.
func (t *Thread) close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	unsubs := t.unsubs
	t.unsubs = nil
	if t.composeTimer != nil {
		t.composeTimer.Stop()
	}
	t.composing = false
	t.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if !t.isAI {
		if err := t.c.rt.LeaveChatRoom(t.sessionID); err != nil && !errors.Is(err, realtime.ErrClosed) {
			t.logger.WithError(err).Warn("Failed to leave chat room")
		}
	}
	t.c.typing.Clear(t.sessionID)
	if t.c.reconciler.Active() == t.sessionID {
		t.c.reconciler.SetActive("")
	}
}

func (t *Thread) onTyping(m realtime.Message) {
	var ev models.TypingEvent
	if err := m.Decode(&ev); err != nil {
		t.logger.WithError(err).Debug("Ignoring malformed typing event")
		return
	}
	if ev.SessionID != t.sessionID {
		return
	}
	metrics.TypingSignal("inbound")
	t.c.typing.Signal(ev.SessionID, ev.UserName)
}

func (t *Thread) SessionID() string { return t.sessionID }

func (t *Thread) IsAI() bool { return t.isAI }

// Session 当前会话的最新状态
func (t *Thread) Session() (models.ChatSession, bool) {
	return t.c.sessions.Get(t.sessionID)
}

func (t *Thread) Messages(ctx context.Context) ([]models.ChatMessage, error) {
	return t.c.messages.Messages(ctx, t.sessionID)
}

func (t *Thread) Grouped(now time.Time) []DayGroup {
	return t.c.messages.Grouped(t.sessionID, now)
}

// Typing returns the remote participant currently typing, if any.
func (t *Thread) Typing() (string, bool) {
	return t.c.typing.Current(t.sessionID)
}

func (t *Thread) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// SetDraft records the composer text. In a sendable doctor-patient thread it
// also emits a throttled typing signal and arms the local composing timer.
func (t *Thread) SetDraft(text string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.draft = text
	if t.isAI || strings.TrimSpace(text) == "" {
		t.mu.Unlock()
		return
	}
	t.armComposingLocked()
	allow := t.limiter.Allow()
	t.mu.Unlock()

	if session, ok := t.Session(); !ok || !CanSend(session) || !allow {
		return
	}
	err := t.c.rt.Emit(models.EventTyping, models.TypingEvent{
		SessionID: t.sessionID,
		UserName:  t.c.identity.Name,
	})
	if err != nil {
		t.logger.WithError(err).Debug("Typing signal not sent")
		return
	}
	metrics.TypingSignal("outbound")
}

func (t *Thread) armComposingLocked() {
	t.composing = true
	t.composeGen++
	gen := t.composeGen
	if t.composeTimer != nil {
		t.composeTimer.Stop()
	}
	t.composeTimer = time.AfterFunc(t.c.opts.TypingExpiry, func() {
		t.mu.Lock()
		if t.composeGen == gen {
			t.composing = false
		}
		t.mu.Unlock()
	})
}

func (t *Thread) Draft() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draft
}

// Composing reports whether the local user typed within the expiry window.
func (t *Thread) Composing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.composing
}

// SetDictating marks the next text send as dictated (is_voice).
func (t *Thread) SetDictating(on bool) {
	t.mu.Lock()
	t.dictating = on
	t.mu.Unlock()
}

func (t *Thread) Dictating() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dictating
}

// AIPending reports whether an AI reply is outstanding.
func (t *Thread) AIPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aiPending
}

// Sending 某类消息是否正在发送
func (t *Thread) Sending(kind models.MessageKind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[kind]
}

// begin runs the shared pre-send checks and marks kind as pending.
func (t *Thread) begin(kind models.MessageKind) (models.ChatSession, error) {
	if t.closed {
		return models.ChatSession{}, ErrThreadClosed
	}
	if kind != models.KindText && t.isAI {
		return models.ChatSession{}, ErrNotAllowed
	}
	if t.pending[kind] || (kind == models.KindText && t.aiPending) {
		return models.ChatSession{}, ErrSendInProgress
	}
	session, ok := t.c.sessions.Get(t.sessionID)
	if !ok {
		return models.ChatSession{}, ErrUnknownSession
	}
	if !CanSend(session) {
		return models.ChatSession{}, ErrNotSendable
	}
	t.pending[kind] = true
	return session, nil
}

// SendText sends the trimmed draft. The draft is cleared only on success and
// only if it was not edited while the request was in flight.
func (t *Thread) SendText(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return t.fail(models.KindText, "Message not sent", ErrThreadClosed)
	}
	content := strings.TrimSpace(t.draft)
	if content == "" {
		t.mu.Unlock()
		return ErrEmptyMessage
	}
	if !utils.ValidateMessage(content) {
		t.mu.Unlock()
		return t.fail(models.KindText, "Message not sent", ErrMessageTooLong)
	}
	if _, err := t.begin(models.KindText); err != nil {
		t.mu.Unlock()
		return t.fail(models.KindText, "Message not sent", err)
	}
	isVoice := t.dictating
	if t.isAI {
		t.aiPending = true
	}
	t.mu.Unlock()

	var err error
	if t.isAI {
		var exchange *models.AIExchange
		exchange, err = t.c.api.SendAIMessage(ctx, t.sessionID, content, isVoice)
		if err == nil {
			t.c.reconciler.Confirmed(t.sessionID, exchange.UserMessage, exchange.AIReply)
		}
	} else {
		var msg *models.ChatMessage
		msg, err = t.c.api.SendMessage(ctx, t.sessionID, content, isVoice)
		if err == nil {
			t.c.reconciler.Confirmed(t.sessionID, *msg)
		}
	}

	t.mu.Lock()
	t.pending[models.KindText] = false
	t.aiPending = false
	if err == nil {
		if strings.TrimSpace(t.draft) == content {
			t.draft = ""
		}
		t.dictating = false
	}
	t.mu.Unlock()

	if err != nil {
		title := "Failed"
		if t.isAI {
			title = "AI error"
		}
		return t.fail(models.KindText, title, err)
	}
	return nil
}

// SendVoice uploads a recording; the backend transcribes it. Not available in
// the AI session.
func (t *Thread) SendVoice(ctx context.Context, filename string, audio io.Reader) error {
	return t.sendAttachment(ctx, models.KindVoice, "Voice send failed", func() (*models.ChatMessage, error) {
		return t.c.api.SendVoiceMessage(ctx, t.sessionID, filename, audio)
	})
}

// SendImage uploads an image. Not available in the AI session.
func (t *Thread) SendImage(ctx context.Context, filename string, image io.Reader) error {
	return t.sendAttachment(ctx, models.KindImage, "Image send failed", func() (*models.ChatMessage, error) {
		return t.c.api.SendImageMessage(ctx, t.sessionID, filename, image)
	})
}

func (t *Thread) sendAttachment(ctx context.Context, kind models.MessageKind, title string, send func() (*models.ChatMessage, error)) error {
	t.mu.Lock()
	_, err := t.begin(kind)
	t.mu.Unlock()
	if err != nil {
		return t.fail(kind, title, err)
	}

	msg, err := send()
	if err == nil {
		t.c.reconciler.Confirmed(t.sessionID, *msg)
	}

	t.mu.Lock()
	t.pending[kind] = false
	t.mu.Unlock()

	if err != nil {
		return t.fail(kind, title, err)
	}
	return nil
}

// Accept 医生接受请求：REQUESTED -> ACTIVE
func (t *Thread) Accept(ctx context.Context) error {
	session, ok := t.Session()
	if !ok {
		return ErrUnknownSession
	}
	if !CanAccept(session, t.c.identity.Role) {
		return t.c.notifyErr("Cannot accept", t.sessionID, ErrNotAllowed)
	}
	updated, err := t.c.api.AcceptSession(ctx, t.sessionID)
	if err != nil {
		return t.c.notifyErr("Failed to accept", t.sessionID, err)
	}
	t.c.sessions.Upsert(*updated)
	t.c.notify(LevelSuccess, "Chat accepted", "You can now message "+updated.DisplayTitle(t.c.identity.Role), t.sessionID, "")
	return nil
}

// CloseSession 关闭会话：ACTIVE -> CLOSED
func (t *Thread) CloseSession(ctx context.Context) error {
	session, ok := t.Session()
	if !ok {
		return ErrUnknownSession
	}
	if !CanClose(session) {
		return t.c.notifyErr("Cannot close", t.sessionID, ErrNotAllowed)
	}
	updated, err := t.c.api.CloseSession(ctx, t.sessionID)
	if err != nil {
		return t.c.notifyErr("Failed to close", t.sessionID, err)
	}
	t.c.sessions.Upsert(*updated)
	t.c.notify(LevelInfo, "Chat closed", updated.DisplayTitle(t.c.identity.Role), t.sessionID, "")
	return nil
}

func (t *Thread) fail(kind models.MessageKind, title string, err error) error {
	metrics.SendFailed(string(kind))
	return t.c.notifyErr(title, t.sessionID, err)
}

// ErrorMessage 用于界面展示的错误文本
func ErrorMessage(err error) string {
	return recoverapi.UserMessage(err)
}
