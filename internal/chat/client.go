package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/realtime"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/recoverapi"
)

// Options 聊天客户端选项
type Options struct {
	Identity       models.SafeUser
	TypingExpiry   time.Duration
	TypingThrottle time.Duration
	Notifier       Notifier
	Logger         *logrus.Logger
	// OnLogout runs after the client stops because the backend rejected the token.
	OnLogout func()
}

// Client owns the chat state of one authenticated identity: session list,
// message cache, typing indicators, the realtime channel and the open thread.
type Client struct {
	api      API
	rt       Realtime
	identity models.SafeUser
	opts     Options
	notifier Notifier
	logger   *logrus.Logger

	sessions   *SessionStore
	messages   *MessageCache
	reconciler *Reconciler
	typing     *TypingCoordinator

	// bg 在 Stop 时取消，用于事件触发的后台刷新
	bg     context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	thread  *Thread
	unsubs  []func()
	started bool
	stopped bool
}

func NewClient(api API, rt Realtime, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: opts.Logger}
	}
	if opts.TypingExpiry <= 0 {
		opts.TypingExpiry = DefaultTypingExpiry
	}
	if opts.TypingThrottle <= 0 {
		opts.TypingThrottle = time.Second
	}

	sessions := NewSessionStore(api, opts.Notifier, opts.Logger)
	messages := NewMessageCache(api, opts.Logger)
	bg, cancel := context.WithCancel(context.Background())
	return &Client{
		bg:         bg,
		cancel:     cancel,
		api:        api,
		rt:         rt,
		identity:   opts.Identity,
		opts:       opts,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		sessions:   sessions,
		messages:   messages,
		reconciler: NewReconciler(sessions, messages, opts.Identity.ID, opts.Logger),
		typing:     NewTypingCoordinator(opts.TypingExpiry),
	}
}

func (c *Client) Identity() models.SafeUser { return c.identity }

func (c *Client) Sessions() *SessionStore { return c.sessions }

func (c *Client) Messages() *MessageCache { return c.messages }

func (c *Client) Reconciler() *Reconciler { return c.reconciler }

func (c *Client) Typing() *TypingCoordinator { return c.typing }

// Thread 当前打开的会话，没有则返回 nil
func (c *Client) Thread() *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thread
}

// Start subscribes to global events, starts the realtime channel and loads
// the session list. Patients also get their AI session ensured. Load
// failures are notified and do not fail Start.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.unsubs = append(c.unsubs,
		c.rt.On(models.EventNewMessage, c.onNewMessage),
		c.rt.On(models.EventChatRequest, c.onChatRequest),
		c.rt.On(models.EventChatRequestAccepted, c.onChatRequestAccepted),
		c.rt.On(models.EventPatientAlert, c.onPatientAlert),
		c.rt.On(models.EventMilestoneEarned, c.onMilestoneEarned),
	)
	c.mu.Unlock()

	if err := c.rt.Start(ctx); err != nil {
		return fmt.Errorf("start realtime channel: %w", err)
	}

	c.sessions.List(ctx)
	if c.identity.Role == models.RolePatient {
		c.sessions.EnsureAISession(ctx)
	}
	c.logger.WithFields(logrus.Fields{
		"user_id": c.identity.ID,
		"role":    c.identity.Role,
	}).Info("Chat client started")
	return nil
}

// Stop tears the client down (logout). Caches are discarded.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.cancel()
	thread := c.thread
	c.thread = nil
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	if thread != nil {
		thread.close()
	}
	for _, unsub := range unsubs {
		unsub()
	}
	c.typing.Stop()
	if err := c.rt.Close(); err != nil {
		c.logger.WithError(err).Warn("Failed to close realtime channel")
	}
	c.sessions.Reset()
	c.messages.ResetAll()
	c.reconciler.SetActive("")
	c.logger.WithField("user_id", c.identity.ID).Info("Chat client stopped")
}

// Stopped 客户端是否已停止
func (c *Client) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// HandleUnauthorized stops the client after the backend rejected the token.
// It must not be called from a realtime handler.
func (c *Client) HandleUnauthorized() {
	if c.Stopped() {
		return
	}
	c.notify(LevelError, "Session expired", "Please sign in again", "", "")
	c.Stop()
	if c.opts.OnLogout != nil {
		c.opts.OnLogout()
	}
}

// OpenThread opens sessionID as the active thread, closing the previous one.
// Reopening the current thread returns it unchanged.
func (c *Client) OpenThread(ctx context.Context, sessionID string) (*Thread, error) {
	if c.Stopped() {
		return nil, ErrStopped
	}
	session, ok := c.sessions.Get(sessionID)
	if !ok {
		c.sessions.List(ctx)
		if session, ok = c.sessions.Get(sessionID); !ok {
			return nil, fmt.Errorf("open thread %s: %w", sessionID, ErrUnknownSession)
		}
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	prev := c.thread
	if prev != nil && prev.sessionID == sessionID && !prev.Closed() {
		c.mu.Unlock()
		return prev, nil
	}
	th := newThread(c, session)
	c.thread = th
	c.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	th.open(ctx)
	return th, nil
}

// SwitchThread moves the view to sessionID. Sends started on the previous
// thread keep running and land in that session's cache.
func (c *Client) SwitchThread(ctx context.Context, sessionID string) (*Thread, error) {
	return c.OpenThread(ctx, sessionID)
}

// OpenAIThread 打开（必要时创建）AI 助手会话
func (c *Client) OpenAIThread(ctx context.Context) (*Thread, error) {
	ai, err := c.sessions.EnsureAISession(ctx)
	if err != nil {
		return nil, err
	}
	return c.OpenThread(ctx, ai.ID)
}

// CloseThread 关闭当前会话视图
func (c *Client) CloseThread() {
	c.mu.Lock()
	th := c.thread
	c.thread = nil
	c.mu.Unlock()
	if th != nil {
		th.close()
	}
}

// RequestDoctorChat asks doctorID for a new session; it starts REQUESTED.
func (c *Client) RequestDoctorChat(ctx context.Context, doctorID string) (models.ChatSession, error) {
	session, err := c.api.RequestDoctorChat(ctx, doctorID)
	if err != nil {
		return models.ChatSession{}, c.notifyErr("Failed", "", err)
	}
	c.sessions.Upsert(*session)
	c.notify(LevelSuccess, "Chat requested", "Waiting for the doctor to accept your chat request", session.ID, "")
	return *session, nil
}

// RequestCandidates lists linked doctors the patient has no session with yet.
func (c *Client) RequestCandidates(ctx context.Context) ([]models.DoctorLink, error) {
	links, err := c.api.MyDoctors(ctx)
	if err != nil {
		return nil, c.notifyErr("Could not load doctors", "", err)
	}
	sessions, _ := c.sessions.List(ctx)
	return FilterCandidates(links, sessions), nil
}

// FilterCandidates drops links without a doctor and doctors that already
// have a session with the patient, whatever its status.
func FilterCandidates(links []models.DoctorLink, sessions []models.ChatSession) []models.DoctorLink {
	existing := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		if id := s.DoctorIDOrEmpty(); id != "" {
			existing[id] = struct{}{}
		}
	}
	out := make([]models.DoctorLink, 0, len(links))
	for _, l := range links {
		if l.DoctorID == "" {
			continue
		}
		if _, ok := existing[l.DoctorID]; ok {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (c *Client) onNewMessage(m realtime.Message) {
	var ev models.NewMessageEvent
	if err := m.Decode(&ev); err != nil {
		c.logger.WithError(err).Warn("Ignoring malformed new_message event")
		return
	}
	c.reconciler.Delivered(ev)
}

func (c *Client) onChatRequest(m realtime.Message) {
	var ev models.ChatRequestEvent
	if err := m.Decode(&ev); err != nil {
		c.logger.WithError(err).Warn("Ignoring malformed chat_request event")
		return
	}
	c.refreshSessions()
	c.notify(LevelInfo, "Chat Request", ev.PatientName+" wants to chat", ev.SessionID, models.EventChatRequest)
}

func (c *Client) onChatRequestAccepted(m realtime.Message) {
	var ev models.ChatRequestAcceptedEvent
	if err := m.Decode(&ev); err != nil {
		c.logger.WithError(err).Warn("Ignoring malformed chat_request_accepted event")
		return
	}
	// 已打开的会话立即可发送，不等待列表刷新
	if s, ok := c.sessions.Get(ev.SessionID); ok && s.Status == models.StatusRequested {
		c.sessions.SetStatus(ev.SessionID, models.StatusActive)
	}
	c.refreshSessions()
	c.notify(LevelSuccess, "Chat Accepted", "Dr. "+ev.DoctorName+" accepted your chat request", ev.SessionID, models.EventChatRequestAccepted)
}

// refreshSessions marks the list stale and refetches it off the dispatch
// goroutine.
func (c *Client) refreshSessions() {
	c.sessions.Invalidate()
	if c.Stopped() {
		return
	}
	go func() {
		if _, err := c.sessions.List(c.bg); err != nil {
			c.logger.WithError(err).Debug("Session list refresh failed")
		}
	}()
}

func (c *Client) onPatientAlert(m realtime.Message) {
	var ev models.PatientAlertEvent
	if err := m.Decode(&ev); err != nil {
		c.logger.WithError(err).Warn("Ignoring malformed patient_alert event")
		return
	}
	level, title := LevelWarning, "Patient Escalation"
	if ev.IsSOS {
		level, title = LevelError, "SOS Alert!"
	}
	c.notify(level, title, ev.PatientName+" needs attention", "", models.EventPatientAlert)
}

func (c *Client) onMilestoneEarned(m realtime.Message) {
	var ev models.MilestoneEarnedEvent
	if err := m.Decode(&ev); err != nil {
		c.logger.WithError(err).Warn("Ignoring malformed milestone_earned event")
		return
	}
	for _, ms := range ev.Milestones {
		c.notify(LevelSuccess, ms.Icon+" "+ms.Title, "You earned a milestone!", "", models.EventMilestoneEarned)
	}
}

func (c *Client) notify(level Level, title, body, sessionID, event string) {
	n := newNotification(level, title, body)
	n.SessionID = sessionID
	n.Event = event
	c.notifier.Notify(n)
}

// notifyErr reports err as a notification and returns it.
func (c *Client) notifyErr(title, sessionID string, err error) error {
	c.logger.WithError(err).WithField("session_id", sessionID).Warn(title)
	c.notify(LevelError, title, recoverapi.UserMessage(err), sessionID, "")
	return err
}
