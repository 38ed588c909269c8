package chat

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/metrics"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

// Reconciler merges REST-confirmed and socket-delivered messages into the
// MessageCache and keeps session previews in step. It is the only writer of
// either.
type Reconciler struct {
	sessions *SessionStore
	messages *MessageCache
	selfID   string
	logger   *logrus.Logger

	mu     sync.RWMutex
	active string
}

func NewReconciler(sessions *SessionStore, messages *MessageCache, selfID string, logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reconciler{sessions: sessions, messages: messages, selfID: selfID, logger: logger}
}

// SetActive records the open thread; "" means none. Messages for the active
// thread never raise the unread count.
func (r *Reconciler) SetActive(sessionID string) {
	r.mu.Lock()
	r.active = sessionID
	r.mu.Unlock()
}

func (r *Reconciler) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Confirmed applies messages returned by a successful REST call, in order.
// It returns how many were new.
func (r *Reconciler) Confirmed(sessionID string, msgs ...models.ChatMessage) int {
	added := 0
	for _, m := range msgs {
		if r.apply(sessionID, m, metrics.SourceREST) {
			added++
		}
	}
	return added
}

// Delivered applies a new_message push.
func (r *Reconciler) Delivered(ev models.NewMessageEvent) bool {
	sessionID := ev.SessionID
	if sessionID == "" {
		sessionID = ev.Message.SessionID
	}
	if sessionID == "" {
		r.logger.WithField("message_id", ev.Message.ID).Warn("Dropping pushed message without session id")
		return false
	}
	return r.apply(sessionID, ev.Message, metrics.SourceSocket)
}

func (r *Reconciler) apply(sessionID string, msg models.ChatMessage, source string) bool {
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}
	if !r.messages.appendMessage(sessionID, msg) {
		metrics.DuplicateDropped(source)
		return false
	}
	metrics.MessageAppended(source)

	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	bump := !msg.IsFrom(r.selfID) && sessionID != r.Active()
	if !r.sessions.touch(sessionID, msg.Preview(), at, bump) {
		// 列表中没有该会话（例如刚被接受的请求），下次读取时刷新
		r.sessions.Invalidate()
	}
	r.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"message_id": msg.ID,
		"source":     source,
	}).Debug("Message reconciled")
	return true
}
