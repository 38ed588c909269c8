package chat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/recoverapi"
)

// SessionStore caches the session list of the current identity, most
// recently active first.
type SessionStore struct {
	api      API
	notifier Notifier
	logger   *logrus.Logger

	mu       sync.RWMutex
	sessions []models.ChatSession
	loaded   bool
	// gen 每次 Reset 递增，重置前发起的请求结果被丢弃
	gen uint64

	group singleflight.Group
}

func NewSessionStore(api API, notifier Notifier, logger *logrus.Logger) *SessionStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SessionStore{api: api, notifier: notifier, logger: logger}
}

// List returns the cached list, fetching it once per activation. On failure
// the stale (possibly empty) list is returned with the error.
func (s *SessionStore) List(ctx context.Context) ([]models.ChatSession, error) {
	s.mu.RLock()
	if s.loaded {
		out := s.copyLocked()
		s.mu.RUnlock()
		return out, nil
	}
	gen := s.gen
	s.mu.RUnlock()

	_, err, _ := s.group.Do("list-"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		fetched, err := s.api.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		s.replace(gen, fetched)
		return nil, nil
	})
	if err != nil {
		s.report("Could not load conversations", err)
	}
	return s.Snapshot(), err
}

// replace installs a fetched list, keeping locally counted unread badges.
// A list fetched before the last Reset is dropped.
func (s *SessionStore) replace(gen uint64, fetched []models.ChatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	unread := make(map[string]int, len(s.sessions))
	for _, sess := range s.sessions {
		unread[sess.ID] = sess.Unread
	}
	next := make([]models.ChatSession, len(fetched))
	copy(next, fetched)
	for i := range next {
		if n := unread[next[i].ID]; n > next[i].Unread {
			next[i].Unread = n
		}
	}
	s.sessions = next
	s.loaded = true
}

// EnsureAISession returns the AI session, creating it with at most one
// request in flight regardless of how many callers arrive concurrently.
func (s *SessionStore) EnsureAISession(ctx context.Context) (models.ChatSession, error) {
	if ai, ok := s.AISession(); ok {
		return ai, nil
	}
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	v, err, _ := s.group.Do("ai-"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		if ai, ok := s.AISession(); ok {
			return ai, nil
		}
		created, err := s.api.GetAISession(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if gen == s.gen {
			s.upsertLocked(*created)
		}
		s.mu.Unlock()
		return *created, nil
	})
	if err != nil {
		s.report("Could not start the AI assistant", err)
		return models.ChatSession{}, err
	}
	return v.(models.ChatSession), nil
}

// Upsert replaces the session with the same id in place, or inserts it at
// the head of the list.
func (s *SessionStore) Upsert(session models.ChatSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(session)
}

func (s *SessionStore) upsertLocked(session models.ChatSession) {
	for i := range s.sessions {
		if s.sessions[i].ID == session.ID {
			if session.Unread < s.sessions[i].Unread {
				session.Unread = s.sessions[i].Unread
			}
			if session.LastMessage == nil {
				session.LastMessage = s.sessions[i].LastMessage
			}
			s.sessions[i] = session
			return
		}
	}
	s.sessions = append([]models.ChatSession{session}, s.sessions...)
}

// touch updates the preview of a session after a new message and moves it to
// the head. It reports false when the session is not cached.
func (s *SessionStore) touch(sessionID, preview string, at time.Time, bumpUnread bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(sessionID)
	if idx < 0 {
		return false
	}
	sess := s.sessions[idx]
	sess.LastMessage = models.StringPtr(preview)
	if at.After(sess.UpdatedAt) {
		sess.UpdatedAt = at
	}
	if bumpUnread {
		sess.Unread++
	}
	copy(s.sessions[1:idx+1], s.sessions[:idx])
	s.sessions[0] = sess
	return true
}

// SetStatus moves a cached session to status. It reports false when the
// session is not cached.
func (s *SessionStore) SetStatus(id string, status models.SessionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return false
	}
	s.sessions[idx].Status = status
	return true
}

// MarkRead 清零未读计数
func (s *SessionStore) MarkRead(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(sessionID); idx >= 0 {
		s.sessions[idx].Unread = 0
	}
}

// Invalidate marks the list stale; the next List call refetches it.
func (s *SessionStore) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

// Reset 登出时丢弃全部缓存
func (s *SessionStore) Reset() {
	s.mu.Lock()
	s.sessions = nil
	s.loaded = false
	s.gen++
	s.mu.Unlock()
}

func (s *SessionStore) Get(id string) (models.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.sessions[idx], true
	}
	return models.ChatSession{}, false
}

func (s *SessionStore) AISession() (models.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.IsAI() {
			return sess, true
		}
	}
	return models.ChatSession{}, false
}

// PendingRequests 医生视角下待接受的会话
func (s *SessionStore) PendingRequests() []models.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChatSession
	for _, sess := range s.sessions {
		if !sess.IsAI() && sess.Status == models.StatusRequested {
			out = append(out, sess)
		}
	}
	return out
}

// Visible returns the conversation list for role. Patients reach the AI
// session through its own entry, so it is left out of their list.
func (s *SessionStore) Visible(role models.Role) []models.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if role == models.RolePatient && sess.IsAI() {
			continue
		}
		out = append(out, sess)
	}
	return out
}

// Snapshot 当前缓存的副本，不触发请求
func (s *SessionStore) Snapshot() []models.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *SessionStore) copyLocked() []models.ChatSession {
	out := make([]models.ChatSession, len(s.sessions))
	copy(out, s.sessions)
	return out
}

func (s *SessionStore) indexLocked(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *SessionStore) report(title string, err error) {
	s.logger.WithError(err).Warn(title)
	if s.notifier != nil {
		s.notifier.Notify(newNotification(LevelError, title, recoverapi.UserMessage(err)))
	}
}
