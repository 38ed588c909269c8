package chat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/metrics"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

type threadLog struct {
	messages []models.ChatMessage
	ids      map[string]struct{}
	loaded   bool
}

func newThreadLog() *threadLog {
	return &threadLog{ids: make(map[string]struct{})}
}

func (l *threadLog) add(msg models.ChatMessage) bool {
	if msg.ID == "" {
		return false
	}
	if _, dup := l.ids[msg.ID]; dup {
		return false
	}
	l.ids[msg.ID] = struct{}{}
	l.messages = append(l.messages, msg)
	return true
}

// MessageCache holds the ordered message list of every session touched in
// this login. Writes go through the Reconciler only.
type MessageCache struct {
	api    API
	logger *logrus.Logger

	mu      sync.Mutex
	threads map[string]*threadLog
	// gen 每次 ResetAll 递增
	gen uint64

	group singleflight.Group
}

func NewMessageCache(api API, logger *logrus.Logger) *MessageCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MessageCache{api: api, logger: logger, threads: make(map[string]*threadLog)}
}

// Messages returns a copy of the session's list. The first access fetches
// history; messages that arrived before it resolved are kept after the
// history in arrival order.
func (c *MessageCache) Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	c.mu.Lock()
	if l, ok := c.threads[sessionID]; ok && l.loaded {
		out := copyMessages(l.messages)
		c.mu.Unlock()
		return out, nil
	}
	gen := c.gen
	c.mu.Unlock()

	_, err, _ := c.group.Do(strconv.FormatUint(gen, 10)+"/"+sessionID, func() (interface{}, error) {
		history, err := c.api.GetMessages(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		c.mergeHistory(gen, sessionID, history)
		return nil, nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to load message history")
	}
	return c.Cached(sessionID), err
}

// mergeHistory installs fetched history ahead of pushed messages. History
// fetched before the last ResetAll is dropped.
func (c *MessageCache) mergeHistory(gen uint64, sessionID string, history []models.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}

	merged := newThreadLog()
	for _, m := range history {
		if merged.add(m) {
			metrics.MessageAppended(metrics.SourceHistory)
		}
	}
	if prev, ok := c.threads[sessionID]; ok {
		for _, m := range prev.messages {
			merged.add(m)
		}
	}
	merged.loaded = true
	c.threads[sessionID] = merged
}

// Cached 返回已缓存的消息，不触发请求
func (c *MessageCache) Cached(sessionID string) []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.threads[sessionID]; ok {
		return copyMessages(l.messages)
	}
	return nil
}

// Loaded reports whether history for the session has been fetched.
func (c *MessageCache) Loaded(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.threads[sessionID]
	return ok && l.loaded
}

// appendMessage inserts msg at the end unless its id is already present.
func (c *MessageCache) appendMessage(sessionID string, msg models.ChatMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.threads[sessionID]
	if !ok {
		l = newThreadLog()
		c.threads[sessionID] = l
	}
	return l.add(msg)
}

// Reset drops one session so the next access refetches it.
func (c *MessageCache) Reset(sessionID string) {
	c.mu.Lock()
	delete(c.threads, sessionID)
	c.mu.Unlock()
}

// ResetAll 登出时清空
func (c *MessageCache) ResetAll() {
	c.mu.Lock()
	c.threads = make(map[string]*threadLog)
	c.gen++
	c.mu.Unlock()
}

// Grouped is the date-bucketed view of the cached list, recomputed per call.
func (c *MessageCache) Grouped(sessionID string, now time.Time) []DayGroup {
	return GroupByDate(c.Cached(sessionID), now)
}

func copyMessages(in []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, len(in))
	copy(out, in)
	return out
}
