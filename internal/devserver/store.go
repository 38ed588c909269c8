package devserver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store 开发后端的会话与消息持久化
type Store interface {
	CreateSession(ctx context.Context, s models.ChatSession) error
	GetSession(ctx context.Context, id string) (models.ChatSession, error)
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) (models.ChatSession, error)
	// SessionsFor lists sessions where userID is the patient or the doctor,
	// most recently updated first.
	SessionsFor(ctx context.Context, userID string) ([]models.ChatSession, error)
	// AddMessage stores m and bumps the session's preview and update time.
	AddMessage(ctx context.Context, m models.ChatMessage) error
	Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore 内存实现，进程退出即丢失
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.ChatSession
	messages map[string][]models.ChatMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.ChatSession),
		messages: make(map[string][]models.ChatMessage),
	}
}

func (s *MemoryStore) CreateSession(ctx context.Context, session models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return ErrConflict
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.ChatSession{}, ErrNotFound
	}
	return session, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) (models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.ChatSession{}, ErrNotFound
	}
	session.Status = status
	session.IsRequest = status == models.StatusRequested
	session.UpdatedAt = time.Now()
	s.sessions[id] = session
	return session, nil
}

func (s *MemoryStore) SessionsFor(ctx context.Context, userID string) ([]models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ChatSession, 0)
	for _, session := range s.sessions {
		if session.HasParticipant(userID) {
			out = append(out, session)
		}
	}
	sortSessions(out)
	return out, nil
}

func (s *MemoryStore) AddMessage(ctx context.Context, m models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[m.SessionID]
	if !ok {
		return ErrNotFound
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], m)
	preview := m.Preview()
	session.LastMessage = &preview
	session.UpdatedAt = m.CreatedAt
	s.sessions[m.SessionID] = session
	return nil
}

func (s *MemoryStore) Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}
	return append([]models.ChatMessage{}, s.messages[sessionID]...), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func sortSessions(sessions []models.ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}
