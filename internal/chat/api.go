package chat

import (
	"context"
	"io"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/realtime"
)

// API 聊天核心使用的 REST 接口，由 recoverapi.Client 实现
type API interface {
	ListSessions(ctx context.Context) ([]models.ChatSession, error)
	GetAISession(ctx context.Context) (*models.ChatSession, error)
	RequestDoctorChat(ctx context.Context, doctorID string) (*models.ChatSession, error)
	AcceptSession(ctx context.Context, sessionID string) (*models.ChatSession, error)
	CloseSession(ctx context.Context, sessionID string) (*models.ChatSession, error)
	GetMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, sessionID, content string, isVoice bool) (*models.ChatMessage, error)
	SendAIMessage(ctx context.Context, sessionID, content string, isVoice bool) (*models.AIExchange, error)
	SendVoiceMessage(ctx context.Context, sessionID, filename string, audio io.Reader) (*models.ChatMessage, error)
	SendImageMessage(ctx context.Context, sessionID, filename string, image io.Reader) (*models.ChatMessage, error)
	MyDoctors(ctx context.Context) ([]models.DoctorLink, error)
}

// Realtime 实时通道，由 realtime.Channel 实现
type Realtime interface {
	Start(ctx context.Context) error
	Close() error
	Emit(eventType string, payload interface{}) error
	On(eventType string, h realtime.Handler) func()
	JoinChatRoom(sessionID string) error
	LeaveChatRoom(sessionID string) error
}
