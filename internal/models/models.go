package models

import (
	"strings"
	"time"
)

// Role 用户角色
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
)

// ParseRole 解析角色字符串，未知值返回 false
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	}
	return "", false
}

// SessionStatus 会话状态: REQUESTED -> ACTIVE -> CLOSED
type SessionStatus string

const (
	StatusRequested SessionStatus = "REQUESTED"
	StatusActive    SessionStatus = "ACTIVE"
	StatusClosed    SessionStatus = "CLOSED"
)

// SafeUser 不含敏感字段的用户信息
type SafeUser struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	ConnectCode string    `json:"connect_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatSession 聊天会话。DoctorID 为空表示 AI 助手会话
type ChatSession struct {
	ID          string        `json:"id"`
	PatientID   string        `json:"patient_id"`
	DoctorID    *string       `json:"doctor_id"`
	Status      SessionStatus `json:"status"`
	Title       string        `json:"title"`
	IsRequest   bool          `json:"is_request"`
	PatientName *string       `json:"patient_name,omitempty"`
	LastMessage *string       `json:"last_message"`
	Unread      int           `json:"unread"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsAI reports whether the session is the patient's AI assistant session.
func (s ChatSession) IsAI() bool {
	return s.DoctorID == nil || *s.DoctorID == ""
}

// DoctorIDOrEmpty returns the doctor id, or "" for the AI session.
func (s ChatSession) DoctorIDOrEmpty() string {
	if s.DoctorID == nil {
		return ""
	}
	return *s.DoctorID
}

// HasParticipant reports whether userID is the patient or the doctor of the session.
func (s ChatSession) HasParticipant(userID string) bool {
	return userID != "" && (s.PatientID == userID || s.DoctorIDOrEmpty() == userID)
}

// DisplayTitle 医生看到患者姓名，患者看到标题（医生姓名）
func (s ChatSession) DisplayTitle(viewer Role) string {
	if !s.IsAI() && viewer == RoleDoctor && s.PatientName != nil && *s.PatientName != "" {
		return *s.PatientName
	}
	return s.Title
}

// MessageKind 消息负载类型
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindVoice MessageKind = "voice"
	KindImage MessageKind = "image"
)

// ChatMessage 聊天消息
type ChatMessage struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	SenderID   *string   `json:"sender_id"`
	SenderName *string   `json:"sender_name"`
	Content    string    `json:"content"`
	IsAI       bool      `json:"is_ai"`
	IsVoice    bool      `json:"is_voice"`
	AudioURL   *string   `json:"audio_url,omitempty"`
	ImageURL   *string   `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Kind derives the payload kind. A recorded voice message carries an audio
// reference plus its transcription; IsVoice alone marks dictated text.
func (m ChatMessage) Kind() MessageKind {
	switch {
	case m.AudioURL != nil && *m.AudioURL != "":
		return KindVoice
	case m.ImageURL != nil && *m.ImageURL != "":
		return KindImage
	default:
		return KindText
	}
}

// IsFrom reports whether userID authored the message.
func (m ChatMessage) IsFrom(userID string) bool {
	return m.SenderID != nil && userID != "" && *m.SenderID == userID
}

// Sender 显示用发送者名称
func (m ChatMessage) Sender() string {
	if m.IsAI {
		return "AI Assistant"
	}
	if m.SenderName != nil && *m.SenderName != "" {
		return *m.SenderName
	}
	return "Unknown"
}

// Preview 会话列表中的最后一条消息预览
func (m ChatMessage) Preview() string {
	switch m.Kind() {
	case KindVoice:
		if m.Content != "" {
			return "Voice message: " + m.Content
		}
		return "Voice message"
	case KindImage:
		return "Image"
	}
	return m.Content
}

// AIExchange is the response of the AI send endpoint: the stored user message
// followed by the generated reply.
type AIExchange struct {
	UserMessage ChatMessage `json:"user_message"`
	AIReply     ChatMessage `json:"ai_reply"`
}

// TypingSignal 输入中状态，不持久化
type TypingSignal struct {
	SessionID  string    `json:"session_id"`
	ActorName  string    `json:"user_name"`
	ReceivedAt time.Time `json:"-"`
}

// DoctorLink 医患关联
type DoctorLink struct {
	LinkID    string    `json:"link_id"`
	DoctorID  string    `json:"doctor_id"`
	PatientID string    `json:"patient_id"`
	Specialty *string   `json:"specialty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	Doctor    *SafeUser `json:"doctor"`
	Patient   *SafeUser `json:"patient"`
}

// DoctorName returns the linked doctor's display name when present.
func (l DoctorLink) DoctorName() string {
	if l.Doctor != nil && l.Doctor.Name != "" {
		return l.Doctor.Name
	}
	return l.DoctorID
}

// StringPtr 返回字符串指针，空串返回 nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
