package recoverapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

// ListSessions 获取当前用户的全部会话
func (c *Client) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	if err := c.doRequestWithRetry(ctx, http.MethodGet, "/chat/sessions", nil, &sessions); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// GetAISession 获取或创建 AI 会话（仅患者）
func (c *Client) GetAISession(ctx context.Context) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/chat/sessions/ai", nil, &session); err != nil {
		return nil, fmt.Errorf("get ai session: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("get ai session: %w", ErrEmptyResponse)
	}
	return &session, nil
}

// RequestDoctorChat 患者向医生发起会话请求
func (c *Client) RequestDoctorChat(ctx context.Context, doctorID string) (*models.ChatSession, error) {
	if doctorID == "" {
		return nil, fmt.Errorf("doctor ID is required")
	}
	var session models.ChatSession
	req := &RequestDoctorChatRequest{DoctorID: doctorID}
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/chat/sessions", req, &session); err != nil {
		return nil, fmt.Errorf("request doctor chat: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("request doctor chat: %w", ErrEmptyResponse)
	}
	return &session, nil
}

// AcceptSession 医生接受 REQUESTED 会话
func (c *Client) AcceptSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	return c.transition(ctx, sessionID, "accept")
}

// CloseSession 关闭会话
func (c *Client) CloseSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	return c.transition(ctx, sessionID, "close")
}

func (c *Client) transition(ctx context.Context, sessionID, action string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	var session models.ChatSession
	endpoint := fmt.Sprintf("/chat/sessions/%s/%s", url.PathEscape(sessionID), action)
	if err := c.doRequestWithRetry(ctx, http.MethodPost, endpoint, nil, &session); err != nil {
		return nil, fmt.Errorf("%s session: %w", action, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%s session: %w", action, ErrEmptyResponse)
	}
	return &session, nil
}

// GetMessages 获取会话历史消息
func (c *Client) GetMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	var messages []models.ChatMessage
	endpoint := fmt.Sprintf("/chat/sessions/%s/messages", url.PathEscape(sessionID))
	if err := c.doRequestWithRetry(ctx, http.MethodGet, endpoint, nil, &messages); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return messages, nil
}

// SendMessage 医患会话发送文本消息
func (c *Client) SendMessage(ctx context.Context, sessionID, content string, isVoice bool) (*models.ChatMessage, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	var msg models.ChatMessage
	endpoint := fmt.Sprintf("/chat/sessions/%s/messages", url.PathEscape(sessionID))
	req := &SendMessageRequest{Content: content, IsVoice: isVoice}
	if err := c.doRequestWithRetry(ctx, http.MethodPost, endpoint, req, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

// SendAIMessage 向 AI 发送消息并获取回复
func (c *Client) SendAIMessage(ctx context.Context, sessionID, content string, isVoice bool) (*models.AIExchange, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}
	var exchange models.AIExchange
	req := &SendAIMessageRequest{SessionID: sessionID, Content: content, IsVoice: isVoice}
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/chat/ai/message", req, &exchange); err != nil {
		return nil, fmt.Errorf("send ai message: %w", err)
	}
	return &exchange, nil
}

// SendVoiceMessage 上传录音，后端转写后返回消息
func (c *Client) SendVoiceMessage(ctx context.Context, sessionID, filename string, audio io.Reader) (*models.ChatMessage, error) {
	return c.sendAttachment(ctx, sessionID, "voice-message", filename, audio)
}

// SendImageMessage 上传图片（仅医患会话）
func (c *Client) SendImageMessage(ctx context.Context, sessionID, filename string, image io.Reader) (*models.ChatMessage, error) {
	return c.sendAttachment(ctx, sessionID, "image-message", filename, image)
}

func (c *Client) sendAttachment(ctx context.Context, sessionID, kind, filename string, content io.Reader) (*models.ChatMessage, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	var msg models.ChatMessage
	endpoint := fmt.Sprintf("/chat/sessions/%s/%s", url.PathEscape(sessionID), kind)
	if err := c.upload(ctx, endpoint, filename, content, &msg); err != nil {
		return nil, fmt.Errorf("send %s: %w", kind, err)
	}
	return &msg, nil
}

// MyDoctors 患者已关联的医生列表
func (c *Client) MyDoctors(ctx context.Context) ([]models.DoctorLink, error) {
	var links []models.DoctorLink
	if err := c.doRequestWithRetry(ctx, http.MethodGet, "/requests/my-doctors", nil, &links); err != nil {
		return nil, fmt.Errorf("list my doctors: %w", err)
	}
	return links, nil
}

// Login 登录成功后自动保存 token
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	var result LoginResult
	req := &LoginRequest{Email: email, Password: password}
	if err := c.doRequestWithRetry(ctx, http.MethodPost, "/auth/login", req, &result); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.SetToken(result.Token)
	return &result, nil
}

// Me 当前登录用户
func (c *Client) Me(ctx context.Context) (*models.SafeUser, error) {
	var user models.SafeUser
	if err := c.doRequestWithRetry(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &user, nil
}
