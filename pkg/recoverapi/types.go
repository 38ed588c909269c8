package recoverapi

import (
	"encoding/json"
	"time"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

// Envelope 所有接口的统一响应结构 {success, data, message}
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	// 错误响应可能使用 error / detail 字段
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// SendMessageRequest 医患会话发送文本
type SendMessageRequest struct {
	Content string `json:"content"`
	IsVoice bool   `json:"is_voice"`
}

// SendAIMessageRequest AI 会话发送文本
type SendAIMessageRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	IsVoice   bool   `json:"is_voice"`
}

// RequestDoctorChatRequest 患者向医生发起会话
type RequestDoctorChatRequest struct {
	DoctorID string `json:"doctor_id"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token string          `json:"token"`
	User  models.SafeUser `json:"user"`
}

// Config 客户端配置
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	UserAgent  string        `yaml:"user_agent"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:8080/api",
		Timeout:    15 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		UserAgent:  "RecoverEase-Client/1.0",
	}
}
