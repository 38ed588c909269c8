package utils

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// MaxMessageLength 单条消息最大字符数
const MaxMessageLength = 4096

// NewMessageID 生成按时间排序的消息 ID
func NewMessageID() string {
	return ulid.Make().String()
}

// NewSessionID 生成会话 ID
func NewSessionID() string {
	return uuid.NewString()
}

// 时间格式化
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// FormatClock 消息气泡中的时间，如 "3:04 PM"
func FormatClock(t time.Time) string {
	return t.Local().Format("3:04 PM")
}

// 验证消息内容（去除首尾空白后非空且不超长）
func ValidateMessage(content string) bool {
	content = strings.TrimSpace(content)
	n := utf8.RuneCountInString(content)
	return n > 0 && n <= MaxMessageLength
}

// Truncate 按字符截断，超出部分以 … 结尾
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
