package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Level 通知级别
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-facing message: a recovered error or a global event.
type Notification struct {
	ID        string
	Level     Level
	Title     string
	Body      string
	SessionID string
	Event     string
	At        time.Time
}

// Notifier 接收通知（终端输出、日志等）
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier 将通知写入日志
type LogNotifier struct {
	Logger *logrus.Logger
}

func (l LogNotifier) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"session_id":      n.SessionID,
		"event":           n.Event,
	})
	switch n.Level {
	case LevelError:
		entry.Errorf("%s: %s", n.Title, n.Body)
	case LevelWarning:
		entry.Warnf("%s: %s", n.Title, n.Body)
	default:
		entry.Infof("%s: %s", n.Title, n.Body)
	}
}

func newNotification(level Level, title, body string) Notification {
	return Notification{
		ID:    uuid.NewString(),
		Level: level,
		Title: title,
		Body:  body,
		At:    time.Now(),
	}
}
