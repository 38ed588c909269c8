package chat

import "errors"

// 校验与状态错误，均在本地恢复为通知
var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
	ErrNotSendable    = errors.New("session does not accept messages")
	ErrNotAllowed     = errors.New("action not allowed for this session")
	ErrNoThread       = errors.New("no open thread")
	ErrThreadClosed   = errors.New("thread is closed")
	ErrUnknownSession = errors.New("unknown session")
	ErrSendInProgress = errors.New("a send is already in progress")
	ErrStopped        = errors.New("chat client stopped")
)
