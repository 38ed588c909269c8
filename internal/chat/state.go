package chat

import "github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"

// Session state machine: REQUESTED -> ACTIVE -> CLOSED. AI sessions have no
// transitions and always accept messages. REQUESTED sessions have no reject
// or expiry path and stay pending until accepted.

// CanSend reports whether the composer is enabled for s.
func CanSend(s models.ChatSession) bool {
	return s.IsAI() || s.Status == models.StatusActive
}

// CanAccept 只有医生可以接受 REQUESTED 会话
func CanAccept(s models.ChatSession, role models.Role) bool {
	return role == models.RoleDoctor && !s.IsAI() && s.Status == models.StatusRequested
}

// CanClose 任一参与方可关闭 ACTIVE 会话；CLOSED 为终态
func CanClose(s models.ChatSession) bool {
	return !s.IsAI() && s.Status == models.StatusActive
}
