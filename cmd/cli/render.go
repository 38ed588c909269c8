package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/chat"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/utils"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/voicecmd"
)

const previewWidth = 48

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selfStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	peerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	aiStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	unreadStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)

	statusStyles = map[models.SessionStatus]lipgloss.Style{
		models.StatusRequested: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		models.StatusActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		models.StatusClosed:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}

	levelStyles = map[chat.Level]lipgloss.Style{
		chat.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		chat.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		chat.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		chat.LevelError:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
)

// renderSessions 会话列表，一行一个会话
func renderSessions(sessions []models.ChatSession, viewer models.Role) string {
	if len(sessions) == 0 {
		return mutedStyle.Render("No conversations yet")
	}
	var b strings.Builder
	for _, s := range sessions {
		status := "AI"
		if !s.IsAI() {
			status = statusStyles[s.Status].Render(string(s.Status))
		}
		line := fmt.Sprintf("%s  %s  [%s]", s.ID, titleStyle.Render(s.DisplayTitle(viewer)), status)
		if s.Unread > 0 {
			line += " " + unreadStyle.Render(fmt.Sprintf("(%d)", s.Unread))
		}
		b.WriteString(line)
		b.WriteByte('\n')
		if s.LastMessage != nil && *s.LastMessage != "" {
			b.WriteString("    " + mutedStyle.Render(utils.Truncate(*s.LastMessage, previewWidth)))
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderDoctors 可发起会话的医生
func renderDoctors(links []models.DoctorLink) string {
	if len(links) == 0 {
		return mutedStyle.Render("No linked doctors available")
	}
	var b strings.Builder
	for _, l := range links {
		line := fmt.Sprintf("%s  %s", l.DoctorID, titleStyle.Render("Dr. "+l.DoctorName()))
		if l.Specialty != nil && *l.Specialty != "" {
			line += "  " + mutedStyle.Render(*l.Specialty)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderThread renders messages grouped under day dividers.
func renderThread(groups []chat.DayGroup, selfID string) string {
	if len(groups) == 0 {
		return mutedStyle.Render("No messages yet. Say hello!")
	}
	var b strings.Builder
	for _, g := range groups {
		b.WriteString(dividerStyle.Render("── " + g.Label + " ──"))
		b.WriteByte('\n')
		for _, m := range g.Messages {
			b.WriteString(renderMessage(m, selfID))
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderMessage(m models.ChatMessage, selfID string) string {
	style := peerStyle
	sender := m.Sender()
	switch {
	case m.IsAI:
		style = aiStyle
	case m.IsFrom(selfID):
		style = selfStyle
		sender = "You"
	}

	body := m.Content
	switch m.Kind() {
	case models.KindVoice:
		body = "🎤 " + m.Preview()
	case models.KindImage:
		body = "🖼  " + *m.ImageURL
		if m.Content != "" {
			body += " " + m.Content
		}
	default:
		if m.IsVoice {
			body = "🎤 " + body
		}
	}
	return fmt.Sprintf("%s %s %s", mutedStyle.Render(utils.FormatClock(m.CreatedAt)), style.Render(sender+":"), body)
}

func renderNotification(n chat.Notification) string {
	style, ok := levelStyles[n.Level]
	if !ok {
		style = levelStyles[chat.LevelInfo]
	}
	return style.Render("● "+n.Title) + " " + n.Body
}

func renderTyping(actor string) string {
	return mutedStyle.Render(actor + " is typing…")
}

// renderReadings 语音指令识别出的症状读数，按字段名排序
func renderReadings(res voicecmd.Result) string {
	if !res.Matched() {
		return mutedStyle.Render("No symptom readings recognised")
	}
	fields := make([]string, 0, len(res.Fields))
	for f := range res.Fields {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)

	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, "%s = %g\n", titleStyle.Render(f), res.Fields[voicecmd.Field(f)])
	}
	if res.Remaining != "" {
		b.WriteString(mutedStyle.Render("note: " + res.Remaining))
	}
	return strings.TrimRight(b.String(), "\n")
}

// now is replaced in tests.
var now = time.Now
