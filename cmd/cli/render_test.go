package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/chat"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/voicecmd"
)

func TestRenderSessions(t *testing.T) {
	doctor := "doctor-1"
	patient := "Priya Patel"
	long := strings.Repeat("a", 80)
	sessions := []models.ChatSession{
		{ID: "ai", Title: "AI Assistant", Status: models.StatusActive},
		{ID: "s1", DoctorID: &doctor, PatientName: &patient, Title: "Dr. Arjun Rao", Status: models.StatusRequested, Unread: 2, LastMessage: &long},
	}

	out := renderSessions(sessions, models.RoleDoctor)
	assert.Contains(t, out, "AI Assistant")
	assert.Contains(t, out, "[AI]")
	assert.Contains(t, out, "Priya Patel")
	assert.Contains(t, out, "REQUESTED")
	assert.Contains(t, out, "(2)")
	assert.Contains(t, out, strings.Repeat("a", previewWidth-1)+"…")
	assert.NotContains(t, out, long)

	assert.Contains(t, renderSessions(sessions, models.RolePatient), "Dr. Arjun Rao")
	assert.Contains(t, renderSessions(nil, models.RolePatient), "No conversations yet")
}

func TestRenderThread(t *testing.T) {
	self := "p1"
	doctor := "d1"
	doctorName := "Arjun Rao"
	audio := "/uploads/s1/a.webm"
	image := "/uploads/s1/b.png"
	today := time.Date(2026, 3, 10, 15, 4, 0, 0, time.Local)

	msgs := []models.ChatMessage{
		{ID: "1", SenderID: &self, Content: "hi", CreatedAt: today.AddDate(0, 0, -1)},
		{ID: "2", SenderID: &doctor, SenderName: &doctorName, Content: "hello", CreatedAt: today},
		{ID: "3", SenderID: &doctor, SenderName: &doctorName, Content: "knee hurts", AudioURL: &audio, IsVoice: true, CreatedAt: today},
		{ID: "4", SenderID: &self, ImageURL: &image, CreatedAt: today},
		{ID: "5", IsAI: true, Content: "rest", CreatedAt: today},
	}

	out := renderThread(chat.GroupByDate(msgs, today), self)
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 7)
	assert.Contains(t, lines[0], "Yesterday")
	assert.Contains(t, lines[1], "You: hi")
	assert.Contains(t, lines[2], "Today")
	assert.Contains(t, lines[3], "3:04 PM")
	assert.Contains(t, lines[3], "Arjun Rao: hello")
	assert.Contains(t, lines[4], "Voice message: knee hurts")
	assert.Contains(t, lines[5], image)
	assert.Contains(t, lines[6], "AI Assistant: rest")

	assert.Contains(t, renderThread(nil, self), "No messages yet")
}

func TestRenderDoctorsAndReadings(t *testing.T) {
	specialty := "Orthopedics"
	out := renderDoctors([]models.DoctorLink{
		{DoctorID: "doctor-1", Specialty: &specialty, Doctor: &models.SafeUser{Name: "Arjun Rao"}},
		{DoctorID: "doctor-2"},
	})
	assert.Contains(t, out, "Dr. Arjun Rao")
	assert.Contains(t, out, "Orthopedics")
	assert.Contains(t, out, "Dr. doctor-2")
	assert.Contains(t, renderDoctors(nil), "No linked doctors")

	readings := renderReadings(voicecmd.Parse("pain is 7, slept 8 hours, knee is stiff"))
	lines := strings.Split(readings, "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "pain_level = 7")
	assert.Contains(t, lines[1], "sleep_hours = 8")
	assert.Contains(t, lines[2], "knee is stiff")
	assert.Contains(t, renderReadings(voicecmd.Parse("all good")), "No symptom readings")
}

func TestRenderNotification(t *testing.T) {
	out := renderNotification(chat.Notification{Level: chat.LevelError, Title: "SOS Alert!", Body: "Priya needs attention"})
	assert.Contains(t, out, "SOS Alert!")
	assert.Contains(t, out, "Priya needs attention")

	out = renderNotification(chat.Notification{Level: "other", Title: "x", Body: "y"})
	assert.Contains(t, out, "x")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line, name, arg string
	}{
		{"hello there", "", "hello there"},
		{"/quit", "quit", ""},
		{"  /Open  s1 ", "open", "s1"},
		{"/symptoms pain is 7", "symptoms", "pain is 7"},
	}
	for _, tt := range tests {
		name, arg := parseCommand(tt.line)
		assert.Equal(t, tt.name, name, tt.line)
		assert.Equal(t, tt.arg, arg, tt.line)
	}
}
