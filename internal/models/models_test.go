package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatSession_IsAIAndTitle(t *testing.T) {
	doctor := "doctor-1"
	empty := ""
	patientName := "Priya"

	ai := ChatSession{ID: "s1", Title: "AI Recovery Assistant"}
	assert.True(t, ai.IsAI())
	assert.True(t, ChatSession{DoctorID: &empty}.IsAI())

	doc := ChatSession{ID: "s2", PatientID: "p1", DoctorID: &doctor, Title: "Dr. Rao", PatientName: &patientName}
	assert.False(t, doc.IsAI())
	assert.Equal(t, "Priya", doc.DisplayTitle(RoleDoctor))
	assert.Equal(t, "Dr. Rao", doc.DisplayTitle(RolePatient))
	assert.True(t, doc.HasParticipant("doctor-1"))
	assert.True(t, doc.HasParticipant("p1"))
	assert.False(t, doc.HasParticipant("someone"))
	assert.False(t, doc.HasParticipant(""))
}

func TestChatMessage_KindAndPreview(t *testing.T) {
	audio := "/uploads/a.webm"
	image := "/uploads/b.png"

	text := ChatMessage{Content: "pain is 7"}
	assert.Equal(t, KindText, text.Kind())
	assert.Equal(t, "pain is 7", text.Preview())

	dictated := ChatMessage{Content: "slept badly", IsVoice: true}
	assert.Equal(t, KindText, dictated.Kind(), "dictation is still text")

	voice := ChatMessage{Content: "knee feels stiff", AudioURL: &audio, IsVoice: true}
	assert.Equal(t, KindVoice, voice.Kind())
	assert.Equal(t, "Voice message: knee feels stiff", voice.Preview())

	img := ChatMessage{ImageURL: &image}
	assert.Equal(t, KindImage, img.Kind())
	assert.Equal(t, "Image", img.Preview())
}

func TestChatMessage_Sender(t *testing.T) {
	id := "u1"
	name := "Dr. Rao"
	assert.Equal(t, "AI Assistant", ChatMessage{IsAI: true}.Sender())
	assert.Equal(t, "Dr. Rao", ChatMessage{SenderID: &id, SenderName: &name}.Sender())
	assert.True(t, ChatMessage{SenderID: &id}.IsFrom("u1"))
	assert.False(t, ChatMessage{}.IsFrom("u1"))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" doctor ")
	assert.True(t, ok)
	assert.Equal(t, RoleDoctor, r)

	_, ok = ParseRole("nurse")
	assert.False(t, ok)
}
