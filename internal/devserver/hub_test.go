package devserver

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/chat"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/realtime"
)

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
}

func (e *testEnv) channel(t *testing.T, token string, id realtime.Identity) *realtime.Channel {
	t.Helper()
	ch := realtime.NewChannel(realtime.Config{
		URL:          e.wsURL(),
		Token:        token,
		MinBackoff:   20 * time.Millisecond,
		MaxBackoff:   100 * time.Millisecond,
		CloseTimeout: time.Second,
	}, id, e.logger)
	t.Cleanup(func() { ch.Close() })
	return ch
}

// collect forwards every event of eventType into a buffered channel.
func collect(ch *realtime.Channel, eventType string) <-chan realtime.Message {
	out := make(chan realtime.Message, 16)
	ch.On(eventType, func(m realtime.Message) {
		select {
		case out <- m:
		default:
		}
	})
	return out
}

func receive(t *testing.T, in <-chan realtime.Message) realtime.Message {
	t.Helper()
	select {
	case m := <-in:
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for realtime event")
		return realtime.Message{}
	}
}

func (e *testEnv) waitRoom(t *testing.T, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return e.srv.Hub().RoomSize(room) == n },
		3*time.Second, 10*time.Millisecond, "room %s", room)
}

func TestHub_RejectsUnknownToken(t *testing.T) {
	env := newTestEnv(t, CannedResponder{})
	header := http.Header{"Authorization": []string{"Bearer nope"}}
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_RoomRoutingAndTyping(t *testing.T) {
	env := newTestEnv(t, CannedResponder{})
	ctx := context.Background()

	doctorCh := env.channel(t, doctorToken, realtime.Identity{UserID: "doctor-1", Role: models.RoleDoctor})
	patientCh := env.channel(t, patientToken, realtime.Identity{UserID: "patient-1", Role: models.RolePatient})
	requests := collect(doctorCh, models.EventChatRequest)
	accepted := collect(patientCh, models.EventChatRequestAccepted)
	doctorMsgs := collect(doctorCh, models.EventNewMessage)
	patientMsgs := collect(patientCh, models.EventNewMessage)
	doctorTyping := collect(doctorCh, models.EventTyping)
	patientTyping := collect(patientCh, models.EventTyping)

	require.NoError(t, doctorCh.Start(ctx))
	require.NoError(t, patientCh.Start(ctx))
	env.waitRoom(t, DoctorRoom("doctor-1"), 1)
	env.waitRoom(t, PatientRoom("patient-1"), 1)

	session, err := env.client(patientToken).RequestDoctorChat(ctx, "doctor-1")
	require.NoError(t, err)
	var req models.ChatRequestEvent
	require.NoError(t, receive(t, requests).Decode(&req))
	assert.Equal(t, session.ID, req.SessionID)
	assert.Equal(t, "Priya Patel", req.PatientName)

	_, err = env.client(doctorToken).AcceptSession(ctx, session.ID)
	require.NoError(t, err)
	var acc models.ChatRequestAcceptedEvent
	require.NoError(t, receive(t, accepted).Decode(&acc))
	assert.Equal(t, "Arjun Rao", acc.DoctorName)

	require.NoError(t, doctorCh.JoinChatRoom(session.ID))
	require.NoError(t, patientCh.JoinChatRoom(session.ID))
	env.waitRoom(t, ChatRoom(session.ID), 2)

	sent, err := env.client(patientToken).SendMessage(ctx, session.ID, "hello doctor", false)
	require.NoError(t, err)
	for _, in := range []<-chan realtime.Message{doctorMsgs, patientMsgs} {
		var ev models.NewMessageEvent
		require.NoError(t, receive(t, in).Decode(&ev))
		assert.Equal(t, sent.ID, ev.Message.ID)
	}

	require.NoError(t, patientCh.Emit(models.EventTyping, models.TypingEvent{SessionID: session.ID, UserName: "Priya Patel"}))
	var typing models.TypingEvent
	require.NoError(t, receive(t, doctorTyping).Decode(&typing))
	assert.Equal(t, "Priya Patel", typing.UserName)
	select {
	case <-patientTyping:
		t.Fatal("typing must not echo back to the sender")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, doctorCh.LeaveChatRoom(session.ID))
	env.waitRoom(t, ChatRoom(session.ID), 1)
}

func TestHub_RejectsForeignRooms(t *testing.T) {
	env := newTestEnv(t, CannedResponder{})
	ctx := context.Background()
	patient := env.client(patientToken)

	foreign, err := patient.RequestDoctorChat(ctx, "doctor-1")
	require.NoError(t, err)
	own, err := patient.RequestDoctorChat(ctx, "doctor-2")
	require.NoError(t, err)

	// doctor-2 冒充 doctor-1 并尝试加入不属于自己的会话
	ch := env.channel(t, doctor2Token, realtime.Identity{UserID: "doctor-1", Role: models.RoleDoctor})
	require.NoError(t, ch.JoinChatRoom(foreign.ID))
	require.NoError(t, ch.Start(ctx))
	require.Eventually(t, ch.Connected, 3*time.Second, 10*time.Millisecond)

	// 同一连接上的合法加入作为屏障
	require.NoError(t, ch.JoinChatRoom(own.ID))
	env.waitRoom(t, ChatRoom(own.ID), 1)

	assert.Equal(t, 0, env.srv.Hub().RoomSize(DoctorRoom("doctor-1")))
	assert.Equal(t, 0, env.srv.Hub().RoomSize(ChatRoom(foreign.ID)))
}

// A patient chat client drives the AI session against the development backend.
func TestEndToEnd_ChatClient(t *testing.T) {
	env := newTestEnv(t, stubResponder{reply: "Try ice and rest."})
	ctx := context.Background()

	identity := models.SafeUser{ID: "patient-1", Name: "Priya Patel", Role: models.RolePatient}
	rt := env.channel(t, patientToken, realtime.Identity{UserID: identity.ID, Role: identity.Role})
	client := chat.NewClient(env.client(patientToken), rt, chat.Options{Identity: identity, Logger: env.logger})
	t.Cleanup(client.Stop)

	require.NoError(t, client.Start(ctx))
	th, err := client.OpenAIThread(ctx)
	require.NoError(t, err)

	th.SetDraft("pain is 7")
	require.NoError(t, th.SendText(ctx))
	msgs, err := th.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "pain is 7", msgs[0].Content)
	assert.True(t, msgs[1].IsAI)
	assert.Empty(t, th.Draft())

	session, err := client.RequestDoctorChat(ctx, "doctor-1")
	require.NoError(t, err)
	assert.False(t, chat.CanSend(session))
}
