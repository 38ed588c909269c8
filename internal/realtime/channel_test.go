package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

// testServer accepts websocket connections and records every inbound event.
type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []Message
	auth     []string
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{t: t}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ts.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.auth = append(ts.auth, r.Header.Get("Authorization"))
		ts.mu.Unlock()

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			ts.mu.Lock()
			ts.received = append(ts.received, msg)
			ts.mu.Unlock()
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) events(eventType string) []Message {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []Message
	for _, m := range ts.received {
		if m.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}

func (ts *testServer) connCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.conns)
}

func (ts *testServer) push(t *testing.T, eventType string, payload interface{}) {
	msg, err := NewMessage(eventType, payload)
	require.NoError(t, err)
	ts.mu.Lock()
	conn := ts.conns[len(ts.conns)-1]
	ts.mu.Unlock()
	require.NoError(t, conn.WriteJSON(msg))
}

func (ts *testServer) dropLatest() {
	ts.mu.Lock()
	conn := ts.conns[len(ts.conns)-1]
	ts.mu.Unlock()
	conn.Close()
}

func newTestChannel(ts *testServer, role models.Role) *Channel {
	return NewChannel(Config{
		URL:          ts.url(),
		Token:        "tok",
		MinBackoff:   10 * time.Millisecond,
		MaxBackoff:   50 * time.Millisecond,
		CloseTimeout: time.Second,
	}, Identity{UserID: "doctor-1", Role: role}, nil)
}

func TestNewMessage_CopiesSessionID(t *testing.T) {
	msg, err := NewMessage(models.EventTyping, models.TypingEvent{SessionID: "s1", UserName: "Dr. Rao"})
	require.NoError(t, err)
	assert.Equal(t, "s1", msg.SessionID)

	var ev models.TypingEvent
	require.NoError(t, msg.Decode(&ev))
	assert.Equal(t, "Dr. Rao", ev.UserName)

	empty, err := NewMessage(models.EventConnect, nil)
	require.NoError(t, err)
	assert.Error(t, empty.Decode(&ev))
}

func TestChannel_AnnouncesRoomsOnConnect(t *testing.T) {
	ts := newTestServer(t)
	ch := newTestChannel(ts, models.RoleDoctor)
	defer ch.Close()

	require.NoError(t, ch.JoinChatRoom("s1"))
	require.NoError(t, ch.Start(context.Background()))

	require.Eventually(t, func() bool {
		return len(ts.events(models.EventJoinChatRoom)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	joins := ts.events(models.EventJoinDoctorRoom)
	require.Len(t, joins, 1)
	var p models.DoctorRoomPayload
	require.NoError(t, joins[0].Decode(&p))
	assert.Equal(t, "doctor-1", p.DoctorID)
	assert.Equal(t, "s1", ts.events(models.EventJoinChatRoom)[0].SessionID)

	ts.mu.Lock()
	assert.Equal(t, "Bearer tok", ts.auth[0])
	ts.mu.Unlock()
}

func TestChannel_ReannouncesAfterReconnect(t *testing.T) {
	ts := newTestServer(t)
	ch := newTestChannel(ts, models.RolePatient)
	defer ch.Close()

	require.NoError(t, ch.Start(context.Background()))
	require.Eventually(t, ch.Connected, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, ch.JoinChatRoom("s2"))
	require.Eventually(t, func() bool {
		return ts.connCount() == 1 && len(ts.events(models.EventJoinChatRoom)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ts.dropLatest()

	require.Eventually(t, func() bool {
		return ts.connCount() == 2 && len(ts.events(models.EventJoinChatRoom)) == 2
	}, 3*time.Second, 10*time.Millisecond)
	assert.Len(t, ts.events(models.EventJoinPatientRoom), 2)
}

func TestChannel_DispatchAndUnsubscribe(t *testing.T) {
	ts := newTestServer(t)
	ch := newTestChannel(ts, models.RolePatient)
	defer ch.Close()

	var mu sync.Mutex
	var got []string
	unsubscribe := ch.On(models.EventTyping, func(m Message) {
		var ev models.TypingEvent
		if m.Decode(&ev) == nil {
			mu.Lock()
			got = append(got, ev.UserName)
			mu.Unlock()
		}
	})

	require.NoError(t, ch.Start(context.Background()))
	require.Eventually(t, func() bool {
		return ch.Connected() && ts.connCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	ts.push(t, models.EventTyping, models.TypingEvent{SessionID: "s1", UserName: "Dr. Rao"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()
	ts.push(t, models.EventTyping, models.TypingEvent{SessionID: "s1", UserName: "again"})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"Dr. Rao"}, got)
	mu.Unlock()
}

func TestChannel_CloseLeavesRoomsAndStopsDispatch(t *testing.T) {
	ts := newTestServer(t)
	ch := newTestChannel(ts, models.RolePatient)

	var mu sync.Mutex
	calls := 0
	ch.On(models.EventNewMessage, func(Message) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	require.NoError(t, ch.Start(context.Background()))
	require.Eventually(t, ch.Connected, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, ch.JoinChatRoom("s1"))
	require.NoError(t, ch.JoinChatRoom("s2"))

	require.NoError(t, ch.Close())
	assert.False(t, ch.Connected())
	assert.Empty(t, ch.Rooms())

	require.Eventually(t, func() bool {
		return len(ts.events(models.EventLeaveChatRoom)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, ch.Emit(models.EventTyping, models.TypingEvent{SessionID: "s1"}), ErrClosed)
	assert.ErrorIs(t, ch.JoinChatRoom("s3"), ErrClosed)
	assert.ErrorIs(t, ch.Start(context.Background()), ErrClosed)
	assert.NoError(t, ch.Close())

	mu.Lock()
	assert.Equal(t, 0, calls)
	mu.Unlock()
}

func TestChannel_EmitWhileDisconnected(t *testing.T) {
	ch := NewChannel(Config{URL: "ws://127.0.0.1:1/ws"}, Identity{UserID: "p1", Role: models.RolePatient}, nil)
	defer ch.Close()

	assert.ErrorIs(t, ch.Emit(models.EventTyping, models.TypingEvent{SessionID: "s1"}), ErrNotConnected)
	// 断线期间加入的房间在下次连接时补发
	require.NoError(t, ch.JoinChatRoom("s1"))
	assert.Equal(t, []string{"s1"}, ch.Rooms())
	require.NoError(t, ch.LeaveChatRoom("s1"))
	assert.Empty(t, ch.Rooms())
}
