package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

func newReconcilerFixture(t *testing.T, api *fakeAPI) (*SessionStore, *MessageCache, *Reconciler) {
	t.Helper()
	sessions := NewSessionStore(api, nil, quietLogger())
	messages := NewMessageCache(api, quietLogger())
	return sessions, messages, NewReconciler(sessions, messages, "p1", quietLogger())
}

func TestReconciler_IdempotentAppend(t *testing.T) {
	_, messages, r := newReconcilerFixture(t, newFakeAPI())

	seq := []string{"a", "b", "a", "c", "b", "a"}
	for _, id := range seq {
		r.Confirmed("s1", msg(id, "s1", "d1"))
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids(messages.Cached("s1")))
}

func TestReconciler_DualPathConvergence(t *testing.T) {
	m := msg("m7", "s1", "d1")

	run := func(socketFirst bool) ([]models.ChatMessage, models.ChatSession) {
		sessions, messages, r := newReconcilerFixture(t, newFakeAPI())
		sessions.Upsert(doctorSession("s1", "d1", models.StatusActive))
		if socketFirst {
			assert.True(t, r.Delivered(models.NewMessageEvent{SessionID: "s1", Message: m}))
			assert.Equal(t, 0, r.Confirmed("s1", m))
		} else {
			assert.Equal(t, 1, r.Confirmed("s1", m))
			assert.False(t, r.Delivered(models.NewMessageEvent{SessionID: "s1", Message: m}))
		}
		s, _ := sessions.Get("s1")
		return messages.Cached("s1"), s
	}

	restFirst, restSession := run(false)
	socketFirst, socketSession := run(true)
	assert.Equal(t, restFirst, socketFirst)
	assert.Equal(t, restSession.Unread, socketSession.Unread)
	assert.Equal(t, 1, restSession.Unread)
	assert.Equal(t, *restSession.LastMessage, *socketSession.LastMessage)
}

func TestReconciler_UnreadAndPreview(t *testing.T) {
	sessions, _, r := newReconcilerFixture(t, newFakeAPI())
	sessions.Upsert(doctorSession("s1", "d1", models.StatusActive))
	sessions.Upsert(doctorSession("s2", "d2", models.StatusActive))
	r.SetActive("s2")

	// 自己发送的消息不计未读
	r.Confirmed("s1", msg("own", "s1", "p1"))
	s1, _ := sessions.Get("s1")
	assert.Equal(t, 0, s1.Unread)
	assert.Equal(t, "s1", sessions.Snapshot()[0].ID)

	// 当前打开的会话不计未读
	r.Delivered(models.NewMessageEvent{SessionID: "s2", Message: msg("x", "s2", "d2")})
	s2, _ := sessions.Get("s2")
	assert.Equal(t, 0, s2.Unread)
	assert.Equal(t, "content x", *s2.LastMessage)

	r.Delivered(models.NewMessageEvent{SessionID: "s1", Message: msg("y", "s1", "d1")})
	s1, _ = sessions.Get("s1")
	assert.Equal(t, 1, s1.Unread)
	assert.Equal(t, []string{"s1", "s2"}, sessionIDs(sessions.Snapshot()))
}

func TestReconciler_UnknownSessionInvalidatesList(t *testing.T) {
	api := newFakeAPI()
	sessions, messages, r := newReconcilerFixture(t, api)
	_, err := sessions.List(context.Background())
	require.NoError(t, err)

	api.setSessions(doctorSession("new", "d9", models.StatusActive))
	assert.True(t, r.Delivered(models.NewMessageEvent{Message: msg("z", "new", "d9")}))
	assert.Equal(t, []string{"z"}, ids(messages.Cached("new")))

	list, err := sessions.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, sessionIDs(list))
	assert.Equal(t, 2, api.count("ListSessions"))
}

func TestMessageCache_HistoryMergeKeepsEarlyArrivals(t *testing.T) {
	api := newFakeAPI()
	api.history["s1"] = []models.ChatMessage{msg("h1", "s1", "d1"), msg("h2", "s1", "p1")}
	_, messages, r := newReconcilerFixture(t, api)

	// 历史加载前到达的消息（其中 h2 也在历史中）
	r.Delivered(models.NewMessageEvent{SessionID: "s1", Message: msg("live", "s1", "d1")})
	r.Delivered(models.NewMessageEvent{SessionID: "s1", Message: msg("h2", "s1", "p1")})
	assert.False(t, messages.Loaded("s1"))

	list, err := messages.Messages(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2", "live"}, ids(list))

	// 之后只读缓存
	_, err = messages.Messages(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, api.count("GetMessages"))

	// 返回的是副本
	list[0].Content = "mutated"
	assert.Equal(t, "content h1", messages.Cached("s1")[0].Content)

	messages.Reset("s1")
	assert.Empty(t, messages.Cached("s1"))
	_, err = messages.Messages(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("GetMessages"))
}

func TestMessageCache_HistoryError(t *testing.T) {
	api := newFakeAPI()
	api.historyFn = func(string) ([]models.ChatMessage, error) { return nil, errors.New("boom") }
	_, messages, r := newReconcilerFixture(t, api)
	r.Confirmed("s1", msg("a", "s1", "p1"))

	list, err := messages.Messages(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, ids(list))
	assert.False(t, messages.Loaded("s1"))
}

func TestMessageCache_Grouped(t *testing.T) {
	_, messages, r := newReconcilerFixture(t, newFakeAPI())
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local)

	old := msg("o", "s1", "d1")
	old.CreatedAt = now.AddDate(0, 0, -5)
	y := msg("y", "s1", "d1")
	y.CreatedAt = now.AddDate(0, 0, -1)
	t1 := msg("t1", "s1", "p1")
	t1.CreatedAt = now.Add(-2 * time.Hour)
	t2 := msg("t2", "s1", "d1")
	t2.CreatedAt = now.Add(-time.Hour)
	r.Confirmed("s1", old, y, t1, t2)

	groups := messages.Grouped("s1", now)
	require.Len(t, groups, 3)
	assert.Equal(t, "Mar 5", groups[0].Label)
	assert.Equal(t, "Yesterday", groups[1].Label)
	assert.Equal(t, "Today", groups[2].Label)
	assert.Equal(t, []string{"t1", "t2"}, ids(groups[2].Messages))
}
