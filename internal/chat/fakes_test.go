package chat

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/realtime"
)

// fakeAPI is an in-memory stand-in for the REST backend. Hooks override the
// default behaviour per test.
type fakeAPI struct {
	mu       sync.Mutex
	sessions []models.ChatSession
	history  map[string][]models.ChatMessage
	links    []models.DoctorLink
	calls    map[string]int
	seq      int

	listFn    func() ([]models.ChatSession, error)
	aiFn      func() (*models.ChatSession, error)
	sendFn    func(sessionID, content string, isVoice bool) (*models.ChatMessage, error)
	sendAIFn  func(sessionID, content string) (*models.AIExchange, error)
	historyFn func(sessionID string) ([]models.ChatMessage, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history: make(map[string][]models.ChatMessage),
		calls:   make(map[string]int),
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) nextID(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *fakeAPI) setSessions(s ...models.ChatSession) {
	f.mu.Lock()
	f.sessions = s
	f.mu.Unlock()
}

func (f *fakeAPI) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	f.hit("ListSessions")
	if f.listFn != nil {
		return f.listFn()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ChatSession, len(f.sessions))
	copy(out, f.sessions)
	return out, nil
}

func (f *fakeAPI) GetAISession(ctx context.Context) (*models.ChatSession, error) {
	f.hit("GetAISession")
	if f.aiFn != nil {
		return f.aiFn()
	}
	return &models.ChatSession{ID: "ai-1", PatientID: "p1", Status: models.StatusActive, Title: "AI Recovery Assistant"}, nil
}

func (f *fakeAPI) RequestDoctorChat(ctx context.Context, doctorID string) (*models.ChatSession, error) {
	f.hit("RequestDoctorChat")
	d := doctorID
	return &models.ChatSession{ID: "req-" + doctorID, PatientID: "p1", DoctorID: &d, Status: models.StatusRequested, Title: "Dr. " + doctorID, IsRequest: true}, nil
}

func (f *fakeAPI) AcceptSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	f.hit("AcceptSession")
	return f.transition(sessionID, models.StatusActive), nil
}

func (f *fakeAPI) CloseSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	f.hit("CloseSession")
	return f.transition(sessionID, models.StatusClosed), nil
}

func (f *fakeAPI) transition(sessionID string, status models.SessionStatus) *models.ChatSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sessions {
		if f.sessions[i].ID == sessionID {
			f.sessions[i].Status = status
			s := f.sessions[i]
			return &s
		}
	}
	return &models.ChatSession{ID: sessionID, Status: status}
}

func (f *fakeAPI) GetMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	f.hit("GetMessages")
	if f.historyFn != nil {
		return f.historyFn(sessionID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatMessage(nil), f.history[sessionID]...), nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, sessionID, content string, isVoice bool) (*models.ChatMessage, error) {
	f.hit("SendMessage")
	if f.sendFn != nil {
		return f.sendFn(sessionID, content, isVoice)
	}
	return &models.ChatMessage{ID: f.nextID("m"), SessionID: sessionID, SenderID: models.StringPtr("p1"), Content: content, IsVoice: isVoice, CreatedAt: time.Now()}, nil
}

func (f *fakeAPI) SendAIMessage(ctx context.Context, sessionID, content string, isVoice bool) (*models.AIExchange, error) {
	f.hit("SendAIMessage")
	if f.sendAIFn != nil {
		return f.sendAIFn(sessionID, content)
	}
	return &models.AIExchange{
		UserMessage: models.ChatMessage{ID: "m1", SessionID: sessionID, SenderID: models.StringPtr("p1"), Content: content, CreatedAt: time.Now()},
		AIReply:     models.ChatMessage{ID: "m2", SessionID: sessionID, IsAI: true, Content: "Try ice and rest.", CreatedAt: time.Now()},
	}, nil
}

func (f *fakeAPI) SendVoiceMessage(ctx context.Context, sessionID, filename string, audio io.Reader) (*models.ChatMessage, error) {
	f.hit("SendVoiceMessage")
	url := "/uploads/" + filename
	return &models.ChatMessage{ID: f.nextID("v"), SessionID: sessionID, SenderID: models.StringPtr("p1"), Content: "transcribed", IsVoice: true, AudioURL: &url, CreatedAt: time.Now()}, nil
}

func (f *fakeAPI) SendImageMessage(ctx context.Context, sessionID, filename string, image io.Reader) (*models.ChatMessage, error) {
	f.hit("SendImageMessage")
	url := "/uploads/" + filename
	return &models.ChatMessage{ID: f.nextID("i"), SessionID: sessionID, SenderID: models.StringPtr("p1"), ImageURL: &url, CreatedAt: time.Now()}, nil
}

func (f *fakeAPI) MyDoctors(ctx context.Context) ([]models.DoctorLink, error) {
	f.hit("MyDoctors")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.DoctorLink(nil), f.links...), nil
}

// fakeRealtime records emits and room membership and lets tests push events.
type fakeRealtime struct {
	mu       sync.Mutex
	handlers map[string]map[int]realtime.Handler
	nextID   int
	rooms    map[string]bool
	emitted  []realtime.Message
	left     []string
	started  bool
	closed   bool
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		handlers: make(map[string]map[int]realtime.Handler),
		rooms:    make(map[string]bool),
	}
}

func (f *fakeRealtime) Start(ctx context.Context) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRealtime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.handlers = make(map[string]map[int]realtime.Handler)
	for room := range f.rooms {
		f.left = append(f.left, room)
	}
	f.rooms = make(map[string]bool)
	return nil
}

func (f *fakeRealtime) Emit(eventType string, payload interface{}) error {
	msg, err := realtime.NewMessage(eventType, payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return realtime.ErrClosed
	}
	f.emitted = append(f.emitted, msg)
	return nil
}

func (f *fakeRealtime) On(eventType string, h realtime.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[eventType] == nil {
		f.handlers[eventType] = make(map[int]realtime.Handler)
	}
	f.nextID++
	id := f.nextID
	f.handlers[eventType][id] = h
	return func() {
		f.mu.Lock()
		delete(f.handlers[eventType], id)
		f.mu.Unlock()
	}
}

func (f *fakeRealtime) JoinChatRoom(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[sessionID] = true
	return nil
}

func (f *fakeRealtime) LeaveChatRoom(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return realtime.ErrClosed
	}
	delete(f.rooms, sessionID)
	f.left = append(f.left, sessionID)
	return nil
}

func (f *fakeRealtime) inRoom(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[sessionID]
}

func (f *fakeRealtime) handlerCount(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[eventType])
}

func (f *fakeRealtime) emits(eventType string) []realtime.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []realtime.Message
	for _, m := range f.emitted {
		if m.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}

// push delivers an inbound event to every subscribed handler.
func (f *fakeRealtime) push(t *testing.T, eventType string, payload interface{}) {
	t.Helper()
	msg, err := realtime.NewMessage(eventType, payload)
	require.NoError(t, err)
	f.mu.Lock()
	var hs []realtime.Handler
	for _, h := range f.handlers[eventType] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(msg)
	}
}

// recorder collects notifications.
type recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

func (r *recorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Title)
	}
	return out
}

func (r *recorder) last() Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}
	}
	return r.items[len(r.items)-1]
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func doctorSession(id, doctorID string, status models.SessionStatus) models.ChatSession {
	d := doctorID
	return models.ChatSession{
		ID:        id,
		PatientID: "p1",
		DoctorID:  &d,
		Status:    status,
		Title:     "Dr. " + doctorID,
		CreatedAt: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
}

func msg(id, sessionID, sender string) models.ChatMessage {
	m := models.ChatMessage{ID: id, SessionID: sessionID, Content: "content " + id, CreatedAt: time.Now()}
	if sender != "" {
		m.SenderID = models.StringPtr(sender)
		m.SenderName = models.StringPtr(sender)
	}
	return m
}

func ids(msgs []models.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
