package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/config"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/devserver"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// syncBuffer is written by realtime handlers while the test reads it.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func startDevServer(t *testing.T) *devserver.Server {
	t.Helper()
	loaded := config.GetDefaultConfig()
	loaded.DevServer.UploadPath = t.TempDir()
	srv := devserver.New(devserver.Options{Config: loaded.DevServer, Logger: logrus.StandardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	srv.Start(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	loaded.API.BaseURL = ts.URL + "/api"
	loaded.API.MaxRetries = 0
	loaded.Realtime.URL = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	loaded.Realtime.MinBackoff = 10 * time.Millisecond
	loaded.Realtime.MaxBackoff = 50 * time.Millisecond
	cfg = loaded
	return srv
}

func startREPL(t *testing.T, token string) (*repl, *syncBuffer) {
	t.Helper()
	cfg.API.Token = token
	out := &syncBuffer{}
	stack, err := newChatStack(context.Background(), out)
	require.NoError(t, err)
	t.Cleanup(stack.Close)

	r := newREPL(stack)
	require.NoError(t, r.start(context.Background()))
	require.Eventually(t, stack.channel.Connected, 2*time.Second, 10*time.Millisecond)
	return r, out
}

func TestREPL_AIAssistant(t *testing.T) {
	startDevServer(t)
	r, out := startREPL(t, "dev-patient-token")
	ctx := context.Background()

	require.NoError(t, r.openAI(ctx))
	assert.Contains(t, out.String(), "No messages yet")

	quit, err := r.handle(ctx, "pain is 7")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Contains(t, out.String(), "You: pain is 7")
	assert.Contains(t, out.String(), `AI Assistant: Thanks, I've noted "pain is 7"`)

	_, err = r.handle(ctx, "/symptoms slept 6 hours")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "sleep_hours = 6")

	_, err = r.handle(ctx, "/bogus")
	assert.ErrorContains(t, err, "unknown command /bogus")

	_, err = r.handle(ctx, "/image")
	assert.ErrorContains(t, err, "usage: /image <file>")

	quit, err = r.handle(ctx, "/quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestREPL_DoctorConversation(t *testing.T) {
	srv := startDevServer(t)
	ctx := context.Background()

	patient, patientOut := startREPL(t, "dev-patient-token")
	_, err := patient.handle(ctx, "/request doctor-1")
	require.NoError(t, err)
	th := patient.stack.client.Thread()
	require.NotNil(t, th)
	sessionID := th.SessionID()
	assert.Contains(t, patientOut.String(), "Waiting for the doctor to accept your chat request")

	doctor, doctorOut := startREPL(t, "dev-doctor-token")
	require.NoError(t, doctor.open(ctx, sessionID))
	assert.Contains(t, doctorOut.String(), "Priya Patel [REQUESTED]")

	_, err = doctor.handle(ctx, "/accept")
	require.NoError(t, err)
	assert.Contains(t, doctorOut.String(), "Chat accepted")
	require.Eventually(t, func() bool {
		return strings.Contains(patientOut.String(), "Dr. Arjun Rao accepted your chat request")
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return srv.Hub().RoomSize(devserver.ChatRoom(sessionID)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// 接受后患者无需刷新列表即可发送
	_, err = patient.handle(ctx, "thanks for accepting")
	require.NoError(t, err)
	assert.Contains(t, patientOut.String(), "You: thanks for accepting")

	_, err = doctor.handle(ctx, "how is the knee today?")
	require.NoError(t, err)
	assert.Contains(t, doctorOut.String(), "You: how is the knee today?")
	require.Eventually(t, func() bool {
		return strings.Contains(patientOut.String(), "Arjun Rao: how is the knee today?")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = doctor.handle(ctx, "/close")
	require.NoError(t, err)
	assert.Contains(t, doctorOut.String(), "Chat closed")
}

func TestMetricsRouter(t *testing.T) {
	ts := httptest.NewServer(newMetricsRouter("/client-metrics"))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/client-metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
