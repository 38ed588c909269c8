package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/config"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNewResponder_WithoutKeyIsCanned(t *testing.T) {
	r := NewResponder(config.AIConfig{}, nil)
	assert.Equal(t, "canned", r.Status())

	reply, err := r.Reply(context.Background(), nil, "pain is 7")
	require.NoError(t, err)
	assert.Contains(t, reply, "pain is 7")
}

func TestOpenAIResponder_ReplyAndFallback(t *testing.T) {
	var fail atomic.Bool
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") || fail.Load() {
			http.Error(w, `{"error":{"message":"upstream down"}}`, http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" Rest and hydrate. "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	r := NewOpenAIResponder(config.AIConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "test-model", Timeout: 5 * time.Second}, quietLogger())
	history := []models.ChatMessage{{Content: "hi"}, {Content: "hello", IsAI: true}}

	reply, err := r.Reply(context.Background(), history, "pain is 7")
	require.NoError(t, err)
	assert.Equal(t, "Rest and hydrate.", reply)

	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(lastBody.Load().(string)), &req))
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, "pain is 7", req.Messages[3].Content)

	fail.Store(true)
	for i := 0; i < DefaultBreakerConfig().MaxFailures; i++ {
		reply, err = r.Reply(context.Background(), nil, "still sore")
		require.NoError(t, err)
		assert.Contains(t, reply, "still sore")
	}
	assert.Equal(t, BreakerOpen, r.breaker.State())
	assert.Contains(t, r.Status(), "open")
}

func TestBuildPrompt_KeepsRecentWindow(t *testing.T) {
	history := make([]models.ChatMessage, aiHistoryWindow+5)
	for i := range history {
		history[i].Content = fmt.Sprintf("m%d", i)
	}
	msgs := buildPrompt(history, "now")
	require.Len(t, msgs, aiHistoryWindow+2)
	assert.Equal(t, "m5", msgs[1].Content)
	assert.Equal(t, "now", msgs[len(msgs)-1].Content)
}
