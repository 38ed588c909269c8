package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(messagesAppended.WithLabelValues(SourceSocket))
	MessageAppended(SourceSocket)
	assert.Equal(t, before+1, testutil.ToFloat64(messagesAppended.WithLabelValues(SourceSocket)))

	dupBefore := testutil.ToFloat64(duplicatesDropped.WithLabelValues(SourceREST))
	DuplicateDropped(SourceREST)
	assert.Equal(t, dupBefore+1, testutil.ToFloat64(duplicatesDropped.WithLabelValues(SourceREST)))

	SetRealtimeConnected(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(realtimeConnected))
	SetRealtimeConnected(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(realtimeConnected))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	ObserveHTTP(http.MethodGet, "/api/chat/sessions", http.StatusOK, 5*time.Millisecond)
	SendFailed("text")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "recoverease_devserver_http_requests_total"))
	assert.True(t, strings.Contains(body, `recoverease_chat_send_failures_total{kind="text"}`))
}
