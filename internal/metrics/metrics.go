package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recoverease",
			Name:      "chat_messages_appended_total",
			Help:      "Messages inserted into the message cache, by delivery source.",
		},
		[]string{"source"},
	)

	duplicatesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recoverease",
			Name:      "chat_duplicates_dropped_total",
			Help:      "Messages ignored because their id was already cached, by delivery source.",
		},
		[]string{"source"},
	)

	sendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recoverease",
			Name:      "chat_send_failures_total",
			Help:      "Failed send attempts, by message kind.",
		},
		[]string{"kind"},
	)

	realtimeReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recoverease",
			Name:      "realtime_reconnects_total",
			Help:      "Realtime channel reconnections after the first connect.",
		},
	)

	realtimeConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recoverease",
			Name:      "realtime_connected",
			Help:      "1 while the realtime channel holds a live connection.",
		},
	)

	typingSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recoverease",
			Name:      "chat_typing_signals_total",
			Help:      "Typing signals, by direction (inbound, outbound).",
		},
		[]string{"direction"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recoverease",
			Name:      "devserver_http_requests_total",
			Help:      "Development backend HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recoverease",
			Name:      "devserver_http_request_duration_seconds",
			Help:      "Development backend HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	hubClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recoverease",
			Name:      "devserver_ws_clients",
			Help:      "Connected websocket clients on the development backend.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		messagesAppended,
		duplicatesDropped,
		sendFailures,
		realtimeReconnects,
		realtimeConnected,
		typingSignals,
		httpRequests,
		httpDuration,
		hubClients,
	)
}

// Delivery sources.
const (
	SourceREST    = "rest"
	SourceSocket  = "socket"
	SourceHistory = "history"
)

func MessageAppended(source string) { messagesAppended.WithLabelValues(source).Inc() }

func DuplicateDropped(source string) { duplicatesDropped.WithLabelValues(source).Inc() }

func SendFailed(kind string) { sendFailures.WithLabelValues(kind).Inc() }

func RealtimeReconnected() { realtimeReconnects.Inc() }

func SetRealtimeConnected(up bool) {
	if up {
		realtimeConnected.Set(1)
		return
	}
	realtimeConnected.Set(0)
}

func TypingSignal(direction string) { typingSignals.WithLabelValues(direction).Inc() }

// ObserveHTTP records one devserver request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func SetHubClients(n int) { hubClients.Set(float64(n)) }

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
