package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/chat"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/metrics"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/realtime"
)

// terminal serialises writes from the prompt loop and realtime handlers.
type terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func (t *terminal) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, s)
}

func (t *terminal) Notify(n chat.Notification) {
	t.println(renderNotification(n))
}

// chatStack 一个身份的完整聊天依赖
type chatStack struct {
	client   *chat.Client
	channel  *realtime.Channel
	identity models.SafeUser
	term     *terminal
}

// newChatStack resolves the identity and wires REST, realtime and the chat
// core. A 401 from any non-auth request stops the chat client.
func newChatStack(ctx context.Context, out io.Writer) (*chatStack, error) {
	api := newAPIClient()
	identity, err := resolveIdentity(ctx, api)
	if err != nil {
		return nil, err
	}

	term := &terminal{out: out}
	channel := realtime.NewChannel(realtime.Config{
		URL:          cfg.Realtime.URL,
		Token:        api.Token(),
		MinBackoff:   cfg.Realtime.MinBackoff,
		MaxBackoff:   cfg.Realtime.MaxBackoff,
		PingInterval: cfg.Realtime.PingInterval,
		WriteTimeout: cfg.Realtime.WriteTimeout,
		CloseTimeout: cfg.Realtime.CloseTimeout,
		SendBuffer:   cfg.Realtime.SendBuffer,
	}, realtime.Identity{UserID: identity.ID, Role: identity.Role}, logrus.StandardLogger())

	client := chat.NewClient(api, channel, chat.Options{
		Identity:       identity,
		TypingExpiry:   cfg.Chat.TypingExpiry,
		TypingThrottle: cfg.Chat.TypingThrottle,
		Notifier:       term,
		Logger:         logrus.StandardLogger(),
		OnLogout: func() {
			api.SetToken("")
			term.println(mutedStyle.Render("Signed out. Run `recoverease login` to continue."))
		},
	})
	api.OnUnauthorized(func() {
		go client.HandleUnauthorized()
	})

	return &chatStack{client: client, channel: channel, identity: identity, term: term}, nil
}

func (s *chatStack) Close() {
	s.client.Stop()
}

// serveMetrics exposes the client's Prometheus metrics on
// monitoring.metrics_addr until ctx ends. An empty address disables it.
func serveMetrics(ctx context.Context) {
	addr := cfg.Monitoring.MetricsAddr
	if addr == "" {
		return
	}
	path := cfg.Monitoring.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	srv := &http.Server{Addr: addr, Handler: newMetricsRouter(path), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logrus.Infof("Serving client metrics on %s%s", addr, path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Warn("Metrics listener stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// newMetricsRouter 客户端指标路由；非调试模式下不输出 gin 路由日志
func newMetricsRouter(path string) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(path, gin.WrapH(metrics.Handler()))
	return r
}
